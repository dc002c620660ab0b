package metrics

import (
	"fmt"
	"sort"
	"strings"

	"peircevlm/internal/domain"
)

// AgreementFields are the count fields compared across models.
var AgreementFields = []Field{FieldCutsCount, FieldLinesCount, FieldSpotsCount}

type DiagramAgreement struct {
	DiagramID string
	Models    int
	// Answered is false when no model gave a value for the field. Such a
	// field is neither agreement nor disagreement.
	Answered map[Field]bool
	// Agree is true when every non-null answer is the same.
	Agree  map[Field]bool
	Values map[Field]string
}

func (d DiagramAgreement) Disagrees(f Field) bool {
	return d.Answered[f] && !d.Agree[f]
}

type AgreementReport struct {
	Diagrams []DiagramAgreement
	Agreed   map[Field]int
	// Compared counts, per field, the diagrams where at least one model answered.
	Compared map[Field]int
}

// Percent is the share of answered diagrams on which all models agreed.
func (r AgreementReport) Percent(f Field) float64 {
	if r.Compared[f] == 0 {
		return 0
	}
	return percent(float64(r.Agreed[f]), float64(r.Compared[f]))
}

// Disagreements lists the diagrams where at least one count field differs.
func (r AgreementReport) Disagreements() []DiagramAgreement {
	var out []DiagramAgreement
	for _, d := range r.Diagrams {
		for _, f := range AgreementFields {
			if d.Disagrees(f) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Agreement compares parsed morphological predictions between models for
// every diagram that at least two models answered.
func Agreement(preds domain.PredictionsFile) AgreementReport {
	type answer struct {
		model string
		pred  map[string]any
	}
	byDiagram := map[string][]answer{}
	for _, p := range preds.Evaluations {
		pred, ok := p.Prediction.(map[string]any)
		if !ok {
			continue
		}
		byDiagram[p.DiagramID] = append(byDiagram[p.DiagramID], answer{model: p.Model, pred: pred})
	}

	ids := make([]string, 0, len(byDiagram))
	for id := range byDiagram {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := AgreementReport{Agreed: map[Field]int{}, Compared: map[Field]int{}}
	for _, id := range ids {
		answers := byDiagram[id]
		if len(answers) < 2 {
			continue
		}
		sort.SliceStable(answers, func(i, j int) bool { return answers[i].model < answers[j].model })

		d := DiagramAgreement{
			DiagramID: id,
			Models:    len(answers),
			Answered:  map[Field]bool{},
			Agree:     map[Field]bool{},
			Values:    map[Field]string{},
		}
		for _, f := range AgreementFields {
			distinct := map[float64]bool{}
			var values []string
			for _, a := range answers {
				n, ok := number(Value(a.pred, f))
				if !ok {
					continue
				}
				distinct[n] = true
				values = append(values, fmt.Sprintf("%s: %s", a.model, FormatValue(n)))
			}
			d.Values[f] = strings.Join(values, ", ")
			if len(distinct) == 0 {
				continue
			}
			d.Answered[f] = true
			d.Agree[f] = len(distinct) == 1
			report.Compared[f]++
			if d.Agree[f] {
				report.Agreed[f]++
			}
		}
		report.Diagrams = append(report.Diagrams, d)
	}
	return report
}
