package metrics

import (
	"log"
	"math"
	"sort"

	"peircevlm/internal/domain"
	"peircevlm/internal/groundtruth"
)

// ModelMetrics is the aggregated row for one model. Percentages are rounded
// to two decimals; field accuracies are over evaluated diagrams, not over
// the whole ground truth.
type ModelMetrics struct {
	Model         string
	Evaluated     int
	Coverage      float64
	ExactMatch    float64
	AvgAccuracy   float64
	FieldAccuracy map[Field]float64
}

type FieldLeader struct {
	Field    Field
	Model    string
	Accuracy float64
}

type Disagreement struct {
	DiagramID string
	Model     string
	Field     Field
	Predicted any
	Expected  any
}

type MorphologicalReport struct {
	GroundTruthTotal int
	Models           []ModelMetrics
	Detailed         []Comparison
	BestPerField     []FieldLeader
	Disagreements    []Disagreement
	Unparseable      int
	UnknownDiagrams  []string
}

// EvaluateMorphological scores every consolidated prediction against the
// complete ground truth. Predictions that could not be parsed are not
// evaluated; predictions for diagrams without complete ground truth are
// ignored.
func EvaluateMorphological(preds domain.PredictionsFile, gt groundtruth.Morphological) MorphologicalReport {
	report := MorphologicalReport{GroundTruthTotal: len(gt.Annotations)}
	incomplete := map[string]bool{}
	for _, id := range gt.Incomplete {
		incomplete[id] = true
	}

	byModel := map[string][]Comparison{}
	unknown := map[string]bool{}
	for _, model := range modelNames(preds) {
		byModel[model] = nil
	}

	for _, p := range preds.Evaluations {
		truth, ok := gt.Annotations[p.DiagramID]
		if !ok {
			if !incomplete[p.DiagramID] && !unknown[p.DiagramID] {
				log.Printf("metrics warn diagram=%s reason=no_ground_truth", p.DiagramID)
				unknown[p.DiagramID] = true
			}
			continue
		}
		pred, ok := p.Prediction.(map[string]any)
		if !ok {
			log.Printf("metrics warn diagram=%s model=%q reason=unparseable_prediction", p.DiagramID, p.Model)
			report.Unparseable++
			continue
		}
		c := Compare(pred, truth)
		c.DiagramID = p.DiagramID
		c.Model = p.Model
		byModel[p.Model] = append(byModel[p.Model], c)
		report.Detailed = append(report.Detailed, c)

		for _, f := range Fields {
			if !c.Matches[f] {
				report.Disagreements = append(report.Disagreements, Disagreement{
					DiagramID: p.DiagramID,
					Model:     p.Model,
					Field:     f,
					Predicted: Value(pred, f),
					Expected:  Expected(truth, f),
				})
			}
		}
	}

	for model, comparisons := range byModel {
		report.Models = append(report.Models, aggregate(model, comparisons, report.GroundTruthTotal))
	}
	RankModels(report.Models)
	report.BestPerField = BestPerField(report.Models)
	report.UnknownDiagrams = sortedSet(unknown)

	sort.SliceStable(report.Detailed, func(i, j int) bool {
		if report.Detailed[i].DiagramID != report.Detailed[j].DiagramID {
			return report.Detailed[i].DiagramID < report.Detailed[j].DiagramID
		}
		return report.Detailed[i].Model < report.Detailed[j].Model
	})
	sort.SliceStable(report.Disagreements, func(i, j int) bool {
		a, b := report.Disagreements[i], report.Disagreements[j]
		if a.DiagramID != b.DiagramID {
			return a.DiagramID < b.DiagramID
		}
		return a.Model < b.Model
	})
	return report
}

func aggregate(model string, comparisons []Comparison, total int) ModelMetrics {
	m := ModelMetrics{
		Model:         model,
		Evaluated:     len(comparisons),
		FieldAccuracy: map[Field]float64{},
	}
	if total > 0 {
		m.Coverage = percent(float64(m.Evaluated), float64(total))
	}
	for _, f := range Fields {
		m.FieldAccuracy[f] = 0
	}
	n := float64(len(comparisons))
	if n == 0 {
		return m
	}

	var exact, accuracy float64
	matched := map[Field]float64{}
	for _, c := range comparisons {
		if c.ExactMatch {
			exact++
		}
		accuracy += c.Accuracy
		for _, f := range Fields {
			if c.Matches[f] {
				matched[f]++
			}
		}
	}
	m.ExactMatch = percent(exact, n)
	m.AvgAccuracy = percent(accuracy, n)
	for _, f := range Fields {
		m.FieldAccuracy[f] = percent(matched[f], n)
	}
	return m
}

// RankModels orders by exact match descending, then by each field accuracy
// in recorded order, then by model name.
func RankModels(models []ModelMetrics) {
	sort.SliceStable(models, func(i, j int) bool {
		a, b := models[i], models[j]
		if a.ExactMatch != b.ExactMatch {
			return a.ExactMatch > b.ExactMatch
		}
		for _, f := range Fields {
			if a.FieldAccuracy[f] != b.FieldAccuracy[f] {
				return a.FieldAccuracy[f] > b.FieldAccuracy[f]
			}
		}
		return a.Model < b.Model
	})
}

// BestPerField names the highest-scoring model for every field. Models with
// nothing evaluated are not candidates; equal scores go to the name that
// sorts first.
func BestPerField(models []ModelMetrics) []FieldLeader {
	var out []FieldLeader
	for _, f := range Fields {
		var best *ModelMetrics
		for i := range models {
			m := &models[i]
			if m.Evaluated == 0 {
				continue
			}
			if best == nil || m.FieldAccuracy[f] > best.FieldAccuracy[f] ||
				(m.FieldAccuracy[f] == best.FieldAccuracy[f] && m.Model < best.Model) {
				best = m
			}
		}
		if best != nil {
			out = append(out, FieldLeader{Field: f, Model: best.Model, Accuracy: best.FieldAccuracy[f]})
		}
	}
	return out
}

func modelNames(preds domain.PredictionsFile) []string {
	seen := map[string]bool{}
	for _, m := range preds.Metadata.Models {
		seen[m] = true
	}
	for _, p := range preds.Evaluations {
		seen[p.Model] = true
	}
	return sortedSet(seen)
}

func percent(part, whole float64) float64 {
	return round2(100 * part / whole)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
