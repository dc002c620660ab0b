package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"peircevlm/internal/domain"
	"peircevlm/internal/metrics"
)

// MetricsPaths returns the aggregated and detailed CSV paths for a level.
func MetricsPaths(statsDir string, level domain.Level) (aggregated, detailed string) {
	return filepath.Join(statsDir, fmt.Sprintf("%s_metrics.csv", level)),
		filepath.Join(statsDir, fmt.Sprintf("%s_metrics_detailed.csv", level))
}

const (
	agreementFile        = "vlm_evaluation_comparison.csv"
	agreementSummaryFile = "vlm_evaluation_summary.csv"
)

// WriteMorphologicalMetrics writes the ranked per-model table and the
// per-diagram table and returns their paths.
func WriteMorphologicalMetrics(statsDir string, r metrics.MorphologicalReport) (string, string, error) {
	aggPath, detailedPath := MetricsPaths(statsDir, domain.LevelMorphological)

	header := []string{"model", "evaluated_diagrams", "coverage", "exact_match", "avg_accuracy"}
	for _, f := range metrics.Fields {
		header = append(header, string(f)+"_acc")
	}
	rows := [][]string{header}
	for _, m := range r.Models {
		row := []string{m.Model, strconv.Itoa(m.Evaluated), pct(m.Coverage), pct(m.ExactMatch), pct(m.AvgAccuracy)}
		for _, f := range metrics.Fields {
			row = append(row, pct(m.FieldAccuracy[f]))
		}
		rows = append(rows, row)
	}
	if err := writeCSV(aggPath, rows); err != nil {
		return "", "", err
	}

	header = []string{"diagram_id", "model"}
	for _, f := range metrics.Fields {
		header = append(header, string(f))
	}
	header = append(header, "exact_match", "accuracy")
	rows = [][]string{header}
	for _, c := range r.Detailed {
		row := []string{c.DiagramID, c.Model}
		for _, f := range metrics.Fields {
			row = append(row, strconv.FormatBool(c.Matches[f]))
		}
		row = append(row, strconv.FormatBool(c.ExactMatch), strconv.FormatFloat(c.Accuracy, 'f', 4, 64))
		rows = append(rows, row)
	}
	if err := writeCSV(detailedPath, rows); err != nil {
		return "", "", err
	}
	return aggPath, detailedPath, nil
}

func WriteTextMetrics(statsDir string, r metrics.TextReport) (string, string, error) {
	aggPath, detailedPath := MetricsPaths(statsDir, r.Level)

	rows := [][]string{{"model", "evaluated_diagrams", "coverage", "char_similarity", "word_accuracy"}}
	for _, m := range r.Models {
		rows = append(rows, []string{m.Model, strconv.Itoa(m.Evaluated), pct(m.Coverage), pct(m.CharSimilarity), pct(m.WordAccuracy)})
	}
	if err := writeCSV(aggPath, rows); err != nil {
		return "", "", err
	}

	rows = [][]string{{"diagram_id", "model", "char_similarity", "word_accuracy"}}
	for _, s := range r.Detailed {
		rows = append(rows, []string{s.DiagramID, s.Model,
			strconv.FormatFloat(s.CharSimilarity, 'f', 4, 64), strconv.FormatFloat(s.WordAccuracy, 'f', 4, 64)})
	}
	if err := writeCSV(detailedPath, rows); err != nil {
		return "", "", err
	}
	return aggPath, detailedPath, nil
}

// WriteAgreement writes the per-diagram agreement table and the summary
// percentages.
func WriteAgreement(statsDir string, r metrics.AgreementReport) (string, string, error) {
	perDiagram := filepath.Join(statsDir, agreementFile)
	summary := filepath.Join(statsDir, agreementSummaryFile)

	header := []string{"diagram_id", "num_models"}
	for _, f := range metrics.AgreementFields {
		name := agreementName(f)
		header = append(header, name+"_agreement", name+"_values")
	}
	rows := [][]string{header}
	for _, d := range r.Diagrams {
		row := []string{d.DiagramID, strconv.Itoa(d.Models)}
		for _, f := range metrics.AgreementFields {
			agree := ""
			if d.Answered[f] {
				agree = strconv.FormatBool(d.Agree[f])
			}
			row = append(row, agree, d.Values[f])
		}
		rows = append(rows, row)
	}
	if err := writeCSV(perDiagram, rows); err != nil {
		return "", "", err
	}

	rows = [][]string{
		{"metric", "value", "percentage"},
		{"Total diagrams compared", strconv.Itoa(len(r.Diagrams)), "100.00"},
	}
	for _, f := range metrics.AgreementFields {
		rows = append(rows, []string{
			fmt.Sprintf("%s count agreement", titleCase(agreementName(f))),
			strconv.Itoa(r.Agreed[f]),
			pct(r.Percent(f)),
		})
	}
	if err := writeCSV(summary, rows); err != nil {
		return "", "", err
	}
	return perDiagram, summary, nil
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
