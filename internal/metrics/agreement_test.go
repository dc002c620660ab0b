package metrics

import (
	"testing"

	"peircevlm/internal/domain"
)

func TestAgreement(t *testing.T) {
	preds := domain.PredictionsFile{Evaluations: []domain.ConsolidatedPrediction{
		prediction("d1", "A", predMap(2, true, 1, false, 3)),
		prediction("d1", "B", map[string]any{
			"cuts":  map[string]any{"count": float64(2)},
			"lines": map[string]any{"count": 2},
			"spots": map[string]any{"count": nil},
		}),
		prediction("d2", "A", predMap(1, false, 0, false, 0)),
		prediction("d2", "B", nil),
		prediction("d3", "A", map[string]any{}),
		prediction("d3", "B", map[string]any{}),
	}}

	report := Agreement(preds)
	if len(report.Diagrams) != 2 {
		t.Fatalf("expected d1 and d3 to be compared, got %+v", report.Diagrams)
	}
	d1 := report.Diagrams[0]
	if !d1.Agree[FieldCutsCount] || d1.Agree[FieldLinesCount] || !d1.Agree[FieldSpotsCount] {
		t.Fatalf("unexpected agreement for d1: %+v", d1.Agree)
	}
	if d1.Values[FieldLinesCount] != "A: 1, B: 2" {
		t.Fatalf("unexpected values: %q", d1.Values[FieldLinesCount])
	}
	d3 := report.Diagrams[1]
	if d3.Answered[FieldCutsCount] || d3.Disagrees(FieldCutsCount) {
		t.Fatalf("a field nobody answered is neither agreement nor disagreement: %+v", d3)
	}
	if report.Compared[FieldCutsCount] != 1 || report.Percent(FieldCutsCount) != 100 {
		t.Fatalf("unanswered diagrams must leave the denominator: compared=%d percent=%v",
			report.Compared[FieldCutsCount], report.Percent(FieldCutsCount))
	}
	if report.Compared[FieldLinesCount] != 1 || report.Percent(FieldLinesCount) != 0 {
		t.Fatalf("unexpected lines agreement: %v", report.Percent(FieldLinesCount))
	}
	got := report.Disagreements()
	if len(got) != 1 || got[0].DiagramID != "d1" {
		t.Fatalf("expected only d1 listed as a disagreement, got %+v", got)
	}
}
