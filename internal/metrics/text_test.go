package metrics

import (
	"math"
	"testing"

	"peircevlm/internal/domain"
	"peircevlm/internal/groundtruth"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"intention", "execution", 5},
		{"Saturday", "Sunday", 3},
		{"négation", "negation", 1},
	}
	for _, tt := range tests {
		if got := editDistance([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("editDistance(%q, %q) = %d; want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestScoreText(t *testing.T) {
	chars, words := ScoreText("It is not the case that P", "it  is NOT the case that P")
	if chars != 1 || words != 1 {
		t.Fatalf("normalized texts should be identical, got %v %v", chars, words)
	}

	chars, words = ScoreText("some man is wounded", "some man is not wounded")
	if words != 0.75 {
		t.Fatalf("expected one insertion over four words, got %v", words)
	}
	if math.Abs(chars-(1-4.0/23.0)) > 1e-9 {
		t.Fatalf("unexpected character similarity %v", chars)
	}

	_, words = ScoreText("a", "x y z w")
	if words != 0 {
		t.Fatalf("word accuracy must not go negative, got %v", words)
	}
}

func TestEvaluateText(t *testing.T) {
	gt := groundtruth.Text{Annotations: map[string]string{"d1": "P and Q", "d2": "not P"}}
	preds := domain.PredictionsFile{Evaluations: []domain.ConsolidatedPrediction{
		prediction("d1", "A", "P and Q"),
		prediction("d2", "A", "   "),
		prediction("d1", "B", "P or Q"),
		prediction("d2", "B", "not P"),
	}}

	report := EvaluateText(domain.LevelSymbolic, preds, gt)
	if report.Missing != 1 {
		t.Fatalf("expected one blank prediction, got %d", report.Missing)
	}
	if len(report.Models) != 2 || report.Models[0].Model != "A" {
		t.Fatalf("unexpected ranking: %+v", report.Models)
	}
	a := report.Models[0]
	if a.Evaluated != 1 || a.Coverage != 50 || a.CharSimilarity != 100 || a.WordAccuracy != 100 {
		t.Fatalf("unexpected model A metrics: %+v", a)
	}
	if report.Models[1].Evaluated != 2 || report.Models[1].Coverage != 100 {
		t.Fatalf("unexpected model B metrics: %+v", report.Models[1])
	}
}
