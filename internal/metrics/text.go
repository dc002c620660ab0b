package metrics

import (
	"log"
	"sort"
	"strings"

	"peircevlm/internal/domain"
	"peircevlm/internal/groundtruth"
)

// TextScore compares one free-text prediction to its reference.
type TextScore struct {
	DiagramID      string
	Model          string
	CharSimilarity float64
	WordAccuracy   float64
}

type TextModelMetrics struct {
	Model          string
	Evaluated      int
	Coverage       float64
	CharSimilarity float64
	WordAccuracy   float64
}

type TextReport struct {
	Level            domain.Level
	GroundTruthTotal int
	Models           []TextModelMetrics
	Detailed         []TextScore
	Missing          int
}

// ScoreText returns character similarity (1 - normalized Levenshtein
// distance) and word accuracy (1 - word error rate, floored at 0) after
// lower-casing and collapsing whitespace.
func ScoreText(reference, predicted string) (charSimilarity, wordAccuracy float64) {
	ref, pred := normalizeText(reference), normalizeText(predicted)
	charSimilarity = similarity([]rune(ref), []rune(pred))

	refWords, predWords := strings.Fields(ref), strings.Fields(pred)
	if len(refWords) == 0 {
		if len(predWords) == 0 {
			return charSimilarity, 1
		}
		return charSimilarity, 0
	}
	wer := float64(editDistance(refWords, predWords)) / float64(len(refWords))
	return charSimilarity, max(0, 1-wer)
}

// EvaluateText scores indexical or symbolic predictions. Blank or
// non-string predictions are counted as missing, not evaluated.
func EvaluateText(level domain.Level, preds domain.PredictionsFile, gt groundtruth.Text) TextReport {
	report := TextReport{Level: level, GroundTruthTotal: len(gt.Annotations)}
	byModel := map[string][]TextScore{}
	for _, model := range modelNames(preds) {
		byModel[model] = nil
	}

	for _, p := range preds.Evaluations {
		reference, ok := gt.Annotations[p.DiagramID]
		if !ok {
			continue
		}
		text, ok := p.Prediction.(string)
		if !ok || strings.TrimSpace(text) == "" {
			log.Printf("metrics warn diagram=%s model=%q reason=empty_prediction", p.DiagramID, p.Model)
			report.Missing++
			continue
		}
		chars, words := ScoreText(reference, text)
		s := TextScore{DiagramID: p.DiagramID, Model: p.Model, CharSimilarity: chars, WordAccuracy: words}
		byModel[p.Model] = append(byModel[p.Model], s)
		report.Detailed = append(report.Detailed, s)
	}

	for model, scores := range byModel {
		m := TextModelMetrics{Model: model, Evaluated: len(scores)}
		if report.GroundTruthTotal > 0 {
			m.Coverage = percent(float64(m.Evaluated), float64(report.GroundTruthTotal))
		}
		if n := float64(len(scores)); n > 0 {
			var chars, words float64
			for _, s := range scores {
				chars += s.CharSimilarity
				words += s.WordAccuracy
			}
			m.CharSimilarity = percent(chars, n)
			m.WordAccuracy = percent(words, n)
		}
		report.Models = append(report.Models, m)
	}
	sort.SliceStable(report.Models, func(i, j int) bool {
		a, b := report.Models[i], report.Models[j]
		if a.CharSimilarity != b.CharSimilarity {
			return a.CharSimilarity > b.CharSimilarity
		}
		if a.WordAccuracy != b.WordAccuracy {
			return a.WordAccuracy > b.WordAccuracy
		}
		return a.Model < b.Model
	})
	sort.SliceStable(report.Detailed, func(i, j int) bool {
		if report.Detailed[i].DiagramID != report.Detailed[j].DiagramID {
			return report.Detailed[i].DiagramID < report.Detailed[j].DiagramID
		}
		return report.Detailed[i].Model < report.Detailed[j].Model
	})
	return report
}

func normalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(a, b))/float64(longest)
}

// editDistance is the Levenshtein distance over any comparable tokens,
// runes for character similarity and words for word error rate.
func editDistance[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
