package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"peircevlm/internal/domain"
)

// Field is one scored morphological attribute.
type Field string

const (
	FieldCutsCount      Field = "cuts_count"
	FieldCutsNested     Field = "cuts_nested"
	FieldLinesCount     Field = "lines_count"
	FieldLinesBranching Field = "lines_branching"
	FieldSpotsCount     Field = "spots_count"
	FieldSpotsLabels    Field = "spots_labels"
)

// Fields lists the scored fields in recorded order. Ranking tie-breaks and
// table columns follow this order.
var Fields = []Field{
	FieldCutsCount, FieldCutsNested,
	FieldLinesCount, FieldLinesBranching,
	FieldSpotsCount, FieldSpotsLabels,
}

// Comparison is the field-by-field result for one (diagram, model) pair.
type Comparison struct {
	DiagramID  string
	Model      string
	Matches    map[Field]bool
	ExactMatch bool
	Accuracy   float64
}

// Compare scores a decoded morphological prediction against complete ground
// truth. Scalars need strict equality and an absent or null value on the
// prediction side is a mismatch. Labels compare as case-folded, trimmed sets.
func Compare(pred map[string]any, gt domain.Morphology) Comparison {
	cuts := object(pred["cuts"])
	lines := object(pred["lines"])
	spots := object(pred["spots"])

	matches := map[Field]bool{
		FieldCutsCount:      intEquals(cuts["count"], gt.Cuts.Count),
		FieldCutsNested:     boolEquals(cuts["nested"], gt.Cuts.Nested),
		FieldLinesCount:     intEquals(lines["count"], gt.Lines.Count),
		FieldLinesBranching: boolEquals(lines["branching"], gt.Lines.Branching),
		FieldSpotsCount:     intEquals(spots["count"], gt.Spots.Count),
		FieldSpotsLabels:    labelsEqual(spots["labels"], gt.Spots.Labels),
	}

	matched := 0
	for _, f := range Fields {
		if matches[f] {
			matched++
		}
	}
	return Comparison{
		Matches:    matches,
		ExactMatch: matched == len(Fields),
		Accuracy:   float64(matched) / float64(len(Fields)),
	}
}

// Value returns the predicted value of a field for reporting, nil if absent.
func Value(pred map[string]any, f Field) any {
	switch f {
	case FieldCutsCount:
		return object(pred["cuts"])["count"]
	case FieldCutsNested:
		return object(pred["cuts"])["nested"]
	case FieldLinesCount:
		return object(pred["lines"])["count"]
	case FieldLinesBranching:
		return object(pred["lines"])["branching"]
	case FieldSpotsCount:
		return object(pred["spots"])["count"]
	case FieldSpotsLabels:
		return object(pred["spots"])["labels"]
	}
	return nil
}

// Expected returns the ground-truth value of a field for reporting.
func Expected(gt domain.Morphology, f Field) any {
	switch f {
	case FieldCutsCount:
		return derefInt(gt.Cuts.Count)
	case FieldCutsNested:
		return derefBool(gt.Cuts.Nested)
	case FieldLinesCount:
		return derefInt(gt.Lines.Count)
	case FieldLinesBranching:
		return derefBool(gt.Lines.Branching)
	case FieldSpotsCount:
		return derefInt(gt.Spots.Count)
	case FieldSpotsLabels:
		return gt.Spots.Labels
	}
	return nil
}

// NormalizeLabels folds case, trims whitespace and drops duplicates. The
// result is sorted so it can be printed deterministically.
func NormalizeLabels(labels []string) []string {
	set := map[string]struct{}{}
	for _, l := range labels {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func labelsEqual(pred any, gt []string) bool {
	var predLabels []string
	switch v := pred.(type) {
	case nil:
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return false
			}
			predLabels = append(predLabels, s)
		}
	case []string:
		predLabels = v
	default:
		return false
	}
	a, b := NormalizeLabels(predLabels), NormalizeLabels(gt)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intEquals(pred any, gt *int) bool {
	if gt == nil {
		return false
	}
	n, ok := number(pred)
	return ok && n == float64(*gt)
}

func boolEquals(pred any, gt *bool) bool {
	if gt == nil {
		return false
	}
	b, ok := pred.(bool)
	return ok && b == *gt
}

// number accepts the numeric shapes a decoded prediction can carry: int from
// consolidation, float64 or json.Number after a round trip through a file.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

// FormatValue renders a field value for tables and disagreement listings.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case []string:
		return strings.Join(x, "|")
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "|")
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
	}
	return fmt.Sprint(v)
}
