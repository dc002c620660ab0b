package consolidate

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var morphologyKeys = []string{"cuts", "lines", "spots"}

// ExtractMorphology pulls the JSON object out of a morphological response.
// It tries a fenced code block, then the whole trimmed text, then the first
// balanced {...} span that carries the cuts/lines/spots keys. It returns nil
// when nothing parses.
func ExtractMorphology(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if v := decodeObject(m[1]); v != nil {
			return v
		}
	}
	if v := decodeObject(text); v != nil {
		return v
	}
	for _, span := range balancedObjects(text) {
		v := decodeObject(span)
		if v != nil && hasKeys(v, morphologyKeys) {
			return v
		}
	}
	return nil
}

// decodeObject parses a JSON object, turning integral numbers into int and
// the rest into float64.
func decodeObject(s string) map[string]any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v map[string]any
	if err := dec.Decode(&v); err != nil || v == nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	return normalizeNumbers(v).(map[string]any)
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			if f == float64(int(f)) {
				return int(f)
			}
			return f
		}
		return t.String()
	}
	return v
}

func hasKeys(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// balancedObjects returns every top-level {...} span in s, skipping braces
// inside JSON strings.
func balancedObjects(s string) []string {
	var spans []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, s[start:i+1])
			}
		}
	}
	return spans
}
