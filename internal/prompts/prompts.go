package prompts

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Morphological  = "morphological"
	Indexical      = "indexical"
	Symbolic       = "symbolic"
	Description    = "description"
	Classification = "classification"
	Transcription  = "transcription"
)

// CustomKey is the prompt name recorded for runs driven by free-form text.
const CustomKey = "custom"

var builtin = map[string]string{
	Morphological: `OUTPUT FORMAT: JSON only, no explanation.

Count visual elements in this diagram:
1. Cuts (closed curves): How many?
2. Lines (heavy lines): How many? Do any branch?
3. Spots (text labels): How many? What text?

JSON:
{"cuts":{"count":N,"nested":true/false},"lines":{"count":N,"branching":true/false},"spots":{"count":N,"labels":["..."]}}`,
	Indexical: "Is there a relationship between the elements present in the image? Which elements are connected to each other?",
	Symbolic: "In Peirce's diagrammatic logic, a closed curve called a cut represents logical negation. " +
		"Elements inside the same region are interpreted conjunctively (i.e., asserted together). " +
		"Elements placed directly on the background (the Sheet of Assertion) are considered true. " +
		"A cut around propositions denies them. Nested cuts represent nested negation. " +
		"Lines may indicate identity or existential quantification. " +
		"Based on these principles, interpret the diagram and translate its meaning into a logical statement. " +
		"If this is not possible, provide a clear explanation in natural language.",
	Description:    "Describe this diagram in detail, including its structure, content, and any visible text or labels.",
	Classification: "What type of diagram is this? (e.g., graph, chart, geometric figure, logical diagram, tree diagram, etc.)",
	Transcription:  "Transcribe any text, symbols, or mathematical notation visible in this diagram.",
}

// Registry maps prompt keys to prompt text. The zero value is not usable;
// build one with New or Load.
type Registry struct {
	prompts map[string]string
}

type overrideFile struct {
	Prompts map[string]string `yaml:"prompts"`
}

func New() *Registry {
	r := &Registry{prompts: make(map[string]string, len(builtin))}
	for k, v := range builtin {
		r.prompts[k] = v
	}
	return r
}

// Load returns the built-in registry with entries from an optional yaml
// file layered on top. An empty path skips the file.
func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	for key, text := range f.Prompts {
		key = strings.TrimSpace(key)
		text = strings.TrimSpace(text)
		if key == "" || text == "" {
			continue
		}
		if key == CustomKey {
			return nil, fmt.Errorf("prompt key %q is reserved", CustomKey)
		}
		r.prompts[key] = text
	}
	return r, nil
}

func (r *Registry) Get(key string) (string, bool) {
	text, ok := r.prompts[key]
	return text, ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.prompts))
	for k := range r.prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve picks the prompt for a run. Custom text wins over the key and is
// reported under CustomKey.
func (r *Registry) Resolve(key, custom string) (name, text string, err error) {
	if custom = strings.TrimSpace(custom); custom != "" {
		return CustomKey, custom, nil
	}
	text, ok := r.prompts[key]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt '%s' (available: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return key, text, nil
}
