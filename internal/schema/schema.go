package schema

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

type Kind string

const (
	MorphologicalDiagram Kind = "morphological_diagram"
	MorphologicalFile    Kind = "morphological_file"
	TextDiagram          Kind = "text_diagram"
	TextFile             Kind = "text_file"
	Predictions          Kind = "predictions"
)

// Validate checks a JSON document against one of the embedded schemas and
// returns the violations. A nil slice means the document is valid.
func Validate(kind Kind, doc []byte) ([]string, error) {
	raw, err := schemaFiles.ReadFile("schemas/" + string(kind) + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %s: %w", kind, err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(raw), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", kind, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

// Check is Validate folded into a single error.
func Check(kind Kind, doc []byte, name string) error {
	violations, err := Validate(kind, doc)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("%s does not match %s schema: %s", name, kind, strings.Join(violations, "; "))
	}
	return nil
}
