package groundtruth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"peircevlm/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMorphologicalFileSkipsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ground_truth_morphological.json")
	writeFile(t, path, `{"diagrams":[
		{"diagram_id":"d1","cuts":{"count":2,"nested":true},"lines":{"count":1,"branching":false},"spots":{"count":2,"labels":["man","wounded"]}},
		{"diagram_id":"d2","cuts":{"count":null,"nested":null},"lines":{"count":null,"branching":null},"spots":{"count":null,"labels":[]}},
		{"diagram_id":"d3","cuts":{"count":0,"nested":false},"lines":{"count":2,"branching":true},"spots":{"count":0,"labels":null}}
	]}`)

	gt, err := LoadMorphological(path)
	if err != nil {
		t.Fatalf("LoadMorphological: %v", err)
	}
	if !reflect.DeepEqual(gt.IDs(), []string{"d1", "d3"}) {
		t.Fatalf("unexpected complete ids: %v", gt.IDs())
	}
	if !reflect.DeepEqual(gt.Incomplete, []string{"d2"}) {
		t.Fatalf("unexpected incomplete ids: %v", gt.Incomplete)
	}
	d1 := gt.Annotations["d1"]
	if *d1.Cuts.Count != 2 || !*d1.Cuts.Nested || len(d1.Spots.Labels) != 2 {
		t.Fatalf("unexpected d1: %+v", d1)
	}
}

func TestLoadMorphologicalDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "morphological")
	writeFile(t, filepath.Join(dir, "ms_p_0.json"), `{"cuts":{"count":1,"nested":false},"lines":{"count":0,"branching":false},"spots":{"count":1,"labels":["P"]}}`)
	writeFile(t, filepath.Join(dir, "ms_p_1.json"), `{"cuts":{"count":null,"nested":null},"lines":{"count":null,"branching":null},"spots":{"count":null,"labels":[]}}`)
	writeFile(t, filepath.Join(dir, "ms_p_0.jpg"), "img")

	gt, err := LoadMorphological(dir)
	if err != nil {
		t.Fatalf("LoadMorphological: %v", err)
	}
	if len(gt.Annotations) != 1 || len(gt.Incomplete) != 1 {
		t.Fatalf("unexpected load result: %+v", gt)
	}
}

func TestLoadMorphologicalRejectsSchemaViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gt.json")
	writeFile(t, path, `{"diagrams":[{"diagram_id":"d1","cuts":{"count":"2","nested":true},"lines":{"count":1,"branching":false},"spots":{"count":0}}]}`)
	if _, err := LoadMorphological(path); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}

	dup := filepath.Join(t.TempDir(), "dup.json")
	entry := `{"diagram_id":"d1","cuts":{"count":1,"nested":true},"lines":{"count":1,"branching":false},"spots":{"count":0,"labels":[]}}`
	writeFile(t, dup, `{"diagrams":[`+entry+`,`+entry+`]}`)
	if _, err := LoadMorphological(dup); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ground_truth_symbolic.json")
	writeFile(t, path, `{"diagrams":[{"diagram_id":"d1","text":"It is not the case that P."},{"diagram_id":"d2","text":null},{"diagram_id":"d3","text":"  "}]}`)
	gt, err := LoadText(path)
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if !reflect.DeepEqual(gt.IDs(), []string{"d1"}) || !reflect.DeepEqual(gt.Incomplete, []string{"d2", "d3"}) {
		t.Fatalf("unexpected text gt: %+v", gt)
	}
}

func TestResolvePath(t *testing.T) {
	gtDir := t.TempDir()
	if _, err := ResolvePath(gtDir, domain.LevelIndexical); err == nil {
		t.Fatal("expected error without ground truth")
	}
	writeFile(t, filepath.Join(LevelDir(gtDir, domain.LevelIndexical), "d.json"), `{"text":"x"}`)
	if p, err := ResolvePath(gtDir, domain.LevelIndexical); err != nil || p != LevelDir(gtDir, domain.LevelIndexical) {
		t.Fatalf("expected level dir, got %s %v", p, err)
	}
	writeFile(t, ConsolidatedFile(gtDir, domain.LevelIndexical), `{"diagrams":[]}`)
	if p, err := ResolvePath(gtDir, domain.LevelIndexical); err != nil || p != ConsolidatedFile(gtDir, domain.LevelIndexical) {
		t.Fatalf("expected consolidated file to win, got %s %v", p, err)
	}
}

func TestLoadPredictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "morphological_predictions.json")
	writeFile(t, path, `{"evaluations":[{"diagram_id":"d1","model":"Claude Sonnet 4.5","model_id":"c","prediction":{"cuts":{"count":2}},"timestamp":"t"}],
		"metadata":{"total_evaluations":1,"models":["Claude Sonnet 4.5"],"evaluation_type":"morphological","source":"s","format_version":"1.0"}}`)
	f, err := LoadPredictions(path)
	if err != nil {
		t.Fatalf("LoadPredictions: %v", err)
	}
	if len(f.Evaluations) != 1 || f.Metadata.EvaluationType != domain.LevelMorphological {
		t.Fatalf("unexpected predictions: %+v", f)
	}
}

func TestSetupCreatesTemplatesWithoutOverwriting(t *testing.T) {
	root := t.TempDir()
	crop := filepath.Join(root, "crops", "p_cls0_0.jpg")
	writeFile(t, crop, "jpeg-bytes")
	runDir := filepath.Join(root, "run")
	result, _ := json.Marshal(map[string]any{"crop_path": crop, "evaluation": "x"})
	writeFile(t, filepath.Join(runDir, "ms_p_0.json"), string(result))
	missing, _ := json.Marshal(map[string]any{"crop_path": filepath.Join(root, "gone.jpg")})
	writeFile(t, filepath.Join(runDir, "ms_p_9.json"), string(missing))
	writeFile(t, filepath.Join(runDir, "summary.json"), "{}")

	gtDir := filepath.Join(root, "gt")
	annotated := `{"cuts":{"count":3,"nested":true},"lines":{"count":0,"branching":false},"spots":{"count":0,"labels":[]}}`
	writeFile(t, filepath.Join(LevelDir(gtDir, domain.LevelMorphological), "ms_p_0.json"), annotated)

	stats, err := Setup(runDir, gtDir)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if stats.Diagrams != 1 || stats.ImagesCopied != 3 || stats.TemplatesMade != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !reflect.DeepEqual(stats.MissingImages, []string{"ms_p_9"}) {
		t.Fatalf("unexpected missing images: %v", stats.MissingImages)
	}

	kept, _ := os.ReadFile(filepath.Join(LevelDir(gtDir, domain.LevelMorphological), "ms_p_0.json"))
	if string(kept) != annotated {
		t.Fatalf("existing annotation was overwritten: %s", kept)
	}
	tmpl, _ := os.ReadFile(filepath.Join(LevelDir(gtDir, domain.LevelSymbolic), "ms_p_0.json"))
	if !strings.Contains(string(tmpl), `"text": null`) {
		t.Fatalf("unexpected symbolic template: %s", tmpl)
	}
	if _, err := os.Stat(filepath.Join(LevelDir(gtDir, domain.LevelIndexical), "ms_p_0.jpg")); err != nil {
		t.Fatalf("expected copied crop: %v", err)
	}

	// The fresh morphological template must load as incomplete.
	os.Remove(filepath.Join(LevelDir(gtDir, domain.LevelMorphological), "ms_p_0.json"))
	if _, err := Setup(runDir, gtDir); err != nil {
		t.Fatalf("Setup again: %v", err)
	}
	gt, err := LoadMorphological(LevelDir(gtDir, domain.LevelMorphological))
	if err != nil {
		t.Fatalf("LoadMorphological on templates: %v", err)
	}
	if len(gt.Annotations) != 0 || len(gt.Incomplete) != 1 {
		t.Fatalf("expected blank template to be incomplete, got %+v", gt)
	}
}
