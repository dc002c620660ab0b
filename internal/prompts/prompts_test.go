package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveBuiltinAndCustom(t *testing.T) {
	r := New()

	name, text, err := r.Resolve(Morphological, "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if name != Morphological || !strings.HasPrefix(text, "OUTPUT FORMAT: JSON only") {
		t.Fatalf("unexpected morphological prompt: %s %q", name, text)
	}

	name, text, err = r.Resolve(Morphological, "  Count the cuts.  ")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if name != CustomKey || text != "Count the cuts." {
		t.Fatalf("expected custom prompt to win, got %s %q", name, text)
	}

	if _, _, err := r.Resolve("semantic", ""); err == nil || !strings.Contains(err.Error(), "available: classification") {
		t.Fatalf("expected unknown prompt error listing keys, got %v", err)
	}
}

func TestRegistryHasAllLevels(t *testing.T) {
	r := New()
	for _, key := range []string{Morphological, Indexical, Symbolic, Description, Classification, Transcription} {
		if text, ok := r.Get(key); !ok || text == "" {
			t.Fatalf("missing prompt %s", key)
		}
	}
	if len(r.Keys()) != 6 {
		t.Fatalf("expected 6 built-in prompts, got %v", r.Keys())
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `
prompts:
  symbolic: "EXISTENTIAL GRAPH INTERPRETATION: read the graph."
  regions: "How many regions does the sheet have?"
  empty: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if text, _ := r.Get(Symbolic); !strings.HasPrefix(text, "EXISTENTIAL GRAPH") {
		t.Fatalf("expected symbolic override, got %q", text)
	}
	if _, ok := r.Get("regions"); !ok {
		t.Fatal("expected added prompt")
	}
	if _, ok := r.Get("empty"); ok {
		t.Fatal("empty prompt text should be ignored")
	}
	if text, _ := r.Get(Indexical); !strings.HasPrefix(text, "Is there a relationship") {
		t.Fatalf("built-in prompt lost: %q", text)
	}
}

func TestLoadRejectsReservedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("prompts:\n  custom: hi\n"), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected reserved key to fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected missing prompts file to fail")
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("empty path should use built-ins: %v", err)
	}
}
