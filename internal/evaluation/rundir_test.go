package evaluation

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"peircevlm/internal/domain"
)

func TestNewRunDirNamingAndCollision(t *testing.T) {
	evals := t.TempDir()
	model := domain.ModelConfig{Name: "gemini", ModelID: "google/gemini-3-pro-preview"}
	start := time.Date(2026, 1, 1, 12, 30, 45, 0, time.UTC)

	first, err := NewRunDir(evals, model, start)
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	want := filepath.Join(evals, "google", "gemini_3_pro_preview", "eval_20260101_123045")
	if first != want {
		t.Fatalf("unexpected run dir %s, want %s", first, want)
	}

	second, err := NewRunDir(evals, model, start)
	if err != nil {
		t.Fatalf("NewRunDir second: %v", err)
	}
	if second != want+"_2" {
		t.Fatalf("expected collision suffix, got %s", second)
	}
}

func TestLatestAndResolveRunDir(t *testing.T) {
	evals := t.TempDir()
	model := domain.ModelConfig{Name: "qwen", ModelID: "qwen2.5-vl-72b-instruct"}

	if _, err := LatestRunDir(evals, model); err == nil {
		t.Fatal("expected error when no runs exist")
	}

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var made []string
	for i, offset := range []time.Duration{0, time.Hour, time.Hour} {
		dir, err := NewRunDir(evals, model, base.Add(offset))
		if err != nil {
			t.Fatalf("NewRunDir %d: %v", i, err)
		}
		made = append(made, dir)
	}
	for i := 3; i <= 10; i++ {
		if _, err := NewRunDir(evals, model, base.Add(time.Hour)); err != nil {
			t.Fatalf("NewRunDir suffix %d: %v", i, err)
		}
	}

	latest, err := LatestRunDir(evals, model)
	if err != nil {
		t.Fatalf("LatestRunDir: %v", err)
	}
	if !strings.HasSuffix(latest, "eval_20260101_100000_10") {
		t.Fatalf("expected highest suffix to be latest, got %s", latest)
	}

	dir, resumed, err := ResolveRunDir(evals, model, "latest", "p", base)
	if err != nil || !resumed || dir != latest {
		t.Fatalf("ResolveRunDir latest = %s %t %v", dir, resumed, err)
	}
	dir, resumed, err = ResolveRunDir(evals, model, made[0], "p", base)
	if err != nil || !resumed || dir != made[0] {
		t.Fatalf("ResolveRunDir explicit = %s %t %v", dir, resumed, err)
	}
	if _, _, err := ResolveRunDir(evals, model, filepath.Join(evals, "nope"), "p", base); err == nil {
		t.Fatal("expected missing resume dir to fail")
	}
	dir, resumed, err = ResolveRunDir(evals, model, "", "p", base.Add(48*time.Hour))
	if err != nil || resumed || !strings.HasSuffix(dir, "eval_20260103_090000") {
		t.Fatalf("ResolveRunDir fresh = %s %t %v", dir, resumed, err)
	}
}

func TestResolveRunDirMatchesPrompt(t *testing.T) {
	evals := t.TempDir()
	model := domain.ModelConfig{Name: "claude", ModelID: "claude-sonnet-4-5-20250929"}
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	morph, err := NewRunDir(evals, model, base)
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	if err := writeJSONAtomic(filepath.Join(morph, SummaryFile), domain.RunSummary{Model: model.ModelID, Prompt: "describe cuts"}); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	// An interrupted run has result files but no summary.
	symbolic, err := NewRunDir(evals, model, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	if err := writeJSONAtomic(ResultPath(symbolic, "d1"), domain.ResultFile{Prompt: "interpret graph"}); err != nil {
		t.Fatalf("write result: %v", err)
	}

	if got, err := RunPrompt(symbolic); err != nil || got != "interpret graph" {
		t.Fatalf("RunPrompt from result file = %q %v", got, err)
	}

	dir, resumed, err := ResolveRunDir(evals, model, "latest", "describe cuts", base.Add(2*time.Hour))
	if err != nil || !resumed || dir != morph {
		t.Fatalf("latest for morphological prompt = %s %t %v, want %s", dir, resumed, err, morph)
	}

	dir, resumed, err = ResolveRunDir(evals, model, "latest", "transcribe", base.Add(2*time.Hour))
	if err != nil || resumed || !strings.HasSuffix(dir, "eval_20260201_100000") {
		t.Fatalf("latest with no matching run should start fresh, got %s %t %v", dir, resumed, err)
	}

	_, _, err = ResolveRunDir(evals, model, morph, "interpret graph", base)
	if !errors.Is(err, ErrPromptMismatch) {
		t.Fatalf("expected prompt mismatch for explicit dir, got %v", err)
	}
}

func TestFindMissing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"d1.json", "d3.json", "summary.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	completed, missing, err := FindMissing(dir, []string{"d3", "d2", "d1", "d4"})
	if err != nil {
		t.Fatalf("FindMissing: %v", err)
	}
	if !reflect.DeepEqual(completed, []string{"d1", "d3"}) {
		t.Fatalf("unexpected completed: %v", completed)
	}
	if !reflect.DeepEqual(missing, []string{"d2", "d4"}) {
		t.Fatalf("unexpected missing: %v", missing)
	}
}
