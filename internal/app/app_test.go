package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"peircevlm/internal/config"
	"peircevlm/internal/domain"
	"peircevlm/internal/evaluation"
)

const testStem = "D._Logic__hou02614c00458__seq15"

type fakeEvaluator struct {
	mu        sync.Mutex
	calls     int
	responses map[string]string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, imagePath, _ string, model domain.ModelConfig) domain.EvaluationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.SucceededResult(model.ModelID, f.responses[filepath.Base(imagePath)], testNow())
}

type workspace struct {
	dir        string
	configPath string
	evaluator  *fakeEvaluator
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "OPENROUTER_API_KEY", "ACADEMICCLOUD_API_KEY",
		"REQUEST_DELAY_SECONDS", "EXTERNAL_HTTP_TIMEOUT_SECONDS", "SLACK_BOT_TOKEN", "SLACK_CHANNEL_ID",
		"SLACK_WEBHOOK_URL", "SCHEDULE_MODELS", "EVALUATIONS_DIR", "SEGMENTS_INDEX_PATH", "CROPS_DIR",
		"GROUND_TRUTH_DIR", "STATISTICS_DIR", "DB_PATH", "PROMPTS_PATH", "EVALUATION_SCHEDULE", "CONFIG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()

	header := "segment_class,segment_class_id,segment_index,page_filename,manuscript_id,x,y,width,height,canvas_uri,category_level_1,category_level_2\n"
	rows := "diagram,0,0," + testStem + ".jpg,hou02614c00458,1,2,3,4,https://iiif/canvas/15,Logic,Graphs\n" +
		"diagram,0,1," + testStem + ".jpg,hou02614c00458,5,6,7,8,https://iiif/canvas/15,Logic,Graphs\n"
	writeTestFile(t, filepath.Join(dir, "index.csv"), header+rows)
	for _, idx := range []string{"0", "1"} {
		writeTestFile(t, filepath.Join(dir, "crops", "cropped", testStem, testStem+"_cls0_"+idx+".jpg"), "jpeg")
	}

	configPath := filepath.Join(dir, "config.yaml")
	writeTestFile(t, configPath, strings.Join([]string{
		"segments_index_path: " + filepath.Join(dir, "index.csv"),
		"crops_dir: " + filepath.Join(dir, "crops"),
		"evaluations_dir: " + filepath.Join(dir, "evals"),
		"ground_truth_dir: " + filepath.Join(dir, "gt"),
		"statistics_dir: " + filepath.Join(dir, "stats"),
		"db_path: " + filepath.Join(dir, "evaluations.db"),
		"request_delay_seconds: 30",
	}, "\n")+"\n")

	return &workspace{
		dir:        dir,
		configPath: configPath,
		evaluator: &fakeEvaluator{responses: map[string]string{
			testStem + "_cls0_0.jpg": "```json\n{\"cuts\":{\"count\":2,\"nested\":true},\"lines\":{\"count\":1,\"branching\":false},\"spots\":{\"count\":2,\"labels\":[\"Wounded\",\"man\"]}}\n```",
			testStem + "_cls0_1.jpg": `{"cuts":{"count":1,"nested":false},"lines":{"count":3,"branching":true},"spots":{"count":0,"labels":[]}}`,
		}},
	}
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.httpClient = http.DefaultClient
	a.now = testNow
	a.newEvaluator = func(config.Config, *http.Client) evaluation.Evaluator { return w.evaluator }

	var out bytes.Buffer
	root := newRootCommand(a)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", w.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func exitCode(err error) int {
	var ce cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}

func TestEvaluatePreflightFailsBeforeAnyRequest(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "evaluate", "gpt-2")
	if err == nil || exitCode(err) != exitConfig || !strings.Contains(err.Error(), "unknown model") {
		t.Fatalf("expected config error for unknown model, got %v", err)
	}

	_, err = w.run(t, "evaluate", "claude")
	if err == nil || exitCode(err) != exitConfig || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing credential error, got %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	_, err = w.run(t, "evaluate", "claude", "--prompt", "haiku")
	if err == nil || exitCode(err) != exitConfig {
		t.Fatalf("expected unknown prompt error, got %v", err)
	}

	if w.evaluator.calls != 0 {
		t.Fatalf("expected no evaluator calls, got %d", w.evaluator.calls)
	}
	if _, err := os.Stat(filepath.Join(w.dir, "evals")); !os.IsNotExist(err) {
		t.Fatalf("pre-flight failures must not create run directories: %v", err)
	}
}

func TestPipelineEvaluateConsolidateCompare(t *testing.T) {
	w := newWorkspace(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	out, err := w.run(t, "evaluate", "claude", "--delay", "0")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(out, "2 diagrams, 2 successful, 0 failed") || w.evaluator.calls != 2 {
		t.Fatalf("unexpected evaluate output (calls=%d):\n%s", w.evaluator.calls, out)
	}

	if _, err := w.run(t, "evaluate", "claude", "--delay", "0", "--resume", "latest"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if w.evaluator.calls != 2 {
		t.Fatalf("resumed run must not call the model again, got %d calls", w.evaluator.calls)
	}

	out, err = w.run(t, "runs", "claude")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 2 {
		t.Fatalf("expected two recorded runs:\n%s", out)
	}

	out, err = w.run(t, "missing", "claude", "--from", "index")
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	if !strings.Contains(out, "2/2 completed") {
		t.Fatalf("unexpected missing output:\n%s", out)
	}

	if _, err := w.run(t, "consolidate", "morphological"); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	predPath := filepath.Join(w.dir, "gt", "morphological_predictions.json")
	if _, err := os.Stat(predPath); err != nil {
		t.Fatalf("expected predictions file: %v", err)
	}

	id0 := "hou02614c00458_" + testStem + "_0"
	id1 := "hou02614c00458_" + testStem + "_1"
	writeTestFile(t, filepath.Join(w.dir, "gt", "ground_truth_morphological.json"), `{"diagrams":[
		{"diagram_id":"`+id0+`","cuts":{"count":2,"nested":true},"lines":{"count":1,"branching":false},"spots":{"count":2,"labels":["man","wounded"]}},
		{"diagram_id":"`+id1+`","cuts":{"count":1,"nested":false},"lines":{"count":2,"branching":true},"spots":{"count":0,"labels":[]}}
	]}`)

	out, err = w.run(t, "compare", "morphological")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	for _, want := range []string{"Best performing model: Claude Sonnet 4.5 (50.00% exact match)", id1 + ":", "lines_count: predicted=3 expected=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in compare output:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(w.dir, "stats", "morphological_metrics.csv")); err != nil {
		t.Fatalf("expected metrics csv: %v", err)
	}

	out, err = w.run(t, "setup-ground-truth", "--run", mustLatest(t, w))
	if err != nil {
		t.Fatalf("setup-ground-truth: %v", err)
	}
	if !strings.Contains(out, "2 diagrams: 6 images copied, 6 templates created") {
		t.Fatalf("unexpected setup output:\n%s", out)
	}
}

func TestResumeLatestOnlyReentersRunsWithSamePrompt(t *testing.T) {
	w := newWorkspace(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	if _, err := w.run(t, "evaluate", "claude", "--delay", "0"); err != nil {
		t.Fatalf("evaluate morphological: %v", err)
	}
	morphDir := mustLatest(t, w)

	out, err := w.run(t, "evaluate", "claude", "--delay", "0", "--prompt", "symbolic", "--resume", "latest")
	if err != nil {
		t.Fatalf("evaluate symbolic: %v", err)
	}
	if w.evaluator.calls != 4 {
		t.Fatalf("symbolic prompt must get its own calls, got %d total", w.evaluator.calls)
	}
	symbolicDir := mustLatest(t, w)
	if symbolicDir == morphDir || !strings.Contains(out, symbolicDir) {
		t.Fatalf("expected a fresh run dir for the symbolic prompt, got %s:\n%s", symbolicDir, out)
	}
	stored, err := evaluation.RunPrompt(morphDir)
	if err != nil {
		t.Fatalf("read morphological prompt: %v", err)
	}
	symbolic, err := evaluation.RunPrompt(symbolicDir)
	if err != nil || symbolic == stored {
		t.Fatalf("runs must keep their own prompts: %q vs %q (%v)", stored, symbolic, err)
	}

	_, err = w.run(t, "evaluate", "claude", "--delay", "0", "--prompt", "symbolic", "--resume", morphDir)
	if err == nil || exitCode(err) != exitConfig {
		t.Fatalf("expected config error resuming a run made with another prompt, got %v", err)
	}
	if w.evaluator.calls != 4 {
		t.Fatalf("rejected resume must not call the model, got %d", w.evaluator.calls)
	}
	if after, _ := evaluation.RunPrompt(morphDir); after != stored {
		t.Fatalf("rejected resume rewrote the summary prompt: %q", after)
	}

	out, err = w.run(t, "consolidate", "symbolic")
	if err != nil {
		t.Fatalf("consolidate symbolic: %v", err)
	}
	if !strings.Contains(out, "symbolic: 2 predictions written") {
		t.Fatalf("expected symbolic run to pass the default filter:\n%s", out)
	}
	out, err = w.run(t, "consolidate", "symbolic", "--run", "claude="+morphDir)
	if err != nil {
		t.Fatalf("consolidate symbolic pinned: %v", err)
	}
	if !strings.Contains(out, "symbolic: 0 predictions written") || !strings.Contains(out, "filtered=2") {
		t.Fatalf("expected morphological results to be filtered from the symbolic level:\n%s", out)
	}
}

func mustLatest(t *testing.T, w *workspace) string {
	t.Helper()
	cfg, err := config.Load(w.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	model, _ := cfg.Model("claude")
	dir, err := evaluation.LatestRunDir(cfg.EvaluationsDir, model)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	return dir
}

func TestLevelsFor(t *testing.T) {
	levels, err := levelsFor(nil, true)
	if err != nil || len(levels) != 3 {
		t.Fatalf("expected all levels, got %v %v", levels, err)
	}
	if _, err := levelsFor([]string{"symbolic"}, true); err == nil {
		t.Fatal("expected --all with a level to fail")
	}
	if _, err := levelsFor([]string{"pragmatic"}, false); exitCode(err) != exitConfig {
		t.Fatalf("expected config error for unknown level, got %v", err)
	}
	levels, _ = levelsFor(nil, false)
	if levels[0] != domain.LevelMorphological {
		t.Fatalf("default level should be morphological, got %v", levels)
	}
}

func TestModelsAndScheduleValidation(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "gemma-local") || !strings.Contains(out, "qwen2.5-vl-72b-instruct") {
		t.Fatalf("unexpected models output:\n%s", out)
	}

	_, err = w.run(t, "schedule")
	if exitCode(err) != exitConfig {
		t.Fatalf("expected config error without evaluation_schedule, got %v", err)
	}
	t.Setenv("EVALUATION_SCHEDULE", "0 2 * * *")
	t.Setenv("SCHEDULE_MODELS", "claude")
	_, err = w.run(t, "schedule")
	if exitCode(err) != exitConfig || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected missing credential for scheduled model, got %v", err)
	}
}

func testNow() time.Time {
	return time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
}
