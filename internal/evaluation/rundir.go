package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"peircevlm/internal/domain"
)

const (
	runDirPrefix = "eval_"
	SummaryFile  = "summary.json"
)

// ModelDir is <evaluations>/<sanitized model id>.
func ModelDir(evaluationsDir string, model domain.ModelConfig) string {
	return filepath.Join(evaluationsDir, filepath.FromSlash(model.DirName()))
}

// NewRunDir creates eval_<YYYYMMDD_HHMMSS> under the model dir. A name that
// already exists gets a numeric suffix, so two runs started in the same
// second still get separate directories.
func NewRunDir(evaluationsDir string, model domain.ModelConfig, start time.Time) (string, error) {
	parent := ModelDir(evaluationsDir, model)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	base := runDirPrefix + start.Format(domain.RunStampLayout)
	for attempt := 1; attempt < 1000; attempt++ {
		name := base
		if attempt > 1 {
			name = fmt.Sprintf("%s_%d", base, attempt)
		}
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create run dir: %w", err)
		}
	}
	return "", fmt.Errorf("could not allocate run dir for %s", base)
}

// RunDirs lists a model's eval_* directories oldest first. A missing model
// dir yields no runs.
func RunDirs(modelDir string) ([]string, error) {
	entries, err := os.ReadDir(modelDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), runDirPrefix) {
			dirs = append(dirs, filepath.Join(modelDir, e.Name()))
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return runDirLess(filepath.Base(dirs[i]), filepath.Base(dirs[j])) })
	return dirs, nil
}

// runDirLess orders by timestamp, then by collision suffix, so eval_X_10
// sorts after eval_X_9.
func runDirLess(a, b string) bool {
	stampA, suffixA := splitRunDirName(a)
	stampB, suffixB := splitRunDirName(b)
	if stampA != stampB {
		return stampA < stampB
	}
	return suffixA < suffixB
}

func splitRunDirName(name string) (string, int) {
	rest := strings.TrimPrefix(name, runDirPrefix)
	stampLen := len(domain.RunStampLayout)
	if len(rest) <= stampLen {
		return rest, 1
	}
	var suffix int
	if _, err := fmt.Sscanf(rest[stampLen:], "_%d", &suffix); err != nil {
		return rest, 1
	}
	return rest[:stampLen], suffix
}

func LatestRunDir(evaluationsDir string, model domain.ModelConfig) (string, error) {
	dirs, err := RunDirs(ModelDir(evaluationsDir, model))
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no runs found for model '%s' under %s", model.Name, ModelDir(evaluationsDir, model))
	}
	return dirs[len(dirs)-1], nil
}

// ErrPromptMismatch marks a resume target that was started with another prompt.
var ErrPromptMismatch = errors.New("run was started with a different prompt")

// RunPrompt returns the prompt text a run was started with, read from
// summary.json or, for a run that never finished, from its first result
// file. An empty run yields "".
func RunPrompt(runDir string) (string, error) {
	if s, err := ReadSummary(runDir); err == nil {
		return s.Prompt, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	ids, err := ResultIDs(runDir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(ids))
	for id := range ids {
		names = append(names, id)
	}
	sort.Strings(names)
	for _, id := range names {
		data, err := os.ReadFile(ResultPath(runDir, id))
		if err != nil {
			continue
		}
		var rf domain.ResultFile
		if json.Unmarshal(data, &rf) == nil && rf.Prompt != "" {
			return rf.Prompt, nil
		}
	}
	return "", nil
}

// LatestRunDirForPrompt is the newest run started with prompt. Runs whose
// prompt cannot be determined are treated as empty and match. found is
// false when no run matches.
func LatestRunDirForPrompt(evaluationsDir string, model domain.ModelConfig, prompt string) (dir string, found bool, err error) {
	dirs, err := RunDirs(ModelDir(evaluationsDir, model))
	if err != nil {
		return "", false, err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		stored, err := RunPrompt(dirs[i])
		if err != nil {
			log.Printf("evaluate skip run=%s reason=unreadable_prompt err=%v", dirs[i], err)
			continue
		}
		if stored == "" || stored == prompt {
			return dirs[i], true, nil
		}
	}
	return "", false, nil
}

// ResolveRunDir maps the --resume flag to a directory. Empty means a fresh
// run. "latest" is the newest run started with the same prompt, or a fresh
// run when there is none. Anything else is a path that must already exist
// and must not hold results for another prompt.
func ResolveRunDir(evaluationsDir string, model domain.ModelConfig, resume, prompt string, start time.Time) (dir string, resumed bool, err error) {
	switch resume {
	case "":
		dir, err = NewRunDir(evaluationsDir, model, start)
		return dir, false, err
	case "latest":
		var found bool
		dir, found, err = LatestRunDirForPrompt(evaluationsDir, model, prompt)
		if err != nil {
			return "", false, err
		}
		if found {
			return dir, true, nil
		}
		log.Printf("evaluate resume model=%s reason=no_run_for_prompt action=fresh_run", model.Name)
		dir, err = NewRunDir(evaluationsDir, model, start)
		return dir, false, err
	}
	info, err := os.Stat(resume)
	if err != nil {
		return "", false, fmt.Errorf("resume dir: %w", err)
	}
	if !info.IsDir() {
		return "", false, fmt.Errorf("resume dir %s is not a directory", resume)
	}
	stored, err := RunPrompt(resume)
	if err != nil {
		return "", false, fmt.Errorf("resume dir %s: %w", resume, err)
	}
	if stored != "" && stored != prompt {
		return "", false, fmt.Errorf("resume dir %s: %w", resume, ErrPromptMismatch)
	}
	return resume, true, nil
}

func ResultPath(runDir, diagramID string) string {
	return filepath.Join(runDir, diagramID+".json")
}

// ResultIDs returns the diagram ids that already have a result file.
func ResultIDs(runDir string) (map[string]bool, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == SummaryFile || filepath.Ext(name) != ".json" {
			continue
		}
		ids[strings.TrimSuffix(name, ".json")] = true
	}
	return ids, nil
}

// FindMissing splits expected ids into those with and without a result file
// in runDir. Both lists come back sorted.
func FindMissing(runDir string, expected []string) (completed, missing []string, err error) {
	have, err := ResultIDs(runDir)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range expected {
		if have[id] {
			completed = append(completed, id)
		} else {
			missing = append(missing, id)
		}
	}
	sort.Strings(completed)
	sort.Strings(missing)
	return completed, missing, nil
}
