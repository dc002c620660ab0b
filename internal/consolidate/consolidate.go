package consolidate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"peircevlm/internal/domain"
	"peircevlm/internal/evaluation"
)

const (
	FormatVersion = "1.0"
	source        = "Automated consolidation from diagram evaluation runs"
)

type Options struct {
	Level          domain.Level
	EvaluationsDir string
	// Models are consolidated in the given order.
	Models []domain.ModelConfig
	// ManuscriptPrefix keeps only result files whose name starts with it.
	ManuscriptPrefix string
	// DateFilter restricts run dirs to eval_<YYYYMMDD>_*.
	DateFilter string
	// RunDirs pins a model (by name) to one run directory.
	RunDirs map[string]string
	// PromptFilter keeps only results whose stored prompt starts with it.
	PromptFilter string
}

type storedResult struct {
	Prompt     string `json:"prompt"`
	Evaluation string `json:"evaluation"`
	Model      string `json:"model"`
	Timestamp  string `json:"timestamp"`
}

// Stats is the per-model tally logged after consolidation.
type Stats struct {
	Model       string
	Runs        int
	Diagrams    int
	Unparseable int
	Filtered    int
}

// Consolidate gathers one prediction per (diagram, model). Run directories
// are read newest first, so a diagram evaluated in several runs keeps its
// most recent answer.
func Consolidate(opts Options) (domain.PredictionsFile, []Stats, error) {
	if _, ok := domain.ParseLevel(string(opts.Level)); !ok {
		return domain.PredictionsFile{}, nil, fmt.Errorf("unknown level '%s'", opts.Level)
	}

	out := domain.PredictionsFile{Evaluations: []domain.ConsolidatedPrediction{}}
	var stats []Stats
	var labels []string
	for _, model := range opts.Models {
		labels = append(labels, model.Label())
		dirs, err := runDirsFor(opts, model)
		if err != nil {
			return domain.PredictionsFile{}, nil, err
		}
		st := Stats{Model: model.Label(), Runs: len(dirs)}
		if len(dirs) == 0 {
			log.Printf("consolidate warn model=%s reason=no_runs dir=%s", model.Name, evaluation.ModelDir(opts.EvaluationsDir, model))
			stats = append(stats, st)
			continue
		}

		seen := make(map[string]bool)
		for _, dir := range dirs {
			preds, filtered, err := readRunDir(dir, opts, model, seen)
			if err != nil {
				return domain.PredictionsFile{}, nil, err
			}
			st.Filtered += filtered
			for _, p := range preds {
				if p.Prediction == nil {
					st.Unparseable++
				}
				out.Evaluations = append(out.Evaluations, p)
			}
		}
		st.Diagrams = len(seen)
		log.Printf("consolidate model=%s level=%s runs=%d diagrams=%d unparseable=%d filtered=%d",
			model.Name, opts.Level, st.Runs, st.Diagrams, st.Unparseable, st.Filtered)
		stats = append(stats, st)
	}

	out.Metadata = domain.PredictionsMetadata{
		TotalEvaluations: len(out.Evaluations),
		Models:           labels,
		EvaluationType:   opts.Level,
		Source:           source,
		FormatVersion:    FormatVersion,
	}
	return out, stats, nil
}

// runDirsFor returns the run dirs to read for model, newest first.
func runDirsFor(opts Options, model domain.ModelConfig) ([]string, error) {
	if dir, ok := opts.RunDirs[model.Name]; ok {
		if !filepath.IsAbs(dir) {
			if _, err := os.Stat(dir); err != nil {
				dir = filepath.Join(opts.EvaluationsDir, dir)
			}
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			log.Printf("consolidate warn model=%s reason=run_dir_missing dir=%s", model.Name, dir)
			return nil, nil
		}
		return []string{dir}, nil
	}

	all, err := evaluation.RunDirs(evaluation.ModelDir(opts.EvaluationsDir, model))
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", model.Name, err)
	}
	var dirs []string
	for i := len(all) - 1; i >= 0; i-- {
		if opts.DateFilter != "" && !strings.HasPrefix(filepath.Base(all[i]), "eval_"+opts.DateFilter+"_") {
			continue
		}
		dirs = append(dirs, all[i])
	}
	return dirs, nil
}

func readRunDir(dir string, opts Options, model domain.ModelConfig, seen map[string]bool) ([]domain.ConsolidatedPrediction, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read run dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == evaluation.SummaryFile || filepath.Ext(name) != ".json" {
			continue
		}
		if !strings.HasPrefix(name, opts.ManuscriptPrefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var preds []domain.ConsolidatedPrediction
	filtered := 0
	for _, name := range names {
		diagramID := strings.TrimSuffix(name, ".json")
		if seen[diagramID] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("consolidate warn file=%s err=%v", filepath.Join(dir, name), err)
			continue
		}
		var r storedResult
		if err := json.Unmarshal(data, &r); err != nil {
			log.Printf("consolidate warn file=%s reason=bad_json err=%v", filepath.Join(dir, name), err)
			continue
		}
		if opts.PromptFilter != "" && !strings.HasPrefix(r.Prompt, opts.PromptFilter) {
			filtered++
			continue
		}
		seen[diagramID] = true
		preds = append(preds, buildPrediction(opts.Level, diagramID, model, r))
	}
	return preds, filtered, nil
}

func buildPrediction(level domain.Level, diagramID string, model domain.ModelConfig, r storedResult) domain.ConsolidatedPrediction {
	p := domain.ConsolidatedPrediction{
		DiagramID: diagramID,
		Model:     model.Label(),
		ModelID:   r.Model,
		Timestamp: r.Timestamp,
	}
	if level == domain.LevelMorphological {
		p.RawResponse = r.Evaluation
		if v := ExtractMorphology(r.Evaluation); v != nil {
			p.Prediction = v
		} else {
			log.Printf("consolidate warn diagram=%s model=%s reason=unparseable_prediction", diagramID, model.Name)
		}
		return p
	}
	p.Prediction = strings.TrimSpace(r.Evaluation)
	return p
}

func OutputPath(groundTruthDir string, level domain.Level) string {
	return filepath.Join(groundTruthDir, string(level)+"_predictions.json")
}

func WriteFile(path string, f domain.PredictionsFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
