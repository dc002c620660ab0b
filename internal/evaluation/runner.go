package evaluation

import (
	"context"
	"fmt"
	"iter"
	"log"
	"path/filepath"
	"time"

	"peircevlm/internal/domain"
)

// Evaluator is the adapter capability the driver needs.
type Evaluator interface {
	Evaluate(ctx context.Context, imagePath, prompt string, model domain.ModelConfig) domain.EvaluationResult
}

// Recorder mirrors run progress into an index. Errors are logged only.
type Recorder interface {
	StartRun(run domain.RunRecord) (string, error)
	RecordOutcome(runID string, o domain.DiagramOutcome) error
	FinishRun(runID string, summary domain.RunSummary) error
}

type Notifier interface {
	RunCompleted(ctx context.Context, model domain.ModelConfig, summary domain.RunSummary, runDir string)
}

type Runner struct {
	Evaluator Evaluator
	// Delay is slept between two provider calls; skipped diagrams do not
	// count as calls.
	Delay    time.Duration
	Recorder Recorder
	Notifier Notifier

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

type Request struct {
	Model     domain.ModelConfig
	PromptKey string
	Prompt    string
	RunDir    string
	Resumed   bool
	Segments  iter.Seq2[domain.DiagramSegment, error]
}

// Run evaluates every segment into req.RunDir and writes summary.json. A
// diagram whose result file already exists is counted as successful and not
// sent again. Per-diagram failures never stop the run; a bad segment index
// or a cancelled context does.
func (r *Runner) Run(ctx context.Context, req Request) (domain.RunSummary, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	started := now()
	runID := r.startLedger(domain.RunRecord{
		ModelKey:  req.Model.Name,
		ModelID:   req.Model.ModelID,
		PromptKey: req.PromptKey,
		Prompt:    req.Prompt,
		RunDir:    req.RunDir,
		Resumed:   req.Resumed,
		StartedAt: started.UTC(),
	})
	log.Printf("evaluate start model=%s model_id=%s prompt=%s dir=%s resumed=%t", req.Model.Name, req.Model.ModelID, req.PromptKey, req.RunDir, req.Resumed)

	summary := domain.RunSummary{
		Model:     req.Model.ModelID,
		Prompt:    req.Prompt,
		Timestamp: started.Format(domain.TimestampLayout),
		Results:   []domain.DiagramOutcome{},
	}

	called := false
	n := 0
	for seg, err := range req.Segments {
		if err != nil {
			return summary, fmt.Errorf("load segments: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		n++
		diagramID := seg.ID()
		path := ResultPath(req.RunDir, diagramID)

		var outcome domain.DiagramOutcome
		if fileExists(path) {
			outcome = domain.DiagramOutcome{
				DiagramID: diagramID,
				Skipped:   true,
				EvaluationResult: domain.EvaluationResult{
					Success:   true,
					Model:     req.Model.ModelID,
					Timestamp: now().Format(domain.TimestampLayout),
				},
			}
			log.Printf("evaluate diagram=%s n=%d status=skipped", diagramID, n)
		} else {
			if called && r.Delay > 0 {
				if err := sleep(ctx, r.Delay); err != nil {
					return summary, err
				}
			}
			called = true
			res := r.Evaluator.Evaluate(ctx, seg.CropPath, req.Prompt, req.Model)
			outcome = domain.DiagramOutcome{DiagramID: diagramID, EvaluationResult: res}
			if res.Success {
				if err := writeJSONAtomic(path, domain.ResultFile{
					DiagramSegment: seg,
					Prompt:         req.Prompt,
					Evaluation:     res.Response,
					Model:          res.Model,
					Timestamp:      res.Timestamp,
				}); err != nil {
					outcome.EvaluationResult = domain.FailedResult(req.Model.ModelID, fmt.Sprintf("persist result: %v", err), now())
				}
			}
			if outcome.Success {
				log.Printf("evaluate diagram=%s n=%d status=ok size=%d", diagramID, n, len(outcome.Response))
			} else {
				log.Printf("evaluate diagram=%s n=%d status=failed err=%q", diagramID, n, outcome.Error)
			}
		}

		summary.TotalDiagrams++
		if outcome.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, outcome)
		r.recordOutcome(runID, outcome)
	}

	if err := writeJSONAtomic(filepath.Join(req.RunDir, SummaryFile), summary); err != nil {
		return summary, fmt.Errorf("write summary: %w", err)
	}
	r.finishLedger(runID, summary)
	log.Printf("evaluate done model=%s total=%d ok=%d failed=%d dir=%s", req.Model.Name, summary.TotalDiagrams, summary.Successful, summary.Failed, req.RunDir)
	if r.Notifier != nil {
		r.Notifier.RunCompleted(ctx, req.Model, summary, req.RunDir)
	}
	return summary, nil
}

func (r *Runner) startLedger(run domain.RunRecord) string {
	if r.Recorder == nil {
		return ""
	}
	id, err := r.Recorder.StartRun(run)
	if err != nil {
		log.Printf("evaluate ledger start failed: %v", err)
		return ""
	}
	return id
}

func (r *Runner) recordOutcome(runID string, o domain.DiagramOutcome) {
	if r.Recorder == nil || runID == "" {
		return
	}
	if err := r.Recorder.RecordOutcome(runID, o); err != nil {
		log.Printf("evaluate ledger outcome failed diagram=%s: %v", o.DiagramID, err)
	}
}

func (r *Runner) finishLedger(runID string, summary domain.RunSummary) {
	if r.Recorder == nil || runID == "" {
		return
	}
	if err := r.Recorder.FinishRun(runID, summary); err != nil {
		log.Printf("evaluate ledger finish failed: %v", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
