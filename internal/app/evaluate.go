package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"peircevlm/internal/domain"
	"peircevlm/internal/evaluation"
	"peircevlm/internal/notify"
	"peircevlm/internal/prompts"
	"peircevlm/internal/segments"
	"peircevlm/internal/storage/sqlite"
)

type evaluateOptions struct {
	prompt       string
	customPrompt string
	limit        int
	delaySeconds int
	delaySet     bool
	page         string
	resume       string
}

func newEvaluateCommand(a *app) *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate <model>",
		Short: "Run a model over the diagram crops and store one result file per diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.delaySet = cmd.Flags().Changed("delay")
			summary, runDir, err := a.evaluate(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d diagrams, %d successful, %d failed\nResults: %s\n",
				args[0], summary.TotalDiagrams, summary.Successful, summary.Failed, runDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.prompt, "prompt", prompts.Morphological, "prompt key")
	cmd.Flags().StringVar(&opts.customPrompt, "custom-prompt", "", "free-form prompt text (overrides --prompt)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "evaluate at most this many diagrams (0 = all)")
	cmd.Flags().IntVar(&opts.delaySeconds, "delay", 0, "seconds to wait between requests (default from config)")
	cmd.Flags().StringVar(&opts.page, "page", "", "only evaluate diagrams on this page stem")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "re-enter a run: 'latest' or a run directory")
	return cmd
}

// evaluate validates everything that can fail before a request is sent,
// then drives one run.
func (a *app) evaluate(ctx context.Context, modelName string, opts evaluateOptions) (domain.RunSummary, string, error) {
	cfg := a.cfg
	model, err := cfg.Model(modelName)
	if err != nil {
		return domain.RunSummary{}, "", cliError{code: exitConfig, err: err}
	}
	if err := cfg.RequireCredential(model.APIFamily); err != nil {
		return domain.RunSummary{}, "", cliError{code: exitConfig, err: err}
	}
	registry, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return domain.RunSummary{}, "", cliError{code: exitConfig, err: err}
	}
	promptKey, promptText, err := registry.Resolve(opts.prompt, opts.customPrompt)
	if err != nil {
		return domain.RunSummary{}, "", cliError{code: exitConfig, err: err}
	}
	delay := cfg.RequestDelay()
	if opts.delaySet {
		if opts.delaySeconds < 0 {
			return domain.RunSummary{}, "", configError("--delay must be >= 0")
		}
		delay = time.Duration(opts.delaySeconds) * time.Second
	}
	if opts.limit < 0 {
		return domain.RunSummary{}, "", configError("--limit must be >= 0")
	}
	if _, err := os.Stat(cfg.SegmentsIndexPath); err != nil {
		return domain.RunSummary{}, "", configError("segment index: %v", err)
	}

	runDir, resumed, err := evaluation.ResolveRunDir(cfg.EvaluationsDir, model, opts.resume, promptText, a.now())
	if errors.Is(err, evaluation.ErrPromptMismatch) {
		return domain.RunSummary{}, "", cliError{code: exitConfig, err: err}
	}
	if err != nil {
		return domain.RunSummary{}, "", err
	}

	runner := &evaluation.Runner{
		Evaluator: a.newEvaluator(cfg, a.httpClient),
		Delay:     delay,
		Now:       a.now,
	}
	ledger, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Printf("evaluate ledger disabled path=%s err=%v", cfg.DBPath, err)
	} else {
		defer ledger.Close()
		runner.Recorder = ledger
	}
	if n := notify.FromConfig(cfg, a.httpClient); n != nil {
		runner.Notifier = n
	}

	loader := segments.Loader{IndexPath: cfg.SegmentsIndexPath, CropsDir: cfg.CropsDir}
	summary, err := runner.Run(ctx, evaluation.Request{
		Model:     model,
		PromptKey: promptKey,
		Prompt:    promptText,
		RunDir:    runDir,
		Resumed:   resumed,
		Segments:  loader.Segments(segments.Options{Limit: opts.limit, PageFilter: opts.page}),
	})
	return summary, runDir, err
}

// resumeOrStart continues the newest run of a model made with prompt, or
// starts one when there is none.
func (a *app) resumeOrStart(ctx context.Context, modelName, prompt string) error {
	opts := evaluateOptions{prompt: prompt, resume: "latest"}
	summary, runDir, err := a.evaluate(ctx, modelName, opts)
	if err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			return ce.err
		}
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d diagrams failed in %s", summary.Failed, summary.TotalDiagrams, runDir)
	}
	return nil
}
