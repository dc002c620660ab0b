package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"peircevlm/internal/notify"
	"peircevlm/internal/prompts"
	"peircevlm/internal/report"
	"peircevlm/internal/schedule"
	"peircevlm/internal/storage/sqlite"
)

func newScheduleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Resume the latest run of each schedule_models entry on evaluation_schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := schedule.Parse(a.cfg.EvaluationSchedule)
			if err != nil {
				return cliError{code: exitConfig, err: err}
			}
			if len(a.cfg.ScheduleModels) == 0 {
				return configError("schedule_models is empty")
			}
			registry, err := prompts.Load(a.cfg.PromptsPath)
			if err != nil {
				return cliError{code: exitConfig, err: err}
			}
			if _, ok := registry.Get(a.cfg.SchedulePrompt); !ok {
				return configError("unknown schedule_prompt '%s'", a.cfg.SchedulePrompt)
			}
			for _, name := range a.cfg.ScheduleModels {
				model, err := a.cfg.Model(name)
				if err != nil {
					return cliError{code: exitConfig, err: err}
				}
				if err := a.cfg.RequireCredential(model.APIFamily); err != nil {
					return cliError{code: exitConfig, err: err}
				}
			}

			s := &schedule.Scheduler{
				Schedule: sched,
				Models:   a.cfg.ScheduleModels,
				Job: func(ctx context.Context, model string) error {
					return a.resumeOrStart(ctx, model, a.cfg.SchedulePrompt)
				},
			}
			if n := notify.FromConfig(a.cfg, a.httpClient); n != nil {
				s.Notify = func(ctx context.Context, text string) {
					if err := n.Post(ctx, text); err != nil {
						log.Printf("schedule notify failed: %v", err)
					}
				}
			}
			log.Printf("Scheduled evaluation (cron: %s) models=%v prompt=%s", a.cfg.EvaluationSchedule, a.cfg.ScheduleModels, a.cfg.SchedulePrompt)
			if err := s.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newRunsCommand(a *app) *cobra.Command {
	var limit int
	var failed bool
	cmd := &cobra.Command{
		Use:   "runs [model]",
		Short: "List recorded evaluation runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelKey := ""
			if len(args) == 1 {
				if _, err := a.cfg.Model(args[0]); err != nil {
					return cliError{code: exitConfig, err: err}
				}
				modelKey = args[0]
			}
			db, err := sqlite.InitDB(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if failed {
				if modelKey == "" {
					return configError("--failed needs a model")
				}
				ids, err := sqlite.FailedDiagrams(db, modelKey)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d diagrams whose latest attempt failed\n", modelKey, len(ids))
				for _, id := range ids {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			}

			runs, err := sqlite.ListRuns(db, modelKey, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			report.PrintRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().BoolVar(&failed, "failed", false, "list diagrams whose latest attempt failed")
	return cmd
}

func newModelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report.PrintModels(cmd.OutOrStdout(), a.cfg.Models)
			return nil
		},
	}
}
