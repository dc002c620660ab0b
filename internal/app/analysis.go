package app

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"peircevlm/internal/consolidate"
	"peircevlm/internal/domain"
	"peircevlm/internal/evaluation"
	"peircevlm/internal/groundtruth"
	"peircevlm/internal/metrics"
	"peircevlm/internal/report"
	"peircevlm/internal/segments"
)

// levelsFor resolves the optional [level] argument; --all selects every level.
func levelsFor(args []string, all bool) ([]domain.Level, error) {
	if all {
		if len(args) > 0 {
			return nil, configError("--all and a level argument are mutually exclusive")
		}
		return domain.Levels, nil
	}
	if len(args) == 0 {
		return []domain.Level{domain.LevelMorphological}, nil
	}
	level, ok := domain.ParseLevel(args[0])
	if !ok {
		return nil, configError("unknown level '%s' (available: morphological, indexical, symbolic)", args[0])
	}
	return []domain.Level{level}, nil
}

func (a *app) modelsByName(names []string) ([]domain.ModelConfig, error) {
	if len(names) == 0 {
		names = domain.SortedModelNames(a.cfg.Models)
	}
	models := make([]domain.ModelConfig, 0, len(names))
	for _, name := range names {
		m, err := a.cfg.Model(name)
		if err != nil {
			return nil, cliError{code: exitConfig, err: err}
		}
		models = append(models, m)
	}
	return models, nil
}

func newConsolidateCommand(a *app) *cobra.Command {
	var (
		all          bool
		models       []string
		manuscript   string
		date         string
		runDirs      map[string]string
		promptFilter string
	)
	cmd := &cobra.Command{
		Use:   "consolidate [level]",
		Short: "Collect run results into <ground_truth_dir>/<level>_predictions.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			levels, err := levelsFor(args, all)
			if err != nil {
				return err
			}
			selected, err := a.modelsByName(models)
			if err != nil {
				return err
			}
			for name := range runDirs {
				if _, err := a.cfg.Model(name); err != nil {
					return cliError{code: exitConfig, err: fmt.Errorf("--run: %w", err)}
				}
			}
			if !cmd.Flags().Changed("manuscript") {
				manuscript = a.cfg.ManuscriptID
			}

			for _, level := range levels {
				filter := promptFilter
				if !cmd.Flags().Changed("prompt-filter") {
					filter = a.cfg.PromptFilter(level)
				}
				preds, stats, err := consolidate.Consolidate(consolidate.Options{
					Level:            level,
					EvaluationsDir:   a.cfg.EvaluationsDir,
					Models:           selected,
					ManuscriptPrefix: manuscript,
					DateFilter:       date,
					RunDirs:          runDirs,
					PromptFilter:     filter,
				})
				if err != nil {
					return err
				}
				path := consolidate.OutputPath(a.cfg.GroundTruthDir, level)
				if err := consolidate.WriteFile(path, preds); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d predictions written to %s\n", level, preds.Metadata.TotalEvaluations, path)
				for _, st := range stats {
					fmt.Fprintf(out, "  %s: runs=%d diagrams=%d unparseable=%d filtered=%d\n",
						st.Model, st.Runs, st.Diagrams, st.Unparseable, st.Filtered)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "consolidate every level")
	cmd.Flags().StringSliceVar(&models, "models", nil, "model keys to include (default all configured)")
	cmd.Flags().StringVar(&manuscript, "manuscript", "", "manuscript prefix for result files (default manuscript_id)")
	cmd.Flags().StringVar(&date, "date", "", "only runs started on this day (YYYYMMDD)")
	cmd.Flags().StringToStringVar(&runDirs, "run", nil, "pin a model to one run directory (model=dir)")
	cmd.Flags().StringVar(&promptFilter, "prompt-filter", "", "only results whose prompt starts with this text (default from prompt_filters)")
	return cmd
}

func newCompareCommand(a *app) *cobra.Command {
	var all bool
	var predictionsPath, groundTruthPath string
	cmd := &cobra.Command{
		Use:   "compare [level]",
		Short: "Score consolidated predictions against ground truth",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			levels, err := levelsFor(args, all)
			if err != nil {
				return err
			}
			if len(levels) > 1 && (predictionsPath != "" || groundTruthPath != "") {
				return configError("--predictions and --ground-truth need a single level")
			}
			for _, level := range levels {
				predPath := predictionsPath
				if predPath == "" {
					predPath = consolidate.OutputPath(a.cfg.GroundTruthDir, level)
				}
				gtPath := groundTruthPath
				if gtPath == "" {
					gtPath, err = groundtruth.ResolvePath(a.cfg.GroundTruthDir, level)
					if err != nil {
						if all {
							log.Printf("compare skip level=%s reason=%v", level, err)
							continue
						}
						return err
					}
				}
				if err := a.compareLevel(cmd, level, predPath, gtPath); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "compare every level that has ground truth")
	cmd.Flags().StringVar(&predictionsPath, "predictions", "", "predictions file (default <ground_truth_dir>/<level>_predictions.json)")
	cmd.Flags().StringVar(&groundTruthPath, "ground-truth", "", "ground truth file or directory")
	return cmd
}

func (a *app) compareLevel(cmd *cobra.Command, level domain.Level, predPath, gtPath string) error {
	preds, err := groundtruth.LoadPredictions(predPath)
	if err != nil {
		return err
	}
	if preds.Metadata.EvaluationType != level {
		return fmt.Errorf("%s holds %s predictions, not %s", predPath, preds.Metadata.EvaluationType, level)
	}
	out := cmd.OutOrStdout()

	if level == domain.LevelMorphological {
		gt, err := groundtruth.LoadMorphological(gtPath)
		if err != nil {
			return err
		}
		r := metrics.EvaluateMorphological(preds, gt)
		aggPath, detailedPath, err := report.WriteMorphologicalMetrics(a.cfg.StatisticsDir, r)
		if err != nil {
			return err
		}
		report.PrintMorphological(out, r)
		fmt.Fprintf(out, "\nSaved %s and %s\n", aggPath, detailedPath)
		return nil
	}

	gt, err := groundtruth.LoadText(gtPath)
	if err != nil {
		return err
	}
	r := metrics.EvaluateText(level, preds, gt)
	aggPath, detailedPath, err := report.WriteTextMetrics(a.cfg.StatisticsDir, r)
	if err != nil {
		return err
	}
	report.PrintText(out, r)
	fmt.Fprintf(out, "\nSaved %s and %s\n", aggPath, detailedPath)
	return nil
}

func newAgreementCommand(a *app) *cobra.Command {
	var predictionsPath string
	cmd := &cobra.Command{
		Use:   "agreement",
		Short: "Compare morphological counts between models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if predictionsPath == "" {
				predictionsPath = consolidate.OutputPath(a.cfg.GroundTruthDir, domain.LevelMorphological)
			}
			preds, err := groundtruth.LoadPredictions(predictionsPath)
			if err != nil {
				return err
			}
			r := metrics.Agreement(preds)
			perDiagram, summary, err := report.WriteAgreement(a.cfg.StatisticsDir, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report.PrintAgreement(out, r)
			fmt.Fprintf(out, "\nSaved %s and %s\n", perDiagram, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&predictionsPath, "predictions", "", "morphological predictions file")
	return cmd
}

func newMissingCommand(a *app) *cobra.Command {
	var runDir, from string
	cmd := &cobra.Command{
		Use:   "missing <model>",
		Short: "List diagrams without a result file in a run directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := a.cfg.Model(args[0])
			if err != nil {
				return cliError{code: exitConfig, err: err}
			}
			if runDir == "" {
				if runDir, err = evaluation.LatestRunDir(a.cfg.EvaluationsDir, model); err != nil {
					return err
				}
			}
			expected, err := a.expectedDiagrams(from)
			if err != nil {
				return err
			}
			completed, missing, err := evaluation.FindMissing(runDir, expected)
			if err != nil {
				return err
			}
			report.PrintMissing(cmd.OutOrStdout(), model.Name, runDir, len(completed), len(expected), missing)
			return nil
		},
	}
	cmd.Flags().StringVar(&runDir, "run", "", "run directory (default latest for the model)")
	cmd.Flags().StringVar(&from, "from", "auto", "expected ids source: ground-truth, index or auto")
	return cmd
}

// expectedDiagrams lists the diagram ids a complete run should cover. auto
// prefers morphological ground truth and falls back to the segment index.
func (a *app) expectedDiagrams(from string) ([]string, error) {
	from = strings.ToLower(from)
	switch from {
	case "auto", "ground-truth":
		path, err := groundtruth.ResolvePath(a.cfg.GroundTruthDir, domain.LevelMorphological)
		if err == nil {
			gt, err := groundtruth.LoadMorphological(path)
			if err != nil {
				return nil, err
			}
			return append(gt.IDs(), gt.Incomplete...), nil
		}
		if from != "auto" {
			return nil, err
		}
		fallthrough
	case "index":
		loader := segments.Loader{IndexPath: a.cfg.SegmentsIndexPath, CropsDir: a.cfg.CropsDir}
		segs, err := loader.Collect(segments.Options{})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(segs))
		for _, s := range segs {
			ids = append(ids, s.ID())
		}
		return ids, nil
	}
	return nil, configError("unknown --from '%s' (use ground-truth, index or auto)", from)
}

func newSetupGroundTruthCommand(a *app) *cobra.Command {
	var runDir string
	cmd := &cobra.Command{
		Use:   "setup-ground-truth",
		Short: "Create annotation templates and copy crops for every diagram in a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runDir == "" {
				return configError("--run is required")
			}
			stats, err := groundtruth.Setup(runDir, a.cfg.GroundTruthDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d diagrams: %d images copied, %d templates created in %s\n",
				stats.Diagrams, stats.ImagesCopied, stats.TemplatesMade, a.cfg.GroundTruthDir)
			if len(stats.MissingImages) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Missing crops: %s\n", strings.Join(stats.MissingImages, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runDir, "run", "", "evaluation run directory to take diagrams from")
	return cmd
}
