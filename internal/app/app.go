package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"peircevlm/internal/config"
	"peircevlm/internal/evaluation"
	"peircevlm/internal/httpx"
	"peircevlm/internal/integrations/vlm"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

// cliError carries the process exit code for a failed command.
type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

func configError(format string, args ...any) error {
	return cliError{code: exitConfig, err: fmt.Errorf(format, args...)}
}

// app is the state shared by every command once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	cfg        config.Config
	httpClient *http.Client

	newEvaluator func(cfg config.Config, httpClient *http.Client) evaluation.Evaluator
	now          func() time.Time
}

func newApp() *app {
	return &app{
		newEvaluator: func(cfg config.Config, httpClient *http.Client) evaluation.Evaluator {
			return vlm.NewDispatcher(cfg, httpClient)
		},
		now: time.Now,
	}
}

func Main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(newApp())
	if err := root.ExecuteContext(ctx); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "peircevlm",
		Short:         "Evaluate vision-language models on Peirce's existential graph diagrams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(newEvaluateCommand(a))
	root.AddCommand(newConsolidateCommand(a))
	root.AddCommand(newCompareCommand(a))
	root.AddCommand(newAgreementCommand(a))
	root.AddCommand(newMissingCommand(a))
	root.AddCommand(newSetupGroundTruthCommand(a))
	root.AddCommand(newScheduleCommand(a))
	root.AddCommand(newRunsCommand(a))
	root.AddCommand(newModelsCommand(a))
	return root
}

func (a *app) loadConfig() error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cliError{code: exitConfig, err: fmt.Errorf("config: %w", err)}
	}
	a.cfg = cfg
	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	if a.httpClient == nil {
		a.httpClient = httpx.ExternalHTTPClient()
	}
	log.Printf("Config loaded. Models=%d EvaluationsDir=%s GroundTruthDir=%s RequestDelay=%s ExternalHTTPTimeout=%s",
		len(cfg.Models), cfg.EvaluationsDir, cfg.GroundTruthDir, cfg.RequestDelay(), timeout)
	return nil
}
