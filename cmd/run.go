package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/browser"
	"github.com/jharden0x1/steppilot/internal/config"
	"github.com/jharden0x1/steppilot/internal/diagnostics"
	"github.com/jharden0x1/steppilot/internal/gherkin"
	"github.com/jharden0x1/steppilot/internal/interpreter"
	"github.com/jharden0x1/steppilot/internal/nlu"
	"github.com/jharden0x1/steppilot/internal/observability"
	"github.com/jharden0x1/steppilot/internal/registry"
	"github.com/jharden0x1/steppilot/internal/reporting"
	"github.com/jharden0x1/steppilot/internal/resolver"
	"github.com/jharden0x1/steppilot/internal/runner"
	"github.com/jharden0x1/steppilot/internal/testbed"
)

// errRunFailed signals a finished run with at least one failed scenario, so
// the process exits non-zero without dumping a stack of step errors twice.
var errRunFailed = errors.New("run finished with failures")

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [features...]",
		Short: "Executes the given .feature files or directories",
		Args:  cobra.MinimumNArgs(1),
		// PreRunE binds flags to their Viper keys so command-line flags
		// correctly override values from the config file and environment.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"runner.concurrency": "concurrency",
				"runner.max_retries": "retries",
				"runner.base_url":    "base-url",
				"runner.tags":        "tags",
				"browser.headless":   "headless",
				"data.file":          "data",
				"report.format":      "format",
				"report.output":      "output",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-finalize the config now that flags are bound, so flag
			// overrides land with the right precedence.
			finalized, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg = finalized

			features, err := loadFeatures(args)
			if err != nil {
				return err
			}
			logger.Info("Discovered features.",
				zap.Int("count", len(features)),
				zap.Int("concurrency", cfg.Runner.Concurrency),
				zap.Strings("tags", cfg.Runner.Tags),
			)

			run, shutdown, err := initializeRunner(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer shutdown()

			result, err := run.Run(ctx, features)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by signal.")
					return err
				}
				return err
			}

			if err := writeReport(result, cfg); err != nil {
				return err
			}

			passed, failed, skipped := result.Counts()
			fmt.Printf("\nRun %s complete: %d passed, %d failed, %d skipped\n",
				result.RunID, passed, failed, skipped)
			if result.Failed() {
				return errRunFailed
			}
			return nil
		},
	}

	runCmd.Flags().IntP("concurrency", "j", 0, "Number of scenarios to run in parallel. (Overrides config/env)")
	runCmd.Flags().IntP("retries", "r", 0, "Retries per failed step. (Overrides config/env)")
	runCmd.Flags().String("base-url", "", "Base URL for relative navigation targets. (Overrides config/env)")
	runCmd.Flags().StringP("tags", "t", "", "Comma-separated tags; only matching scenarios run, e.g. @smoke.")
	runCmd.Flags().Bool("headless", true, "Run the browser headless.")
	runCmd.Flags().String("data", "", "Path to the JSON test data file.")
	runCmd.Flags().StringP("format", "f", "json", "Report format ('json' or 'junit').")
	runCmd.Flags().StringP("output", "o", "", "Report file path. If unset, the report goes to stdout.")

	return runCmd
}

// loadFeatures discovers and parses every feature file under the given paths.
func loadFeatures(paths []string) ([]*schemas.Feature, error) {
	files, err := gherkin.Discover(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .feature files found under %v", paths)
	}
	features := make([]*schemas.Feature, 0, len(files))
	for _, f := range files {
		feature, err := gherkin.ParseFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}
		features = append(features, feature)
	}
	return features, nil
}

// initializeRunner handles dependency injection for the run command. The
// returned shutdown func releases the browser regardless of run outcome.
func initializeRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runner.Runner, func(), error) {
	data, err := testbed.Load(cfg.Data.File)
	if err != nil {
		return nil, func() {}, err
	}
	interp := interpreter.New(nlu.NewPatternClassifier(), data)

	reg, err := registry.New(cfg.Registry.Dir, logger)
	if err != nil {
		return nil, func() {}, err
	}

	capturer, err := diagnostics.NewCapturer(cfg.Artifacts.Dir, cfg.Artifacts.DOMDepth, logger)
	if err != nil {
		return nil, func() {}, err
	}

	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}

	res := resolver.New(reg, cfg, logger)
	run := runner.New(cfg, interp, res, &sessionFactory{mgr: mgr}, &capturerAdapter{capturer}, logger)
	return run, mgr.Shutdown, nil
}

// writeReport renders the run result in the configured format.
func writeReport(result *schemas.RunResult, cfg *config.Config) error {
	reporter, err := reporting.New(cfg.Report.Format, cfg.Report.Output)
	if err != nil {
		return err
	}
	if err := reporter.Write(result); err != nil {
		reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return reporter.Close()
}

// sessionFactory adapts *browser.Manager to the runner's factory interface.
type sessionFactory struct {
	mgr *browser.Manager
}

func (f *sessionFactory) NewSession(ctx context.Context) (runner.Session, error) {
	sess, err := f.mgr.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// capturerAdapter bridges the runner's Snapshotter parameter type to the
// diagnostics package's equivalent interface.
type capturerAdapter struct {
	capturer *diagnostics.Capturer
}

func (a *capturerAdapter) Capture(ctx context.Context, snap runner.Snapshotter, stepText, stage string) []schemas.Artifact {
	return a.capturer.Capture(ctx, snap, stepText, stage)
}
