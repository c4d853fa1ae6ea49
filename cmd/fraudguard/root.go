package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hed1ad/fraudguard/internal/config"
	"github.com/hed1ad/fraudguard/internal/logging"
	"github.com/hed1ad/fraudguard/internal/metrics"
	"github.com/hed1ad/fraudguard/internal/pipeline"
)

// app carries what every command needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Recorder

	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "fraudguard",
		Short:         "Batch credit-card fraud scoring pipeline",
		Long:          "fraudguard builds per-user features, trains a random forest, scores transactions and writes a risk dashboard.\nRun without a subcommand to execute every stage in order.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAll(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: console or json (default from LOG_FORMAT or console)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run all four stages in order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runAll(cmd)
			},
		},
		a.featuresCmd(),
		a.trainCmd(),
		a.predictCmd(),
		a.reportCmd(),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	a.metrics = metrics.New()
	return nil
}

func (a *app) deps(cmd *cobra.Command) pipeline.Deps {
	return pipeline.Deps{
		Config:  a.cfg,
		Metrics: a.metrics,
		Out:     cmd.OutOrStdout(),
	}
}

func (a *app) runAll(cmd *cobra.Command) error {
	runner := pipeline.NewRunner(
		pipeline.Stages(a.deps(cmd)),
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics, a.cfg.MetricsPath),
	)
	return a.report(runner.Run(cmd.Context()))
}

// runStage runs a single stage with the same logging and status tracking
// as a full run.
func (a *app) runStage(cmd *cobra.Command, stage pipeline.Stage) error {
	runner := pipeline.NewRunner(
		[]pipeline.Stage{stage},
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics, ""),
	)
	return a.report(runner.Run(cmd.Context()))
}

func (a *app) report(err error) error {
	if err != nil && pipeline.IsMissingInput(err) {
		a.logger.Error().Msg("Run the preceding stage first to produce the missing input")
	}
	return err
}
