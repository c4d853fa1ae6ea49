package main

import (
	"github.com/spf13/cobra"

	"github.com/hed1ad/fraudguard/internal/pipeline"
)

const inputFlag = "input_file"

func (a *app) featuresCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Attach synthetic user ids and per-user aggregates to raw transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStage(cmd, &pipeline.FeatureStage{Deps: a.deps(cmd), InputFile: input})
		},
	}
	cmd.Flags().StringVar(&input, inputFlag, "", "raw transactions CSV (default data/raw/creditcard.csv)")
	return cmd
}

func (a *app) trainCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the fraud classifier on featured transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStage(cmd, &pipeline.TrainStage{Deps: a.deps(cmd), InputFile: input})
		},
	}
	cmd.Flags().StringVar(&input, inputFlag, "", "featured transactions CSV (default data/processed/featured_transactions.csv)")
	return cmd
}

func (a *app) predictCmd() *cobra.Command {
	var (
		input string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score transactions with the trained model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStage(cmd, &pipeline.PredictStage{
				Deps:      a.deps(cmd),
				InputFile: input,
				Limit:     limit,
				Preview:   true,
			})
		},
	}
	cmd.Flags().StringVar(&input, inputFlag, "", "feature-compatible CSV (default data/processed/featured_transactions.csv)")
	cmd.Flags().IntVar(&limit, "limit", 0, "score only the first N rows (0 scores every row)")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var (
		input     string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the risk dashboard from predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stage := &pipeline.ReportStage{Deps: a.deps(cmd), InputFile: input, Preview: true}
			if cmd.Flags().Changed("threshold") {
				stage.Threshold = &threshold
			}
			return a.runStage(cmd, stage)
		},
	}
	cmd.Flags().StringVar(&input, inputFlag, "", "predictions CSV (default results/predictions/predictions.csv)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "flag rows with fraud probability at or above this value instead of using the model's prediction")
	return cmd
}
