package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hed1ad/fraudguard/internal/logging"
	"github.com/hed1ad/fraudguard/pkg/classifiers"
	"github.com/hed1ad/fraudguard/pkg/classifiers/forest"
	"github.com/hed1ad/fraudguard/pkg/dataset"
	"github.com/hed1ad/fraudguard/pkg/evaluation"
	"github.com/hed1ad/fraudguard/pkg/features"
	"github.com/hed1ad/fraudguard/pkg/sampling"
)

// LabelColumn holds the ground truth in raw and featured data.
const LabelColumn = "Class"

// NonFeatureColumns are excluded from the model inputs.
var NonFeatureColumns = []string{LabelColumn, "Time", features.UserIDColumn, features.IndexColumn}

const topImportances = 10

// TrainStage fits the fraud classifier on featured data.
type TrainStage struct {
	Deps
	// InputFile overrides the configured featured data path.
	InputFile string
}

// Name implements Stage.
func (s *TrainStage) Name() string { return StageTrain }

// Input implements Stage.
func (s *TrainStage) Input() string { return inputOr(s.InputFile, s.Config.ProcessedDataPath) }

// Run implements Stage.
func (s *TrainStage) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	cfg := s.Config

	data, err := readTable(s.Name(), s.Input())
	if err != nil {
		return err
	}
	log.Info().Str("path", s.Input()).Int("rows", data.Len()).Msg("Loaded featured data")

	y, err := labels(data)
	if err != nil {
		return err
	}
	inputs := data.Drop(NonFeatureColumns...)
	featureNames := inputs.Columns
	X := inputs.Matrix()

	train, test, err := sampling.StratifiedSplit(y, cfg.TestSize, cfg.Seed)
	if err != nil {
		return err
	}
	XTrain, yTrain := sampling.Rows(X, train), sampling.Labels(y, train)
	XTest, yTest := sampling.Rows(X, test), sampling.Labels(y, test)
	log.Info().Int("train", len(train)).Int("test", len(test)).Msg("Split data")

	log.Info().Interface("before", sampling.ClassCounts(yTrain)).Msg("Applying SMOTE to training data")
	smote := sampling.SMOTE{K: cfg.SMOTENeighbors, Seed: cfg.Seed}
	XTrain, yTrain, err = smote.FitResample(XTrain, yTrain)
	if err != nil {
		return err
	}
	log.Info().Interface("after", sampling.ClassCounts(yTrain)).Msg("Resampled training data")

	if err := ctx.Err(); err != nil {
		return err
	}

	model := forest.NewFromConfig(cfg.Forest)
	log.Info().Int("trees", cfg.Forest.Trees).Int("features", len(featureNames)).Msg("Training random forest")
	if err := model.Fit(XTrain, yTrain); err != nil {
		return err
	}

	if err := s.evaluate(ctx, model, XTest, yTest); err != nil {
		return err
	}
	logImportances(ctx, model, featureNames)

	if err := SaveModel(cfg.ModelPath, cfg.FeatureListPath, model, featureNames); err != nil {
		return err
	}
	s.Metrics.SetRows(s.Name(), len(yTrain))
	log.Info().Str("model", cfg.ModelPath).Str("features", cfg.FeatureListPath).Msg("Model saved")
	return nil
}

func (s *TrainStage) evaluate(ctx context.Context, model *forest.RandomForest, X [][]float64, y []int) error {
	log := logging.FromContext(ctx)

	proba, err := model.PredictProba(X)
	if err != nil {
		return err
	}
	pred, err := model.Predict(X)
	if err != nil {
		return err
	}
	rpt, err := evaluation.Evaluate(y, pred, proba)
	if err != nil {
		return err
	}

	rpt.Render(s.out())

	s.Metrics.SetModelScore("accuracy", rpt.Accuracy)
	if math.IsNaN(rpt.ROCAUC) {
		log.Warn().Msg("ROC AUC undefined: test partition holds a single class")
	} else {
		s.Metrics.SetModelScore("roc_auc", rpt.ROCAUC)
	}
	log.Info().Float64("accuracy", rpt.Accuracy).Float64("roc_auc", rpt.ROCAUC).Msg("Model evaluation")
	return nil
}

func logImportances(ctx context.Context, model *forest.RandomForest, names []string) {
	log := logging.FromContext(ctx)

	importances, err := model.FeatureImportances()
	if err != nil {
		return
	}
	order := make([]int, len(importances))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return importances[order[a]] > importances[order[b]]
	})

	for _, i := range order[:min(topImportances, len(order))] {
		log.Debug().Str("feature", names[i]).Float64("importance", importances[i]).Msg("Feature importance")
	}
}

// labels extracts the binary label column.
func labels(data *dataset.Table) ([]int, error) {
	col, err := data.Column(LabelColumn)
	if err != nil {
		return nil, err
	}
	y := make([]int, len(col))
	for i, v := range col {
		switch v {
		case 0:
			y[i] = classifiers.Negative
		case 1:
			y[i] = classifiers.Positive
		default:
			return nil, fmt.Errorf("row %d: %s must be 0 or 1, got %v", i, LabelColumn, v)
		}
	}
	return y, nil
}
