package pipeline

import (
	"context"
	"strings"

	"github.com/hed1ad/fraudguard/internal/logging"
	"github.com/hed1ad/fraudguard/pkg/classifiers/forest"
	"github.com/hed1ad/fraudguard/pkg/dataset"
	"github.com/hed1ad/fraudguard/pkg/io/csv"
	"github.com/hed1ad/fraudguard/pkg/report"
)

const previewRows = 5

// PredictStage scores transactions with the trained model.
type PredictStage struct {
	Deps
	// InputFile overrides the configured featured data path.
	InputFile string
	// Limit scores only the first Limit rows. 0 scores everything.
	Limit int
	// Preview prints the leading predictions to Out.
	Preview bool
}

// Name implements Stage.
func (s *PredictStage) Name() string { return StagePredict }

// Input implements Stage.
func (s *PredictStage) Input() string { return inputOr(s.InputFile, s.Config.ProcessedDataPath) }

// Run implements Stage.
func (s *PredictStage) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	cfg := s.Config

	data, err := readTable(s.Name(), s.Input())
	if err != nil {
		return err
	}
	data = data.Head(s.Limit)

	model, names, err := LoadModel(cfg.ModelPath, cfg.FeatureListPath)
	if err != nil {
		return missingInput(s.Name(), cfg.ModelPath, err)
	}
	log.Info().Str("path", cfg.ModelPath).Msg("Model loaded")

	scored, err := Score(model, names, data)
	if err != nil {
		return err
	}
	log.Info().Int("rows", scored.Len()).Msg("Predictions generated")

	if err := csv.WriteFile(cfg.PredictionsPath, scored); err != nil {
		return err
	}
	s.Metrics.SetRows(s.Name(), scored.Len())
	log.Info().Str("path", cfg.PredictionsPath).Msg("Predictions saved")

	if s.Preview {
		report.Preview(s.out(), scored, previewColumns(scored), previewRows)
	}
	return nil
}

// Score validates data against the trained feature list and appends the
// prediction and probability columns. Input columns are left untouched.
func Score(model *forest.RandomForest, featureNames []string, data *dataset.Table) (*dataset.Table, error) {
	if missing := data.Missing(featureNames...); len(missing) > 0 {
		return nil, &MissingFeaturesError{Missing: missing}
	}

	X, err := data.Select(featureNames...)
	if err != nil {
		return nil, err
	}
	proba, err := model.PredictProba(X.Matrix())
	if err != nil {
		return nil, err
	}
	pred, err := model.Predict(X.Matrix())
	if err != nil {
		return nil, err
	}

	flags := make([]float64, len(pred))
	for i, p := range pred {
		flags[i] = float64(p)
	}
	return data.WithColumns([]string{report.PredictionColumn, report.ProbabilityColumn}, flags, proba)
}

func previewColumns(t *dataset.Table) []string {
	cols := []string{"Amount", report.PredictionColumn, report.ProbabilityColumn}
	for _, c := range t.Columns {
		if strings.Contains(c, "user") {
			cols = append(cols, c)
		}
	}
	return cols
}
