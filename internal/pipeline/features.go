package pipeline

import (
	"context"

	"github.com/hed1ad/fraudguard/internal/config"
	"github.com/hed1ad/fraudguard/internal/logging"
	"github.com/hed1ad/fraudguard/pkg/features"
	"github.com/hed1ad/fraudguard/pkg/io/csv"
)

// FeatureStage attaches synthetic user ids to raw transactions and derives
// the per-user aggregates.
type FeatureStage struct {
	Deps
	// InputFile overrides the configured raw data path.
	InputFile string
	// Engine overrides the engine chosen by Config.FeatureEngine.
	Engine features.Engine
}

// Name implements Stage.
func (s *FeatureStage) Name() string { return StageFeatures }

// Input implements Stage.
func (s *FeatureStage) Input() string { return inputOr(s.InputFile, s.Config.RawDataPath) }

// Run implements Stage.
func (s *FeatureStage) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	cfg := s.Config

	raw, err := readTable(s.Name(), s.Input())
	if err != nil {
		return err
	}
	log.Info().Str("path", s.Input()).Int("rows", raw.Len()).Msg("Loaded raw transactions")

	spec, err := features.LoadSpec(cfg.FeatureSpecPath)
	if err != nil {
		return missingInput(s.Name(), cfg.FeatureSpecPath, err)
	}

	withUsers, err := features.AssignUserIDs(raw, cfg.NumUsers, cfg.Seed)
	if err != nil {
		return err
	}
	log.Debug().Int("users", cfg.NumUsers).Msg("Assigned synthetic user ids")

	engine := s.engine()
	log.Info().Int("aggregates", len(spec.Aggregates)).Str("engine", cfg.FeatureEngine).Msg("Computing user aggregates")
	featured, err := engine.Aggregate(ctx, withUsers, spec)
	if err != nil {
		return err
	}

	if err := csv.WriteFile(cfg.ProcessedDataPath, featured); err != nil {
		return err
	}
	s.Metrics.SetRows(s.Name(), featured.Len())
	log.Info().Str("path", cfg.ProcessedDataPath).Int("columns", len(featured.Columns)).Msg("Featured data saved")
	return nil
}

func (s *FeatureStage) engine() features.Engine {
	if s.Engine != nil {
		return s.Engine
	}
	if s.Config.FeatureEngine == config.EnginePostgres {
		return features.NewPostgresEngine(s.Config.DatabaseURL)
	}
	return features.NewMemoryEngine()
}
