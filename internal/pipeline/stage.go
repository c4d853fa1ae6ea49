// Package pipeline wires the feature, training, prediction and reporting
// stages into a single batch run.
package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/hed1ad/fraudguard/internal/config"
	"github.com/hed1ad/fraudguard/internal/metrics"
)

// Stage names
const (
	StageFeatures = "features"
	StageTrain    = "train"
	StagePredict  = "predict"
	StageReport   = "report"
)

// Stage is one step of the pipeline. Run reads the stage's input file and
// writes its single artifact.
type Stage interface {
	Name() string
	// Input returns the file the stage will read.
	Input() string
	Run(ctx context.Context) error
}

// Deps are the dependencies shared by every stage.
type Deps struct {
	Config  *config.Config
	Metrics *metrics.Recorder // may be nil
	// Out receives human-readable tables: the evaluation report and
	// previews.
	Out io.Writer
}

func (d Deps) out() io.Writer {
	if d.Out == nil {
		return os.Stdout
	}
	return d.Out
}

// Stages returns the four stages in run order, each reading the previous
// stage's default output.
func Stages(deps Deps) []Stage {
	return []Stage{
		&FeatureStage{Deps: deps},
		&TrainStage{Deps: deps},
		&PredictStage{Deps: deps},
		&ReportStage{Deps: deps},
	}
}

func inputOr(path, fallback string) string {
	if path != "" {
		return path
	}
	return fallback
}
