package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hed1ad/fraudguard/internal/logging"
	"github.com/hed1ad/fraudguard/internal/metrics"
)

// Status is the lifecycle state of a stage within a run.
type Status int

const (
	NotStarted Status = iota
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Runner executes stages in order and stops at the first failure. Stages
// after a failed one stay NotStarted. Nothing is retried.
type Runner struct {
	stages  []Stage
	results []StageResult

	logger      zerolog.Logger
	metrics     *metrics.Recorder
	metricsPath string
	runID       string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger every stage log line goes through.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records stage outcomes on m and, when path is not empty,
// writes them to path after the run.
func WithMetrics(m *metrics.Recorder, path string) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
		r.metricsPath = path
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner creates a runner for the given stages.
func NewRunner(stages []Stage, opts ...RunnerOption) *Runner {
	r := &Runner{
		stages: stages,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = logging.NewRunID()
	}

	r.results = make([]StageResult, len(stages))
	for i, s := range stages {
		r.results[i] = StageResult{Name: s.Name(), Status: NotStarted}
	}
	return r
}

// RunID identifies this run in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Results returns the per-stage outcomes in run order.
func (r *Runner) Results() []StageResult {
	return append([]StageResult(nil), r.results...)
}

// Status returns the state of the named stage, or NotStarted if the runner
// has no such stage.
func (r *Runner) Status(name string) Status {
	for _, res := range r.results {
		if res.Name == name {
			return res.Status
		}
	}
	return NotStarted
}

// Run executes every stage and returns the first error.
func (r *Runner) Run(ctx context.Context) error {
	log := logging.WithRunID(r.logger, r.runID)
	log.Info().Int("stages", len(r.stages)).Msg("Fraud detection pipeline started")

	err := r.run(ctx, log)

	if r.metrics != nil && r.metricsPath != "" {
		if werr := r.metrics.WriteTextfile(r.metricsPath); werr != nil {
			log.Warn().Err(werr).Str("path", r.metricsPath).Msg("Failed to write run metrics")
		}
	}

	if err != nil {
		log.Error().Err(err).Msg("Fraud detection pipeline failed")
		return err
	}
	log.Info().Msg("Fraud detection pipeline finished")
	return nil
}

func (r *Runner) run(ctx context.Context, log zerolog.Logger) error {
	for i, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		stageLog := log.With().Str("stage", stage.Name()).Logger()
		stageCtx := logging.WithContext(ctx, stageLog)

		r.results[i].Status = Running
		stageLog.Info().Int("step", i+1).Str("input", stage.Input()).Msg("Stage started")

		start := time.Now()
		err := wrap(stage.Name(), stage.Run(stageCtx))
		elapsed := time.Since(start)

		r.results[i].Duration = elapsed
		r.metrics.ObserveStage(stage.Name(), elapsed, err)

		if err != nil {
			r.results[i].Status = Failed
			r.results[i].Err = err
			stageLog.Error().Err(err).Dur("elapsed", elapsed).Msg("Stage failed")
			return err
		}

		r.results[i].Status = Completed
		stageLog.Info().Dur("elapsed", elapsed).Msg("Stage completed")
	}
	return nil
}

// IsMissingInput reports whether err came from an absent input file.
func IsMissingInput(err error) bool {
	var target *MissingInputError
	return errors.As(err, &target)
}
