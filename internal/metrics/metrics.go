// Package metrics records per-run pipeline statistics and writes them in the
// Prometheus text exposition format.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fraudguard"

// Recorder holds the gauges for one pipeline run. Each run gets its own
// registry so repeated runs in one process never collide. A nil Recorder
// discards every observation.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.GaugeVec
	stageStatus   *prometheus.GaugeVec
	rows          *prometheus.GaugeVec
	modelScore    *prometheus.GaugeVec
	flagged       prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New creates a recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of the last run of each stage.",
			},
			[]string{"stage"},
		),
		stageStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_success",
				Help:      "1 if the stage completed, 0 if it failed.",
			},
			[]string{"stage"},
		),
		rows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_rows",
				Help:      "Rows written by each stage.",
			},
			[]string{"stage"},
		),
		modelScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_score",
				Help:      "Hold-out evaluation scores of the trained model.",
			},
			[]string{"metric"},
		),
		flagged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flagged_transactions",
				Help:      "Transactions included in the risk report.",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the run finished.",
			},
		),
	}

	r.registry.MustRegister(r.stageDuration, r.stageStatus, r.rows, r.modelScore, r.flagged, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records a finished stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
	if err != nil {
		r.stageStatus.WithLabelValues(stage).Set(0)
		return
	}
	r.stageStatus.WithLabelValues(stage).Set(1)
}

// SetRows records how many rows a stage produced.
func (r *Recorder) SetRows(stage string, n int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(stage).Set(float64(n))
}

// SetModelScore records an evaluation score such as accuracy or roc_auc.
func (r *Recorder) SetModelScore(metric string, v float64) {
	if r == nil {
		return
	}
	r.modelScore.WithLabelValues(metric).Set(v)
}

// SetFlagged records the size of the risk report.
func (r *Recorder) SetFlagged(n int) {
	if r == nil {
		return
	}
	r.flagged.Set(float64(n))
}

// WriteTextfile stamps the run time and writes every metric to path,
// creating parent directories. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	r.lastRun.Set(float64(time.Now().Unix()))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
