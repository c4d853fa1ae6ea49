package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudguard/internal/config"
	"github.com/hed1ad/fraudguard/internal/metrics"
	"github.com/hed1ad/fraudguard/pkg/classifiers/forest"
	"github.com/hed1ad/fraudguard/pkg/dataset"
	"github.com/hed1ad/fraudguard/pkg/io/csv"
	"github.com/hed1ad/fraudguard/pkg/report"
)

const rawFixture = `Time,V1,V2,Amount,Class
0,-1.2,0.3,149.62,0
0,1.1,0.2,2.69,0
1,-1.3,-1.3,378.66,0
1,-0.9,-0.1,123.5,0
2,-1.1,0.8,69.99,0
2,-0.4,0.9,3.67,0
4,1.2,0.1,4.99,0
7,-0.6,1.1,40.8,0
7,4.5,-3.1,0,1
9,5.1,-2.8,1,1
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default(dir)
	cfg.FeatureSpecPath = filepath.Join("..", "..", "queries", "user_aggregates.yaml")
	cfg.NumUsers = 3
	cfg.Forest.Trees = 10
	cfg.Forest.Workers = 2
	return cfg
}

func writeRaw(t *testing.T, cfg *config.Config) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RawDataPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.RawDataPath, []byte(rawFixture), 0o644))
}

func runAll(t *testing.T, cfg *config.Config) (*Runner, *bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	m := metrics.New()
	r := NewRunner(Stages(Deps{Config: cfg, Metrics: m, Out: out}), WithMetrics(m, cfg.MetricsPath))
	return r, out, r.Run(context.Background())
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeRaw(t, cfg)

	r, out, err := runAll(t, cfg)
	require.NoError(t, err)

	for _, res := range r.Results() {
		assert.Equal(t, Completed, res.Status, res.Name)
	}
	assert.Contains(t, strings.ToLower(out.String()), "accuracy")

	featured, err := csv.ReadFile(cfg.ProcessedDataPath)
	require.NoError(t, err)
	assert.Equal(t, 10, featured.Len())
	assert.Equal(t, []string{"Time", "V1", "V2", "Amount", "Class", "index", "user_id"}, featured.Columns[:7])
	assert.Len(t, featured.Columns, 14)
	for i, row := range featured.Rows {
		for j, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "row %d column %s is %v", i, featured.Columns[j], v)
		}
	}

	predictions, err := csv.ReadFile(cfg.PredictionsPath)
	require.NoError(t, err)
	assert.Equal(t, 10, predictions.Len())
	assert.Equal(t, append(append([]string(nil), featured.Columns...), report.PredictionColumn, report.ProbabilityColumn), predictions.Columns)

	probs, err := predictions.Column(report.ProbabilityColumn)
	require.NoError(t, err)
	flags, err := predictions.Column(report.PredictionColumn)
	require.NoError(t, err)
	for i, p := range probs {
		assert.True(t, p >= 0 && p <= 1, "probability %v out of range", p)
		if p > 0.5 {
			assert.Equal(t, 1.0, flags[i])
		} else {
			assert.Equal(t, 0.0, flags[i])
		}
	}

	rpt, err := csv.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, report.Header(predictions), rpt.Columns)

	flagged := 0
	for _, f := range flags {
		if f == 1 {
			flagged++
		}
	}
	assert.Equal(t, flagged, rpt.Len())

	reported, err := rpt.Column(report.FlaggedLabel)
	require.NoError(t, err)
	for _, f := range reported {
		assert.Equal(t, 1.0, f)
	}
	reportedProbs, err := rpt.Column(report.ProbabilityLabel)
	require.NoError(t, err)
	for i := 1; i < len(reportedProbs); i++ {
		assert.GreaterOrEqual(t, reportedProbs[i-1], reportedProbs[i])
	}

	model, names, err := LoadModel(cfg.ModelPath, cfg.FeatureListPath)
	require.NoError(t, err)
	assert.Equal(t, 10, model.NumTrees())
	assert.Equal(t, []string{"V1", "V2", "Amount"}, names[:3])
	assert.NotContains(t, names, "Class")
	assert.NotContains(t, names, "user_id")

	body, err := os.ReadFile(cfg.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fraudguard_stage_duration_seconds{stage="report"}`)
}

func TestRunnerDeterministic(t *testing.T) {
	first := testConfig(t)
	writeRaw(t, first)
	_, _, err := runAll(t, first)
	require.NoError(t, err)

	second := testConfig(t)
	second.Forest.Workers = 1
	writeRaw(t, second)
	_, _, err = runAll(t, second)
	require.NoError(t, err)

	for _, path := range [][2]string{
		{first.ProcessedDataPath, second.ProcessedDataPath},
		{first.PredictionsPath, second.PredictionsPath},
		{first.ReportPath, second.ReportPath},
	} {
		a, err := os.ReadFile(path[0])
		require.NoError(t, err)
		b, err := os.ReadFile(path[1])
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), filepath.Base(path[0]))
	}
}

func TestRunnerMissingInput(t *testing.T) {
	cfg := testConfig(t)

	r, _, err := runAll(t, cfg)
	require.Error(t, err)

	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, StageFeatures, missing.Stage)
	assert.Equal(t, cfg.RawDataPath, missing.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, IsMissingInput(err))

	assert.Equal(t, Failed, r.Status(StageFeatures))
	for _, name := range []string{StageTrain, StagePredict, StageReport} {
		assert.Equal(t, NotStarted, r.Status(name), name)
	}

	_, statErr := os.Stat(cfg.ProcessedDataPath)
	assert.True(t, os.IsNotExist(statErr))
}

type failingStage struct {
	name string
	err  error
	ran  bool
}

func (s *failingStage) Name() string  { return s.name }
func (s *failingStage) Input() string { return "" }
func (s *failingStage) Run(context.Context) error {
	s.ran = true
	return s.err
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	first := &failingStage{name: "first"}
	second := &failingStage{name: "second", err: errors.New("boom")}
	third := &failingStage{name: "third"}

	m := metrics.New()
	r := NewRunner([]Stage{first, second, third}, WithMetrics(m, ""), WithRunID("run-1"))
	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, "second: boom", err.Error())
	assert.Equal(t, "run-1", r.RunID())
	assert.True(t, first.ran)
	assert.False(t, third.ran)

	results := r.Results()
	require.Len(t, results, 3)
	assert.Equal(t, Completed, results[0].Status)
	assert.Equal(t, Failed, results[1].Status)
	assert.Equal(t, NotStarted, results[2].Status)
	assert.EqualError(t, results[1].Err, "second: boom")
}

func TestRunnerCancelled(t *testing.T) {
	stage := &failingStage{name: "only"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRunner([]Stage{stage}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, stage.ran)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not started", NotStarted.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}

// trainedModel fits a small forest on V1, V2 and Amount where a large V1
// marks fraud.
func trainedModel(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	X := [][]float64{
		{-1, 0, 10}, {-0.5, 1, 20}, {0, -1, 30}, {0.5, 0, 40},
		{-1.5, 0.5, 50}, {0.2, 0.2, 60}, {5, -3, 1}, {6, -2, 2},
	}
	y := []int{0, 0, 0, 0, 0, 0, 1, 1}
	names := []string{"V1", "V2", "Amount"}

	model := forest.New(forest.WithTrees(5), forest.WithSeed(1))
	require.NoError(t, model.Fit(X, y))
	require.NoError(t, SaveModel(cfg.ModelPath, cfg.FeatureListPath, model, names))
	return names
}

func writeTable(t *testing.T, path string, columns []string, rows [][]float64) {
	t.Helper()
	tbl, err := dataset.New(columns, rows)
	require.NoError(t, err)
	require.NoError(t, csv.WriteFile(path, tbl))
}

func TestSaveLoadModel(t *testing.T) {
	cfg := testConfig(t)
	names := trainedModel(t, cfg)

	model, loaded, err := LoadModel(cfg.ModelPath, cfg.FeatureListPath)
	require.NoError(t, err)
	assert.Equal(t, names, loaded)

	proba, err := model.PredictProba([][]float64{{5.5, -2.5, 1}})
	require.NoError(t, err)
	assert.Greater(t, proba[0], 0.5)
}

func TestSaveModelKeepsPairOnFailure(t *testing.T) {
	cfg := testConfig(t)
	trainedModel(t, cfg)

	before, err := os.ReadFile(cfg.ModelPath)
	require.NoError(t, err)

	// A directory where the feature list belongs makes the second file
	// impossible to replace.
	require.NoError(t, os.Remove(cfg.FeatureListPath))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.FeatureListPath, "child"), 0o755))

	other := forest.New(forest.WithTrees(2), forest.WithSeed(7))
	require.NoError(t, other.Fit([][]float64{{0, 0, 0}, {1, 1, 1}, {5, 5, 5}}, []int{0, 0, 1}))
	require.Error(t, SaveModel(cfg.ModelPath, cfg.FeatureListPath, other, []string{"V1", "V2", "Amount"}))

	after, err := os.ReadFile(cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTrainStageFailedSaveKeepsModel(t *testing.T) {
	cfg := testConfig(t)
	writeRaw(t, cfg)
	_, _, err := runAll(t, cfg)
	require.NoError(t, err)

	before, err := os.ReadFile(cfg.ModelPath)
	require.NoError(t, err)

	require.NoError(t, os.Remove(cfg.FeatureListPath))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.FeatureListPath, "child"), 0o755))

	cfg.Seed = 99
	cfg.Forest.RandomSeed = 99
	err = (&TrainStage{Deps: Deps{Config: cfg, Out: &bytes.Buffer{}}}).Run(context.Background())
	require.Error(t, err)

	after, err := os.ReadFile(cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPredictStage(t *testing.T) {
	cfg := testConfig(t)
	trainedModel(t, cfg)

	input := filepath.Join(t.TempDir(), "new.csv")
	// Columns out of training order plus extras.
	writeTable(t, input, []string{"Amount", "user_id", "V2", "V1", "Class"}, [][]float64{
		{10, 1, 0, -1, 0},
		{1, 2, -3, 5.5, 1},
		{20, 3, 1, -0.5, 0},
	})

	out := &bytes.Buffer{}
	stage := &PredictStage{Deps: Deps{Config: cfg, Out: out}, InputFile: input, Limit: 2, Preview: true}
	assert.Equal(t, input, stage.Input())
	require.NoError(t, stage.Run(context.Background()))

	predictions, err := csv.ReadFile(cfg.PredictionsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, predictions.Len())
	assert.Equal(t, []string{"Amount", "user_id", "V2", "V1", "Class", report.PredictionColumn, report.ProbabilityColumn}, predictions.Columns)

	flags, err := predictions.Column(report.PredictionColumn)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, flags)

	preview := out.String()
	assert.Contains(t, preview, report.ProbabilityColumn)
	assert.Contains(t, preview, "user_id")
	assert.NotContains(t, preview, "Class")
}

func TestPredictStageMissingFeatures(t *testing.T) {
	cfg := testConfig(t)
	trainedModel(t, cfg)

	input := filepath.Join(t.TempDir(), "new.csv")
	writeTable(t, input, []string{"Amount", "user_id"}, [][]float64{{10, 1}})

	stage := &PredictStage{Deps: Deps{Config: cfg}, InputFile: input}
	err := stage.Run(context.Background())

	var missing *MissingFeaturesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"V1", "V2"}, missing.Missing)

	_, statErr := os.Stat(cfg.PredictionsPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPredictStageMissingModel(t *testing.T) {
	cfg := testConfig(t)

	input := filepath.Join(t.TempDir(), "new.csv")
	writeTable(t, input, []string{"V1"}, [][]float64{{1}})

	err := (&PredictStage{Deps: Deps{Config: cfg}, InputFile: input}).Run(context.Background())

	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, cfg.ModelPath, missing.Path)
	assert.Equal(t, StagePredict, missing.Stage)
}

func TestTrainStageInvalidLabels(t *testing.T) {
	cfg := testConfig(t)
	writeTable(t, cfg.ProcessedDataPath, []string{"Time", "V1", "Class"}, [][]float64{
		{0, 1, 0}, {1, 2, 2}, {2, 3, 1},
	})

	err := (&TrainStage{Deps: Deps{Config: cfg}}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 0 or 1")
}

var predictionColumns = []string{"Time", "V1", "Amount", "user_id", report.PredictionColumn, report.ProbabilityColumn}

func TestReportStage(t *testing.T) {
	cfg := testConfig(t)
	writeTable(t, cfg.PredictionsPath, predictionColumns, [][]float64{
		{10, 0.5, 12.345, 3, 0, 0.2},
		{20, 1.5, 99.999, 1, 1, 0.9},
		{30, 2.5, 5, 2, 1, 0.75},
	})

	out := &bytes.Buffer{}
	m := metrics.New()
	stage := &ReportStage{Deps: Deps{Config: cfg, Metrics: m, Out: out}, Preview: true}
	require.NoError(t, stage.Run(context.Background()))

	rpt, err := csv.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	require.Equal(t, 2, rpt.Len())
	probs, err := rpt.Column(report.ProbabilityLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{90, 75}, probs)

	info, err := os.Stat(cfg.ChartPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, out.String(), report.UserLabel)
}

func TestReportStageChartFailureKeepsReport(t *testing.T) {
	cfg := testConfig(t)
	writeTable(t, cfg.PredictionsPath, predictionColumns, [][]float64{
		{20, 1.5, 99.999, 1, 1, 0.9},
	})
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.ReportPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.ReportPath, []byte("previous\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.ChartPath, "child"), 0o755))

	err := (&ReportStage{Deps: Deps{Config: cfg}}).Run(context.Background())
	require.Error(t, err)

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
}

func TestReportStageThreshold(t *testing.T) {
	cfg := testConfig(t)
	writeTable(t, cfg.PredictionsPath, predictionColumns, [][]float64{
		{10, 0.5, 12, 3, 0, 0.35},
		{20, 1.5, 99, 1, 1, 0.9},
		{30, 2.5, 5, 2, 0, 0.1},
	})

	threshold := 0.3
	stage := &ReportStage{Deps: Deps{Config: cfg}, Threshold: &threshold}
	require.NoError(t, stage.Run(context.Background()))

	rpt, err := csv.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, 2, rpt.Len())
}

func TestReportStageNothingFlagged(t *testing.T) {
	cfg := testConfig(t)
	writeTable(t, cfg.PredictionsPath, predictionColumns, [][]float64{
		{10, 0.5, 12, 3, 0, 0.2},
	})

	require.NoError(t, (&ReportStage{Deps: Deps{Config: cfg}}).Run(context.Background()))

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "Transaction Time (s),Transaction Amount,User ID,Flagged as Fraud,Fraud Probability (%),V1\n", string(data))

	_, statErr := os.Stat(cfg.ChartPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScoreLeavesInputUntouched(t *testing.T) {
	cfg := testConfig(t)
	names := trainedModel(t, cfg)
	model, _, err := LoadModel(cfg.ModelPath, cfg.FeatureListPath)
	require.NoError(t, err)

	in, err := dataset.New([]string{"V1", "V2", "Amount"}, [][]float64{{-1, 0, 10}})
	require.NoError(t, err)

	out, err := Score(model, names, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2", "Amount"}, in.Columns)
	assert.Len(t, out.Columns, 5)
	assert.False(t, math.IsNaN(out.Rows[0][4]))
}
