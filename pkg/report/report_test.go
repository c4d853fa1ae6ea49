package report

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

func predictions(t *testing.T, rows [][]float64) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New(
		[]string{"index", "Time", "V1", "V2", "Amount", "Class", "user_id", "user_txn_count", PredictionColumn, ProbabilityColumn},
		rows,
	)
	require.NoError(t, err)
	return tbl
}

func TestGenerate(t *testing.T) {
	in := predictions(t, [][]float64{
		{0, 10, 0.1, 0.2, 12.345, 0, 7, 0, 0, 0.10},
		{1, 20, 1.1, 1.2, 99.999, 1, 8, 1, 1, 0.61},
		{2, 30, 2.1, 2.2, 5.005, 1, 9, 2, 1, 0.987654},
		{3, 40, 3.1, 3.2, 1, 0, 7, 1, 1, 0.61},
	})

	out, err := Generate(in)
	require.NoError(t, err)

	assert.Equal(t, []string{TimeLabel, AmountLabel, UserLabel, FlaggedLabel, ProbabilityLabel, "V1", "V2"}, out.Columns)
	require.Equal(t, 3, out.Len())

	probs, err := out.Column(ProbabilityLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{98.77, 61, 61}, probs)

	// Ties keep input order.
	times, err := out.Column(TimeLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 20, 40}, times)

	amounts, err := out.Column(AmountLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 100, 1}, amounts)

	flags, err := out.Column(FlaggedLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, flags)

	// The input is not modified.
	assert.Equal(t, 0.987654, in.Rows[2][9])
}

func TestGenerateNoFlaggedRows(t *testing.T) {
	in := predictions(t, [][]float64{
		{0, 10, 0.1, 0.2, 12.3, 0, 7, 0, 0, 0.1},
	})

	out, err := Generate(in)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, Header(in), out.Columns)
}

func TestGenerateWithThreshold(t *testing.T) {
	in := predictions(t, [][]float64{
		{0, 10, 0.1, 0.2, 12.3, 0, 7, 0, 0, 0.35},
		{1, 20, 0.1, 0.2, 12.3, 0, 7, 0, 1, 0.55},
		{2, 30, 0.1, 0.2, 12.3, 0, 7, 0, 0, 0.2},
	})

	out, err := Generate(in, WithThreshold(0.3))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	flags, err := out.Column(FlaggedLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, flags)

	probs, err := out.Column(ProbabilityLabel)
	require.NoError(t, err)
	assert.Equal(t, []float64{55, 35}, probs)
}

func TestGenerateMissingColumns(t *testing.T) {
	in, err := dataset.New([]string{"Time", "Amount"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	_, err = Generate(in)
	var missing *dataset.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{PredictionColumn, ProbabilityColumn, "user_id"}, missing.Missing)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.12, round2(0.125))
	assert.Equal(t, 2.5, round2(2.5))
	assert.Equal(t, 61.0, round2(0.61*100))
}

func TestRenderChart(t *testing.T) {
	in := predictions(t, [][]float64{
		{0, 10, 0.1, 0.2, 12.3, 1, 7, 0, 1, 0.9},
		{1, 20, 0.1, 0.2, 50, 1, 8, 0, 1, 0.7},
	})
	rpt, err := Generate(in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, rpt, 10))

	_, err = png.Decode(&buf)
	assert.NoError(t, err)

	empty, err := dataset.New(Header(in), [][]float64{})
	require.NoError(t, err)
	assert.Error(t, RenderChart(&bytes.Buffer{}, empty, 10))
}

func TestPreview(t *testing.T) {
	in := predictions(t, [][]float64{
		{0, 10, 0.1, 0.2, 12.3, 1, 7, 3, 1, 0.9},
	})

	var buf bytes.Buffer
	Preview(&buf, in, []string{"Amount", PredictionColumn, "missing", "user_txn_count"}, 5)

	out := buf.String()
	assert.Contains(t, out, "user_txn_count")
	assert.Contains(t, out, "12.3")
	assert.NotContains(t, out, "missing")
}
