// Package report turns scored transactions into a human-readable risk
// dashboard.
package report

import (
	"math"
	"sort"

	"github.com/hed1ad/fraudguard/pkg/classifiers"
	"github.com/hed1ad/fraudguard/pkg/dataset"
)

// Columns appended to scored tables.
const (
	PredictionColumn  = "fraud_prediction"
	ProbabilityColumn = "fraud_probability"
)

// Report column labels.
const (
	TimeLabel        = "Transaction Time (s)"
	AmountLabel      = "Transaction Amount"
	UserLabel        = "User ID"
	FlaggedLabel     = "Flagged as Fraud"
	ProbabilityLabel = "Fraud Probability (%)"
)

// DiagnosticPrefix selects the anonymized feature columns kept for
// investigation.
const DiagnosticPrefix = "V"

var renamed = []struct {
	from, to string
}{
	{"Time", TimeLabel},
	{"Amount", AmountLabel},
	{"user_id", UserLabel},
	{PredictionColumn, FlaggedLabel},
	{ProbabilityColumn, ProbabilityLabel},
}

// Option configures Generate.
type Option func(*generator)

// WithThreshold flags rows whose probability is at least t instead of
// using the prediction column.
func WithThreshold(t float64) Option {
	return func(g *generator) {
		g.threshold = t
		g.useThreshold = true
	}
}

type generator struct {
	threshold    float64
	useThreshold bool
}

// Header returns the report columns for a predictions table.
func Header(predictions *dataset.Table) []string {
	header := make([]string, 0, len(renamed))
	for _, r := range renamed {
		header = append(header, r.to)
	}
	return append(header, predictions.ColumnsWithPrefix(DiagnosticPrefix)...)
}

// Generate keeps flagged rows, renames and rounds the key columns, appends
// the diagnostic columns and sorts by descending probability. With no
// flagged rows it returns an empty table carrying the full header.
func Generate(predictions *dataset.Table, opts ...Option) (*dataset.Table, error) {
	g := &generator{}
	for _, opt := range opts {
		opt(g)
	}

	source := make([]string, 0, len(renamed))
	for _, r := range renamed {
		source = append(source, r.from)
	}
	diagnostics := predictions.ColumnsWithPrefix(DiagnosticPrefix)

	projected, err := predictions.Select(append(source, diagnostics...)...)
	if err != nil {
		return nil, err
	}

	const (
		amountCol = 1
		flagCol   = 3
		probCol   = 4
	)

	rows := [][]float64{}
	for _, row := range projected.Rows {
		flagged := row[flagCol] == classifiers.Positive
		if g.useThreshold {
			flagged = row[probCol] >= g.threshold
		}
		if !flagged {
			continue
		}

		row[flagCol] = classifiers.Positive
		row[amountCol] = round2(row[amountCol])
		row[probCol] = round2(row[probCol] * 100)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][probCol] > rows[j][probCol]
	})

	return dataset.New(Header(predictions), rows)
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
