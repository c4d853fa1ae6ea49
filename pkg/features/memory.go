package features

import (
	"context"
	"math"
	"sort"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

var _ Engine = (*MemoryEngine)(nil)

// MemoryEngine evaluates aggregates in process: rows are ordered by user and
// time, then each aggregate is computed from prefix accumulators over the
// user's earlier rows.
type MemoryEngine struct{}

// NewMemoryEngine creates an in-process aggregation engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

// Aggregate implements Engine.
func (e *MemoryEngine) Aggregate(ctx context.Context, t *dataset.Table, spec Spec) (*dataset.Table, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if missing := t.Missing(spec.requiredColumns()...); len(missing) > 0 {
		return nil, &dataset.MissingColumnsError{Missing: missing}
	}

	groups := groupByUser(t, spec)

	values := make([][]float64, len(spec.Aggregates))
	for i, a := range spec.Aggregates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var col []float64
		if a.Column != "" {
			col, _ = t.Column(a.Column)
		}

		out := make([]float64, t.Len())
		for _, g := range groups {
			computeGroup(a, g, col, out)
		}
		values[i] = out
	}

	return t.WithColumns(spec.Names(), values...)
}

// groupByUser returns, per user, the row positions in (time, order) order.
func groupByUser(t *dataset.Table, spec Spec) [][]int {
	users, _ := t.Column(spec.UserColumn)
	times, _ := t.Column(spec.TimeColumn)
	order, _ := t.Column(spec.OrderColumn)

	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if users[ra] != users[rb] {
			return users[ra] < users[rb]
		}
		if times[ra] != times[rb] {
			return times[ra] < times[rb]
		}
		return order[ra] < order[rb]
	})

	var groups [][]int
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && users[rows[end]] == users[rows[start]] {
			end++
		}
		groups = append(groups, rows[start:end])
		start = end
	}
	return groups
}

// computeGroup fills out for one user's rows, given in time order.
func computeGroup(a Aggregate, rows []int, col []float64, out []float64) {
	n := len(rows)

	// prefix[k] accumulates the first k rows of the group.
	var sum, sumSq, lo, hi []float64
	switch a.Op {
	case OpSum, OpMean, OpStd:
		sum = make([]float64, n+1)
		sumSq = make([]float64, n+1)
		for k, r := range rows {
			sum[k+1] = sum[k] + col[r]
			sumSq[k+1] = sumSq[k] + col[r]*col[r]
		}
	case OpMin, OpMax:
		if a.Window == 0 {
			lo = make([]float64, n+1)
			hi = make([]float64, n+1)
			lo[0], hi[0] = math.Inf(1), math.Inf(-1)
			for k, r := range rows {
				lo[k+1] = math.Min(lo[k], col[r])
				hi[k+1] = math.Max(hi[k], col[r])
			}
		}
	}

	for p, r := range rows {
		start := 0
		if a.Window > 0 && p > a.Window {
			start = p - a.Window
		}
		count := p - start

		var v float64
		switch a.Op {
		case OpCount:
			v = float64(count)
		case OpSum:
			v = sum[p] - sum[start]
		case OpMean:
			if count > 0 {
				v = (sum[p] - sum[start]) / float64(count)
			}
		case OpStd:
			if count > 1 {
				s := sum[p] - sum[start]
				sq := sumSq[p] - sumSq[start]
				variance := (sq - s*s/float64(count)) / float64(count-1)
				v = math.Sqrt(math.Max(variance, 0))
			}
		case OpMin, OpMax:
			if count > 0 {
				v = windowExtreme(a, rows[start:p], col, lo, hi, p)
			}
		case OpDelta:
			if p > 0 {
				v = col[r] - col[rows[p-1]]
			}
		}
		out[r] = v
	}
}

func windowExtreme(a Aggregate, prior []int, col, lo, hi []float64, p int) float64 {
	if a.Window == 0 {
		if a.Op == OpMin {
			return lo[p]
		}
		return hi[p]
	}

	v := col[prior[0]]
	for _, r := range prior[1:] {
		if a.Op == OpMin {
			v = math.Min(v, col[r])
		} else {
			v = math.Max(v, col[r])
		}
	}
	return v
}
