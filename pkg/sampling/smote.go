package sampling

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// SMOTE oversamples the minority class of a binary dataset by interpolating
// between minority samples and their nearest minority neighbours.
//
// It must only ever be applied to a training partition.
type SMOTE struct {
	// K is the number of nearest minority neighbours to interpolate toward.
	K int
	// Seed for reproducibility.
	Seed int64
}

// NewSMOTE returns a SMOTE with five neighbours.
func NewSMOTE(seed int64) SMOTE {
	return SMOTE{K: 5, Seed: seed}
}

// FitResample returns X and y followed by enough synthetic minority samples
// to make both classes equally frequent. Original rows are shared, not
// copied. With a single minority sample the synthetic rows are copies of it.
func (s SMOTE) FitResample(X [][]float64, y []int) ([][]float64, []int, error) {
	if len(X) != len(y) {
		return nil, nil, fmt.Errorf("%d samples but %d labels", len(X), len(y))
	}
	if len(X) == 0 {
		return nil, nil, errors.New("empty training data")
	}

	counts := ClassCounts(y)
	if len(counts) != 2 {
		return nil, nil, fmt.Errorf("oversampling needs exactly two classes, got %d", len(counts))
	}

	minority, majority := minorityMajority(counts)
	needed := counts[majority] - counts[minority]

	outX := append(make([][]float64, 0, len(X)+needed), X...)
	outY := append(make([]int, 0, len(y)+needed), y...)
	if needed == 0 {
		return outX, outY, nil
	}

	var members [][]float64
	for i, label := range y {
		if label == minority {
			members = append(members, X[i])
		}
	}

	k := s.K
	if k <= 0 {
		k = 5
	}
	k = min(k, len(members)-1)

	neighbors := nearestNeighbors(members, k)
	rng := rand.New(rand.NewSource(s.Seed))

	for n := 0; n < needed; n++ {
		i := rng.Intn(len(members))
		base := members[i]

		synthetic := make([]float64, len(base))
		copy(synthetic, base)
		if k > 0 {
			nn := members[neighbors[i][rng.Intn(k)]]
			gap := rng.Float64()
			// synthetic = base + gap*(nn - base)
			floats.AddScaled(synthetic, gap, nn)
			floats.AddScaled(synthetic, -gap, base)
		}

		outX = append(outX, synthetic)
		outY = append(outY, minority)
	}

	return outX, outY, nil
}

func minorityMajority(counts map[int]int) (minority, majority int) {
	labels := make([]int, 0, 2)
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	minority, majority = labels[0], labels[1]
	if counts[minority] > counts[majority] {
		minority, majority = majority, minority
	}
	return minority, majority
}

// nearestNeighbors returns, for every point, the indices of its k nearest
// other points by Euclidean distance. Ties are broken by index.
func nearestNeighbors(points [][]float64, k int) [][]int {
	out := make([][]int, len(points))
	if k == 0 {
		return out
	}

	type candidate struct {
		index int
		dist  float64
	}
	cands := make([]candidate, 0, len(points)-1)

	for i, p := range points {
		cands = cands[:0]
		for j, q := range points {
			if i == j {
				continue
			}
			cands = append(cands, candidate{index: j, dist: floats.Distance(p, q, 2)})
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

		nn := make([]int, k)
		for a := 0; a < k; a++ {
			nn[a] = cands[a].index
		}
		out[i] = nn
	}
	return out
}
