// Package sampling provides train/test partitioning and minority-class
// oversampling.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices into train and test sets while
// preserving the class proportions of y in both.
//
// The test set holds ceil(n*testSize) rows. Train rows are apportioned to
// classes by largest remainder, so every class ratio is kept up to rounding.
func StratifiedSplit(y []int, testSize float64, seed int64) (train, test []int, err error) {
	n := len(y)
	if n < 2 {
		return nil, nil, errors.New("need at least two samples to split")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTrain < 1 || nTest < 1 {
		return nil, nil, fmt.Errorf("test size %v leaves an empty partition for %d samples", testSize, n)
	}

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	trainCounts := apportion(classes, byClass, nTrain, n)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		train = append(train, members[:trainCounts[c]]...)
		test = append(test, members[trainCounts[c]:]...)
	}

	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })

	return train, test, nil
}

// apportion distributes total slots over classes proportionally to their
// sizes using the largest-remainder method. Ties go to the smaller label.
func apportion(classes []int, byClass map[int][]int, total, n int) map[int]int {
	counts := make(map[int]int, len(classes))
	type remainder struct {
		class int
		frac  float64
	}
	rems := make([]remainder, 0, len(classes))

	assigned := 0
	for _, c := range classes {
		exact := float64(len(byClass[c])) * float64(total) / float64(n)
		floor := int(math.Floor(exact))
		counts[c] = floor
		assigned += floor
		rems = append(rems, remainder{class: c, frac: exact - float64(floor)})
	}

	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < total && i < len(rems); i++ {
		c := rems[i].class
		if counts[c] < len(byClass[c]) {
			counts[c]++
			assigned++
		}
	}
	return counts
}

// Rows returns the rows of X at the given indices. Rows are shared, not
// copied.
func Rows(X [][]float64, indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = X[idx]
	}
	return out
}

// Labels returns the labels at the given indices.
func Labels(y []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}

// ClassCounts returns how many samples carry each label.
func ClassCounts(y []int) map[int]int {
	counts := make(map[int]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}
