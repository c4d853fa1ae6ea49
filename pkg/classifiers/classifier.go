// Package classifiers provides supervised binary classification algorithms.
package classifiers

import (
	"errors"
	"fmt"
)

// Class labels.
const (
	Negative = 0 // legitimate
	Positive = 1 // fraud
)

// ErrNotTrained is returned when a classifier is used before Fit or Load.
var ErrNotTrained = errors.New("model not trained")

// Classifier is the common interface for binary classifiers.
type Classifier interface {
	// Fit trains the classifier.
	// X is a 2D slice where each row is a sample and each column is a feature;
	// y holds one label (Negative or Positive) per row.
	Fit(X [][]float64, y []int) error

	// Predict returns a label for every sample.
	Predict(X [][]float64) ([]int, error)

	// PredictProba returns the probability of the Positive class for every
	// sample, in [0, 1].
	PredictProba(X [][]float64) ([]float64, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// ClassWeight selects how samples are weighted by class during fitting.
type ClassWeight int

const (
	// Uniform gives every sample weight 1.
	Uniform ClassWeight = iota
	// Balanced weights class c by n / (k * count(c)), k being the number of
	// classes present.
	Balanced
)

// Config holds common configuration for classifiers.
type Config struct {
	// Trees is the ensemble size.
	Trees int
	// MaxDepth bounds tree depth; 0 means unlimited.
	MaxDepth int
	// MinSamplesLeaf is the smallest number of samples in a leaf.
	MinSamplesLeaf int
	// Workers is the fitting parallelism; 0 uses every available CPU.
	Workers int
	// ClassWeight selects per-class sample weighting.
	ClassWeight ClassWeight
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for classifier configuration.
func DefaultConfig() Config {
	return Config{
		Trees:          100,
		MaxDepth:       0,
		MinSamplesLeaf: 1,
		Workers:        0,
		ClassWeight:    Balanced,
		RandomSeed:     42,
	}
}

// ValidateLabels checks that y matches X in length and only holds
// Negative or Positive.
func ValidateLabels(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%d samples but %d labels", len(X), len(y))
	}
	for i, label := range y {
		if label != Negative && label != Positive {
			return fmt.Errorf("sample %d: label %d is not binary", i, label)
		}
	}
	return nil
}

// BalancedWeights returns the per-class weights n / (k * count(c)), where k
// is the number of classes present in y. A class that does not occur gets
// weight 0.
func BalancedWeights(y []int) [2]float64 {
	var counts [2]int
	for _, label := range y {
		counts[label]++
	}

	present := 0
	for _, n := range counts {
		if n > 0 {
			present++
		}
	}

	var w [2]float64
	for c, n := range counts {
		if n > 0 {
			w[c] = float64(len(y)) / (float64(present) * float64(n))
		}
	}
	return w
}
