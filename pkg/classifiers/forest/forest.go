// Package forest implements a random forest of CART trees for binary
// classification.
package forest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/fraudguard/pkg/classifiers"
)

var _ classifiers.Classifier = (*RandomForest)(nil)

// RandomForest implements supervised classification with bagged decision
// trees and Gini splits.
type RandomForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees         int
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
	workers        int
	classWeight    classifiers.ClassWeight
	seed           int64

	// Trained model
	trees       []*tree
	nFeatures   int
	importances []float64
	trained     bool
}

// tree is a single decision tree.
type tree struct {
	Root *node
}

// node is a node in a decision tree. Fields are exported for gob.
type node struct {
	// Split parameters (for internal nodes): samples with
	// x[Feature] <= Threshold go left.
	Feature   int
	Threshold float64

	// Children
	Left  *node
	Right *node

	// Value is the weighted fraction of Positive samples that reached this
	// node.
	Value float64
}

func (n *node) isLeaf() bool {
	return n.Left == nil
}

// Option configures a RandomForest.
type Option func(*RandomForest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *RandomForest) {
		f.nTrees = n
	}
}

// WithMaxDepth bounds tree depth. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(f *RandomForest) {
		f.maxDepth = d
	}
}

// WithMinSamplesLeaf sets the minimum number of distinct samples per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(f *RandomForest) {
		f.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many candidate features each split examines.
// 0 means sqrt(nFeatures).
func WithMaxFeatures(n int) Option {
	return func(f *RandomForest) {
		f.maxFeatures = n
	}
}

// WithWorkers sets how many trees are built concurrently. 0 uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *RandomForest) {
		f.workers = n
	}
}

// WithClassWeight selects per-class sample weighting.
func WithClassWeight(w classifiers.ClassWeight) Option {
	return func(f *RandomForest) {
		f.classWeight = w
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *RandomForest) {
		f.seed = seed
	}
}

// New creates a new RandomForest with the given options.
func New(opts ...Option) *RandomForest {
	f := &RandomForest{
		nTrees:         100,
		minSamplesLeaf: 1,
		classWeight:    classifiers.Balanced,
		seed:           42,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.minSamplesLeaf < 1 {
		f.minSamplesLeaf = 1
	}

	return f
}

// NewFromConfig creates a RandomForest from the shared classifier config.
func NewFromConfig(cfg classifiers.Config) *RandomForest {
	return New(
		WithTrees(cfg.Trees),
		WithMaxDepth(cfg.MaxDepth),
		WithMinSamplesLeaf(cfg.MinSamplesLeaf),
		WithWorkers(cfg.Workers),
		WithClassWeight(cfg.ClassWeight),
		WithSeed(cfg.RandomSeed),
	)
}

// Fit trains the forest on the provided data.
//
// Every tree's seed is drawn from the forest seed before any tree is built,
// so the fitted model does not depend on the number of workers.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(X) == 0 {
		return errors.New("empty training data")
	}
	if f.nTrees < 1 {
		return fmt.Errorf("invalid number of trees: %d", f.nTrees)
	}
	if err := classifiers.ValidateLabels(X, y); err != nil {
		return err
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return errors.New("training data has no features")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("sample %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	classWeights := [2]float64{1, 1}
	if f.classWeight == classifiers.Balanced {
		classWeights = classifiers.BalancedWeights(y)
	}

	mtry := f.maxFeatures
	if mtry <= 0 {
		mtry = int(math.Sqrt(float64(nFeatures)))
	}
	mtry = max(1, min(mtry, nFeatures))

	master := rand.New(rand.NewSource(f.seed))
	seeds := make([]int64, f.nTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := f.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*tree, f.nTrees)
	importances := make([][]float64, f.nTrees)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < f.nTrees; i++ {
		i := i // per-iteration copy (go directive lowered to 1.21 for local toolchain)
		g.Go(func() error {
			b := &builder{
				X:              X,
				y:              y,
				rng:            rand.New(rand.NewSource(seeds[i])),
				nFeatures:      nFeatures,
				mtry:           mtry,
				maxDepth:       f.maxDepth,
				minSamplesLeaf: f.minSamplesLeaf,
				importances:    make([]float64, nFeatures),
			}
			trees[i] = b.build(classWeights)
			importances[i] = b.importances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = nFeatures
	f.importances = mergeImportances(importances, nFeatures)
	f.trained = true

	return nil
}

// builder grows one tree. It is owned by a single goroutine.
type builder struct {
	X              [][]float64
	y              []int
	weights        []float64
	rng            *rand.Rand
	nFeatures      int
	mtry           int
	maxDepth       int
	minSamplesLeaf int
	importances    []float64
}

func (b *builder) build(classWeights [2]float64) *tree {
	n := len(b.X)

	// Bootstrap: draw n samples with replacement, folded into weights.
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[b.rng.Intn(n)]++
	}

	b.weights = make([]float64, n)
	indices := make([]int, 0, n)
	for i, c := range counts {
		if c > 0 {
			b.weights[i] = float64(c) * classWeights[b.y[i]]
			indices = append(indices, i)
		}
	}

	return &tree{Root: b.buildNode(indices, 0)}
}

func (b *builder) totals(indices []int) (w0, w1 float64) {
	for _, i := range indices {
		if b.y[i] == classifiers.Positive {
			w1 += b.weights[i]
		} else {
			w0 += b.weights[i]
		}
	}
	return w0, w1
}

func (b *builder) buildNode(indices []int, depth int) *node {
	w0, w1 := b.totals(indices)
	total := w0 + w1

	leaf := &node{}
	if total > 0 {
		leaf.Value = w1 / total
	}

	// Terminal conditions
	if w0 == 0 || w1 == 0 {
		return leaf
	}
	if b.maxDepth > 0 && depth >= b.maxDepth {
		return leaf
	}
	if len(indices) < 2*b.minSamplesLeaf {
		return leaf
	}

	s, ok := b.bestSplit(indices, w0, w1)
	if !ok {
		return leaf
	}

	parentImpurity := total - (w0*w0+w1*w1)/total
	b.importances[s.feature] += parentImpurity - s.childImpurity

	var left, right []int
	for _, i := range indices {
		if b.X[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &node{
		Feature:   s.feature,
		Threshold: s.threshold,
		Value:     leaf.Value,
		Left:      b.buildNode(left, depth+1),
		Right:     b.buildNode(right, depth+1),
	}
}

type split struct {
	feature       int
	threshold     float64
	childImpurity float64 // weighted Gini of both children
}

// bestSplit scans features in random order until mtry non-constant features
// have been examined, keeping the split with the lowest weighted Gini.
func (b *builder) bestSplit(indices []int, w0, w1 float64) (split, bool) {
	best := split{childImpurity: math.Inf(1)}
	found := false

	sorted := make([]int, len(indices))
	visited := 0

	for _, feature := range b.rng.Perm(b.nFeatures) {
		if visited >= b.mtry {
			break
		}

		copy(sorted, indices)
		slices.SortStableFunc(sorted, func(i, j int) int {
			switch xi, xj := b.X[i][feature], b.X[j][feature]; {
			case xi < xj:
				return -1
			case xi > xj:
				return 1
			}
			return 0
		})

		first, last := b.X[sorted[0]][feature], b.X[sorted[len(sorted)-1]][feature]
		if first == last {
			continue
		}
		visited++

		var l0, l1 float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			if b.y[i] == classifiers.Positive {
				l1 += b.weights[i]
			} else {
				l0 += b.weights[i]
			}

			cur, next := b.X[i][feature], b.X[sorted[k+1]][feature]
			if cur == next {
				continue
			}
			if k+1 < b.minSamplesLeaf || len(sorted)-k-1 < b.minSamplesLeaf {
				continue
			}

			r0, r1 := w0-l0, w1-l1
			impurity := gini(l0, l1) + gini(r0, r1)
			if impurity < best.childImpurity {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: feature, threshold: threshold, childImpurity: impurity}
				found = true
			}
		}
	}

	return best, found
}

// gini returns the weighted Gini impurity W * (1 - p0^2 - p1^2).
func gini(w0, w1 float64) float64 {
	total := w0 + w1
	if total <= 0 {
		return 0
	}
	return total - (w0*w0+w1*w1)/total
}

func mergeImportances(perTree [][]float64, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, imp := range perTree {
		var sum float64
		for _, v := range imp {
			sum += v
		}
		if sum <= 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / sum
		}
	}

	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// PredictProba returns the Positive-class probability for every sample.
func (f *RandomForest) PredictProba(X [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, classifiers.ErrNotTrained
	}

	probs := make([]float64, len(X))
	for i, sample := range X {
		p, err := f.predictOne(sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		probs[i] = p
	}

	return probs, nil
}

// Predict returns Positive for every sample whose probability exceeds 0.5.
func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	probs, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}

	labels := make([]int, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			labels[i] = classifiers.Positive
		}
	}
	return labels, nil
}

func (f *RandomForest) predictOne(sample []float64) (float64, error) {
	if len(sample) != f.nFeatures {
		return 0, fmt.Errorf("got %d features, model expects %d", len(sample), f.nFeatures)
	}

	var total float64
	for _, t := range f.trees {
		total += leafValue(sample, t.Root)
	}
	return total / float64(len(f.trees)), nil
}

func leafValue(sample []float64, n *node) float64 {
	for !n.isLeaf() {
		if sample[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// FeatureImportances returns the normalized mean impurity decrease of every
// feature, in training column order.
func (f *RandomForest) FeatureImportances() ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, classifiers.ErrNotTrained
	}
	return slices.Clone(f.importances), nil
}

// NumTrees returns the ensemble size.
func (f *RandomForest) NumTrees() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nTrees
}

// snapshot is the serialized form of a trained forest.
type snapshot struct {
	NTrees         int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	ClassWeight    classifiers.ClassWeight
	Seed           int64
	NFeatures      int
	Importances    []float64
	Trees          []*tree
}

// Save serializes the trained model.
func (f *RandomForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, classifiers.ErrNotTrained
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		NTrees:         f.nTrees,
		MaxDepth:       f.maxDepth,
		MinSamplesLeaf: f.minSamplesLeaf,
		MaxFeatures:    f.maxFeatures,
		ClassWeight:    f.classWeight,
		Seed:           f.seed,
		NFeatures:      f.nFeatures,
		Importances:    f.importances,
		Trees:          f.trees,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *RandomForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode forest: %w", err)
	}
	if len(s.Trees) == 0 || s.NFeatures == 0 {
		return errors.New("decode forest: empty model")
	}

	f.nTrees = s.NTrees
	f.maxDepth = s.MaxDepth
	f.minSamplesLeaf = s.MinSamplesLeaf
	f.maxFeatures = s.MaxFeatures
	f.classWeight = s.ClassWeight
	f.seed = s.Seed
	f.nFeatures = s.NFeatures
	f.importances = s.Importances
	f.trees = s.Trees
	f.trained = true

	return nil
}
