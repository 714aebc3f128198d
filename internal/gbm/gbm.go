// Package gbm implements gradient-boosted regression trees with a squared
// error objective, histogram split finding and L2-regularised leaf weights.
package gbm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Params are the boosting hyperparameters.
type Params struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`
	MinChildWeight float64 `json:"min_child_weight"`
	Subsample      float64 `json:"subsample"`
	MaxBins        int     `json:"max_bins"`
	Seed           uint64  `json:"seed"`
}

// DefaultParams returns the learner defaults used when a field is left zero.
func DefaultParams() Params {
	return Params{
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.3,
		Lambda:         1,
		MinChildWeight: 1,
		Subsample:      1,
		MaxBins:        256,
		Seed:           0,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.NEstimators == 0 {
		p.NEstimators = d.NEstimators
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.LearningRate == 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Lambda == 0 {
		p.Lambda = d.Lambda
	}
	if p.MinChildWeight == 0 {
		p.MinChildWeight = d.MinChildWeight
	}
	if p.Subsample == 0 {
		p.Subsample = d.Subsample
	}
	if p.MaxBins == 0 {
		p.MaxBins = d.MaxBins
	}
	return p
}

func (p Params) validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.MaxDepth < 1:
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %v", p.LearningRate)
	case p.Lambda < 0:
		return fmt.Errorf("lambda must not be negative, got %v", p.Lambda)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %v", p.Subsample)
	case p.MaxBins < 2:
		return fmt.Errorf("max_bins must be at least 2, got %d", p.MaxBins)
	}
	return nil
}

// Node is a tree node. Internal nodes send x[Feature] <= Threshold left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Ensemble is a fitted model. Leaf values already include the learning rate.
type Ensemble struct {
	Params      Params    `json:"params"`
	BaseScore   float64   `json:"base_score"`
	NumFeatures int       `json:"num_features"`
	Trees       []Tree    `json:"trees"`
	Importance  []float64 `json:"importance"`
}

var (
	// ErrShape is returned when inputs have inconsistent dimensions.
	ErrShape = errors.New("inconsistent input shape")
	// ErrNaN is returned when a training input holds NaN.
	ErrNaN = errors.New("input contains NaN")
)

// Fit trains an ensemble on X (rows x features) and y.
func Fit(X [][]float64, y []float64, p Params) (*Ensemble, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: no features", ErrShape)
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), nf)
		}
		if floats.HasNaN(row) || math.IsNaN(y[i]) {
			return nil, fmt.Errorf("%w: row %d", ErrNaN, i)
		}
	}

	b := newBinner(X, p.MaxBins)
	e := &Ensemble{
		Params:      p,
		BaseScore:   stat.Mean(y, nil),
		NumFeatures: nf,
		Importance:  make([]float64, nf),
	}

	n := len(y)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = e.BaseScore
	}
	grad := make([]float64, n)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))

	g := &grower{p: p, b: b, grad: grad, importance: e.Importance}
	for range p.NEstimators {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		rows := sampleRows(n, p.Subsample, rng)
		tree := g.grow(rows)
		for i, x := range X {
			pred[i] += tree.predict(x)
		}
		e.Trees = append(e.Trees, tree)
	}

	if total := floats.Sum(e.Importance); total > 0 {
		floats.Scale(1/total, e.Importance)
	}
	return e, nil
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if frac >= 1 || rng.Float64() < frac {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.IntN(n))
	}
	return rows
}

// PredictRow returns the prediction for a single feature vector.
func (e *Ensemble) PredictRow(x []float64) float64 {
	out := e.BaseScore
	for _, t := range e.Trees {
		out += t.predict(x)
	}
	return out
}

// Predict returns a prediction for every row of X.
func (e *Ensemble) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != e.NumFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, model expects %d", ErrShape, i, len(x), e.NumFeatures)
		}
		out[i] = e.PredictRow(x)
	}
	return out, nil
}

// binner quantises each feature into at most maxBins ordered bins. Bin k of
// feature f holds values in (edges[f][k-1], edges[f][k]].
type binner struct {
	edges [][]float64
	bins  [][]uint16 // [feature][row]
}

func newBinner(X [][]float64, maxBins int) *binner {
	nf := len(X[0])
	b := &binner{
		edges: make([][]float64, nf),
		bins:  make([][]uint16, nf),
	}
	col := make([]float64, len(X))
	for f := 0; f < nf; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		b.edges[f] = binEdges(col, maxBins)
		idx := make([]uint16, len(X))
		for i, row := range X {
			idx[i] = uint16(sort.SearchFloat64s(b.edges[f], row[f]))
		}
		b.bins[f] = idx
	}
	return b
}

func binEdges(values []float64, maxBins int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	uniq := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= maxBins {
		return uniq
	}

	edges := make([]float64, 0, maxBins)
	for k := 1; k <= maxBins; k++ {
		pos := int(math.Ceil(float64(k)*float64(len(uniq))/float64(maxBins))) - 1
		v := uniq[pos]
		if len(edges) == 0 || v != edges[len(edges)-1] {
			edges = append(edges, v)
		}
	}
	return edges
}

type grower struct {
	p          Params
	b          *binner
	grad       []float64
	importance []float64
	nodes      []Node
}

func (g *grower) grow(rows []int) Tree {
	g.nodes = nil
	g.split(rows, 0)
	return Tree{Nodes: g.nodes}
}

type candidate struct {
	feature int
	bin     int
	gain    float64
}

// split appends the subtree for rows and returns its root index.
func (g *grower) split(rows []int, depth int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{})

	var G float64
	for _, r := range rows {
		G += g.grad[r]
	}
	H := float64(len(rows))
	lambda := g.p.Lambda

	leaf := func() int {
		g.nodes[id] = Node{Leaf: true, Value: -G / (H + lambda) * g.p.LearningRate}
		return id
	}

	if depth >= g.p.MaxDepth || H < 2*g.p.MinChildWeight {
		return leaf()
	}

	parentScore := G * G / (H + lambda)
	best := candidate{feature: -1}
	for f, edges := range g.b.edges {
		nb := len(edges)
		if nb < 2 {
			continue
		}
		gsum := make([]float64, nb)
		hsum := make([]float64, nb)
		bins := g.b.bins[f]
		for _, r := range rows {
			gsum[bins[r]] += g.grad[r]
			hsum[bins[r]]++
		}

		var GL, HL float64
		for k := 0; k < nb-1; k++ {
			GL += gsum[k]
			HL += hsum[k]
			GR, HR := G-GL, H-HL
			if HL < g.p.MinChildWeight || HR < g.p.MinChildWeight {
				continue
			}
			gain := GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parentScore
			if gain > best.gain {
				best = candidate{feature: f, bin: k, gain: gain}
			}
		}
	}

	if best.feature < 0 {
		return leaf()
	}

	bins := g.b.bins[best.feature]
	var left, right []int
	for _, r := range rows {
		if int(bins[r]) <= best.bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	g.importance[best.feature] += best.gain

	l := g.split(left, depth+1)
	r := g.split(right, depth+1)
	g.nodes[id] = Node{
		Feature:   best.feature,
		Threshold: g.b.edges[best.feature][best.bin],
		Left:      l,
		Right:     r,
	}
	return id
}
