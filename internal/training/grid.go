// Package training fits the AQI regressor by exhaustive grid search over a
// single seeded train/test split and registers the winner.
package training

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/aqi-forecast/internal/gbm"
	"github.com/i474232898/aqi-forecast/internal/model"
)

const (
	// Seed is shared by the split shuffle and the learner.
	Seed = 42
	// TestFraction is the share of rows held out for selection and evaluation.
	TestFraction = 0.2
)

var (
	GridNEstimators  = []int{100, 200}
	GridMaxDepth     = []int{3, 5, 7}
	GridLearningRate = []float64{0.01, 0.1, 0.2}
)

// Combinations enumerates the grid with n_estimators outermost and
// learning_rate innermost.
func Combinations() []gbm.Params {
	var out []gbm.Params
	for _, n := range GridNEstimators {
		for _, d := range GridMaxDepth {
			for _, lr := range GridLearningRate {
				out = append(out, gbm.Params{
					NEstimators:  n,
					MaxDepth:     d,
					LearningRate: lr,
					Seed:         Seed,
				})
			}
		}
	}
	return out
}

// Split is a train/test partition of a feature matrix.
type Split struct {
	XTrain, XTest [][]float64
	YTrain, YTest []float64
}

// TrainTestSplit shuffles rows with seed and holds out ceil(testFraction*n) of them.
func TrainTestSplit(X [][]float64, y []float64, testFraction float64, seed uint64) (Split, error) {
	n := len(X)
	if n != len(y) {
		return Split{}, fmt.Errorf("%d rows but %d targets", n, len(y))
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || nTest >= n {
		return Split{}, fmt.Errorf("cannot hold out %d of %d rows", nTest, n)
	}

	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	var s Split
	for i, idx := range perm {
		if i < nTest {
			s.XTest = append(s.XTest, X[idx])
			s.YTest = append(s.YTest, y[idx])
		} else {
			s.XTrain = append(s.XTrain, X[idx])
			s.YTrain = append(s.YTrain, y[idx])
		}
	}
	return s, nil
}

// Candidate is one evaluated grid point.
type Candidate struct {
	Params gbm.Params
	MSE    float64
}

// Result is the outcome of a grid search.
type Result struct {
	Best       *gbm.Ensemble
	BestParams gbm.Params
	BestMSE    float64
	Candidates []Candidate
}

// GridSearch fits every grid combination on the training rows and keeps the
// one with the lowest test MSE. On ties the earlier combination wins.
func GridSearch(ctx context.Context, XTrain [][]float64, yTrain []float64, XTest [][]float64, yTest []float64) (*Result, error) {
	res := &Result{BestMSE: math.Inf(1)}
	for _, p := range Combinations() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := gbm.Fit(XTrain, yTrain, p)
		if err != nil {
			return nil, fmt.Errorf("fit %+v: %w", p, err)
		}
		pred, err := e.Predict(XTest)
		if err != nil {
			return nil, err
		}
		mse := MSE(pred, yTest)
		res.Candidates = append(res.Candidates, Candidate{Params: p, MSE: mse})
		log.Printf("DEBUG: trainer: n_estimators=%d max_depth=%d learning_rate=%g mse=%.4f",
			p.NEstimators, p.MaxDepth, p.LearningRate, mse)

		if mse < res.BestMSE {
			res.BestMSE = mse
			res.Best = e
			res.BestParams = p
		}
	}
	if res.Best == nil {
		return nil, fmt.Errorf("grid search selected no model")
	}
	return res, nil
}

// Evaluate reports MSE and R² of e on the given rows.
func Evaluate(e *gbm.Ensemble, X [][]float64, y []float64) (model.Metrics, error) {
	pred, err := e.Predict(X)
	if err != nil {
		return model.Metrics{}, err
	}
	return model.Metrics{
		MSE: MSE(pred, y),
		R2:  stat.RSquaredFrom(pred, y, nil),
	}, nil
}

// MSE returns the mean squared error between pred and y.
func MSE(pred, y []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	d := floats.Distance(pred, y, 2)
	return d * d / float64(len(y))
}
