package training

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/features"
	"github.com/i474232898/aqi-forecast/internal/gbm"
	"github.com/i474232898/aqi-forecast/internal/model"
)

// MinObservations is the smallest history a training run accepts.
const MinObservations = 7

// OutlierFactor scales the IQR when clipping training pollutant values.
const OutlierFactor = 1.5

// Source supplies the historical observations to train on.
type Source interface {
	Observations(ctx context.Context) ([]aqi.Observation, error)
}

// ModelSaver persists a serialized model and returns the version the
// registry assigned to it.
type ModelSaver interface {
	SaveModel(ctx context.Context, name string, data []byte) (int, error)
}

// Report summarises a completed training run.
type Report struct {
	RunID        string
	ModelName    string
	Version      int
	Observations int
	TrainRows    int
	TestRows     int
	Params       gbm.Params
	Metrics      model.Metrics
}

// Trainer runs the full pipeline: load, clip, build features, split, grid
// search, evaluate and register.
type Trainer struct {
	source Source
	saver  ModelSaver
	name   string
	spec   features.Spec
	now    func() time.Time
}

// NewTrainer creates a Trainer that registers models under name.
func NewTrainer(source Source, saver ModelSaver, name string) *Trainer {
	return &Trainer{
		source: source,
		saver:  saver,
		name:   name,
		spec:   features.DefaultSpec(),
		now:    time.Now,
	}
}

// Run executes one training run. The best grid model is always registered;
// its metrics are reported but do not gate persistence.
func (t *Trainer) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	start := t.now()
	log.Printf("INFO: trainer: run %s started for model %s", runID, t.name)

	obs, err := t.source.Observations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	obs = aqi.MergeObservations(nil, obs)
	if len(obs) < MinObservations {
		return nil, fmt.Errorf("%w: %d observations, need at least %d", aqi.ErrInsufficientHistory, len(obs), MinObservations)
	}

	table, err := features.Build(features.ClipOutliers(obs, OutlierFactor), t.spec)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}
	names := table.Columns
	X, err := table.Matrix(names, features.Strict)
	if err != nil {
		return nil, err
	}
	y := table.Targets()

	split, err := TrainTestSplit(X, y, TestFraction, Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", aqi.ErrInsufficientHistory, err)
	}

	res, err := GridSearch(ctx, split.XTrain, split.YTrain, split.XTest, split.YTest)
	if err != nil {
		return nil, err
	}
	metrics, err := Evaluate(res.Best, split.XTest, split.YTest)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: trainer: best n_estimators=%d max_depth=%d learning_rate=%g - MSE: %.2f, R^2: %.2f%%",
		res.BestParams.NEstimators, res.BestParams.MaxDepth, res.BestParams.LearningRate, metrics.MSE, metrics.R2*100)

	tm := &model.TrainedModel{
		Name:         t.name,
		RunID:        runID,
		TrainedAt:    start.UTC(),
		SpecVersion:  t.spec.Version,
		FeatureNames: names,
		Metrics:      metrics,
		Ensemble:     res.Best,
	}
	data, err := model.Encode(tm)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	version, err := t.saver.SaveModel(ctx, t.name, data)
	if err != nil {
		return nil, fmt.Errorf("register model %s: %w", t.name, err)
	}
	log.Printf("INFO: trainer: run %s registered %s version %d in %s", runID, t.name, version, time.Since(start).Round(time.Millisecond))

	return &Report{
		RunID:        runID,
		ModelName:    t.name,
		Version:      version,
		Observations: len(obs),
		TrainRows:    len(split.XTrain),
		TestRows:     len(split.XTest),
		Params:       res.BestParams,
		Metrics:      metrics,
	}, nil
}

// StoreSource reads training history for one location from a store.
type StoreSource struct {
	Store    aqi.Store
	Location aqi.Location
}

func (s StoreSource) Observations(ctx context.Context) ([]aqi.Observation, error) {
	return s.Store.All(ctx, s.Location)
}

// FeatureGroupReader reads the latest version of a location's feature group.
type FeatureGroupReader interface {
	ReadObservations(ctx context.Context, group string, loc aqi.Location) ([]aqi.Observation, error)
}

// FeatureGroupSource reads training history for one location from a
// registry feature group.
type FeatureGroupSource struct {
	Reader   FeatureGroupReader
	Group    string
	Location aqi.Location
}

func (s FeatureGroupSource) Observations(ctx context.Context) ([]aqi.Observation, error) {
	return s.Reader.ReadObservations(ctx, s.Group, s.Location)
}
