package main

import (
	"context"
	"testing"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/gbm"
	"github.com/i474232898/aqi-forecast/internal/model"
	"github.com/i474232898/aqi-forecast/internal/training"
)

type countingFetcher struct {
	calls int
	data  []byte
}

func (f *countingFetcher) LatestModel(ctx context.Context, name string) (model.Artifact, error) {
	f.calls++
	return model.Artifact{Name: name, Version: f.calls, Data: f.data}, nil
}

type countingCache struct {
	invalidations int
}

func (c *countingCache) Get(context.Context, string) ([]aqi.Prediction, bool, error) {
	return nil, false, nil
}
func (c *countingCache) Set(context.Context, string, []aqi.Prediction) error { return nil }
func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}
func (c *countingCache) Close() error { return nil }

func TestReloadAfterRetrain(t *testing.T) {
	e, err := gbm.Fit([][]float64{{1}, {2}, {3}}, []float64{1, 2, 3}, gbm.Params{NEstimators: 2, MaxDepth: 1, LearningRate: 0.1})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	data, err := model.Encode(&model.TrainedModel{Name: "xgb_model", FeatureNames: []string{"a"}, Ensemble: e})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	ctx := context.Background()
	fetcher := &countingFetcher{data: data}
	loader := model.NewLoader(fetcher, "xgb_model")
	c := &countingCache{}

	if _, err := loader.Model(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := loader.Model(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch before retrain, got %d", fetcher.calls)
	}

	reloadAfterRetrain(loader, c)(&training.Report{ModelName: "xgb_model", Version: 2})

	m, err := loader.Model(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fetcher.calls != 2 || m.Version != 2 {
		t.Fatalf("expected the new version to be fetched, calls=%d version=%d", fetcher.calls, m.Version)
	}
	if c.invalidations != 1 {
		t.Fatalf("expected cached forecasts to be flushed once, got %d", c.invalidations)
	}
}
