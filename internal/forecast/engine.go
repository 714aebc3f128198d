// Package forecast predicts the AQI for the next three days from the
// trailing week of pollutant observations.
package forecast

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/features"
	"github.com/i474232898/aqi-forecast/internal/model"
)

const (
	// Horizon is the number of future calendar days predicted.
	Horizon = 3
	// HistoryWindow is how far back observations are fetched.
	HistoryWindow = 7 * 24 * time.Hour
)

// Engine reconstructs the latest feature row from recent history and
// projects it across the forecast horizon.
type Engine struct {
	provider aqi.HistoryProvider
	models   model.Source
	spec     features.Spec
	policy   features.MissingPolicy
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to determine "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMissingPolicy sets the policy used when reindexing to the model's features.
func WithMissingPolicy(p features.MissingPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithSpec overrides the feature spec.
func WithSpec(s features.Spec) Option {
	return func(e *Engine) { e.spec = s }
}

// NewEngine creates an Engine. The model is not fetched until the first prediction.
func NewEngine(provider aqi.HistoryProvider, models model.Source, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		models:   models,
		spec:     features.DefaultSpec(),
		policy:   features.Strict,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PredictNextThreeDays returns the predicted AQI for each of the three
// calendar days after today (UTC), in ascending date order. Recent pollutant
// conditions are assumed to persist: only the calendar columns change
// between the projected rows.
func (e *Engine) PredictNextThreeDays(ctx context.Context, lat, lon float64) ([]aqi.Prediction, error) {
	now := e.now().UTC()
	loc := aqi.Location{Lat: lat, Lon: lon}

	obs, err := e.provider.FetchHistory(ctx, loc, now.Add(-HistoryWindow), now)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: %s returned no records for %s", aqi.ErrNoData, e.provider.Name(), loc.Key())
	}
	if len(obs) < e.spec.MinObservations() {
		return nil, fmt.Errorf("%w: %d observations, need at least %d", aqi.ErrInsufficientHistory,
			len(obs), e.spec.MinObservations())
	}

	table, err := features.Build(dedupe(obs), e.spec)
	if err != nil {
		return nil, err
	}
	recent, ok := features.Latest(table)
	if !ok {
		return nil, fmt.Errorf("%w: no observation with %d complete lags among %d records", aqi.ErrInsufficientHistory,
			e.spec.Lags, len(obs))
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	future := features.NewTable(table.Columns)
	dates := make([]time.Time, Horizon)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, i+1)
		future.AppendRow(features.Row{Timestamp: dates[i], Values: recent.Values})
		future.SetCalendar(i, dates[i])
	}

	m, err := e.models.Model(ctx)
	if err != nil {
		return nil, err
	}
	if m.SpecVersion != 0 && m.SpecVersion != e.spec.Version {
		log.Printf("WARN: model %s v%d was trained on feature spec v%d, serving spec v%d",
			m.Name, m.Version, m.SpecVersion, e.spec.Version)
	}

	values, err := m.Predict(future, e.policy)
	if err != nil {
		return nil, err
	}

	preds := make([]aqi.Prediction, Horizon)
	for i, v := range values {
		preds[i] = aqi.Prediction{
			Date:         dates[i].Format(aqi.DateLayout),
			PredictedAQI: int(math.RoundToEven(v)),
		}
	}
	return preds, nil
}

// dedupe keeps the last record for each timestamp.
func dedupe(obs []aqi.Observation) []aqi.Observation {
	return aqi.MergeObservations(nil, obs)
}
