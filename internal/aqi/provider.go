package aqi

import (
	"context"
	"time"
)

// HistoryProvider abstracts a source of historical pollutant observations.
type HistoryProvider interface {
	Name() string
	FetchHistory(ctx context.Context, loc Location, from, to time.Time) ([]Observation, error)
}

// Store is the contract for the pollutant record store.
// Append deduplicates by timestamp; the incoming record wins.
type Store interface {
	Append(ctx context.Context, loc Location, obs []Observation) error
	All(ctx context.Context, loc Location) ([]Observation, error)
	Latest(ctx context.Context, loc Location) (Observation, error)
	Locations(ctx context.Context) ([]Location, error)
}

// FeatureSink receives newly ingested observations for one location, e.g. a
// registry feature group.
type FeatureSink interface {
	InsertObservations(ctx context.Context, group string, loc Location, obs []Observation) (int, error)
}
