package aqi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNotFound is returned by stores when a location has no records.
var ErrNotFound = errors.New("no pollutant records for location")

// Service orchestrates fetching history from the provider, persisting it in
// the store and forwarding it to the feature sink.
type Service struct {
	store    Store
	provider HistoryProvider
	sink     FeatureSink
	group    string
	now      func() time.Time
}

// NewService creates a new Service. sink may be nil.
func NewService(store Store, provider HistoryProvider, sink FeatureSink, group string) *Service {
	return &Service{
		store:    store,
		provider: provider,
		sink:     sink,
		group:    group,
		now:      time.Now,
	}
}

// Ingest fetches observations for loc between from and to, appends them to
// the store and inserts them into the feature group. It returns the number of
// observations fetched.
func (s *Service) Ingest(ctx context.Context, loc Location, from, to time.Time) (int, error) {
	if s.provider == nil {
		return 0, fmt.Errorf("no history provider configured")
	}
	if !to.After(from) {
		return 0, fmt.Errorf("invalid range: %s is not after %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	log.Printf("INFO: ingesting %s from %s for %s..%s", loc.Key(), s.provider.Name(),
		from.UTC().Format(DateLayout), to.UTC().Format(DateLayout))

	obs, err := s.provider.FetchHistory(ctx, loc, from, to)
	if err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		log.Printf("ingest: no records returned for %s", loc.Key())
		return 0, nil
	}

	if err := s.store.Append(ctx, loc, obs); err != nil {
		return 0, fmt.Errorf("append to store: %w", err)
	}

	if s.sink != nil {
		if _, err := s.sink.InsertObservations(ctx, s.group, loc, obs); err != nil {
			return len(obs), fmt.Errorf("insert into feature group %s: %w", s.group, err)
		}
	}

	log.Printf("INFO: ingested %d records for %s", len(obs), loc.Key())
	return len(obs), nil
}

// Refresh ingests everything since the newest stored record, or the last
// window when the location has no records yet.
func (s *Service) Refresh(ctx context.Context, loc Location, window time.Duration) (int, error) {
	now := s.now().UTC()
	from := now.Add(-window)

	latest, err := s.store.Latest(ctx, loc)
	switch {
	case err == nil:
		if latest.Timestamp.After(from) {
			from = latest.Timestamp
		}
	case errors.Is(err, ErrNotFound):
	default:
		return 0, err
	}

	if !now.After(from) {
		return 0, nil
	}
	return s.Ingest(ctx, loc, from, now)
}

// Locations returns every location the store holds records for.
func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	return s.store.Locations(ctx)
}

// History delegates to the underlying store.
func (s *Service) History(ctx context.Context, loc Location) ([]Observation, error) {
	return s.store.All(ctx, loc)
}
