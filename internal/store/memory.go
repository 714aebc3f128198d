package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// ErrNotFound is returned when no data is available for a given location.
var ErrNotFound = aqi.ErrNotFound

// MemoryStore is a concurrency-safe in-memory pollutant record store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key
	data      map[string][]aqi.Observation
	locations map[string]aqi.Location

	// retention configuration
	maxHistory int           // max number of observations per location
	maxAge     time.Duration // optional max age for observations
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string][]aqi.Observation),
		locations:  make(map[string]aqi.Location),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Append merges obs into the history of loc and enforces retention.
func (s *MemoryStore) Append(ctx context.Context, loc aqi.Location, obs []aqi.Observation) error {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history := aqi.MergeObservations(s.data[key], obs)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := sort.Search(len(history), func(i int) bool {
			return !history[i].Timestamp.Before(cutoff)
		})
		history = history[i:]
	}

	s.data[key] = history
	s.locations[key] = loc
	return nil
}

// All returns a copy of the full history for loc in ascending time order.
func (s *MemoryStore) All(ctx context.Context, loc aqi.Location) ([]aqi.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[loc.Key()]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	out := make([]aqi.Observation, len(history))
	copy(out, history)
	return out, nil
}

// Latest returns the most recent observation for loc.
func (s *MemoryStore) Latest(ctx context.Context, loc aqi.Location) (aqi.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[loc.Key()]
	if len(history) == 0 {
		return aqi.Observation{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// Locations returns every location with stored records, ordered by key.
func (s *MemoryStore) Locations(ctx context.Context) ([]aqi.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.locations))
	for k := range s.locations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]aqi.Location, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.locations[k])
	}
	return out, nil
}
