package store

import (
	"context"
	"fmt"
	"time"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// Backend selects the store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Options configures Open.
type Options struct {
	Backend    Backend
	Path       string
	MaxHistory int
	MaxAge     time.Duration
}

// Open creates the configured store. The returned close function releases
// any underlying resources.
func Open(ctx context.Context, opts Options) (aqi.Store, func() error, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxHistory, opts.MaxAge), func() error { return nil }, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
	}
}
