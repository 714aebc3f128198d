package registry

import (
	"context"
	"fmt"
)

// Backend selects where registry objects live.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendGCS   Backend = "gcs"
)

// Options configures Open.
type Options struct {
	Backend Backend
	Dir     string
	Bucket  string
	Auth    Auth
}

// Open creates a Registry on the configured backend.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	switch opts.Backend {
	case BackendLocal, "":
		dir := opts.Dir
		if dir == "" {
			dir = "registry"
		}
		blob, err := NewLocalBlob(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local registry: %w", err)
		}
		return New(blob), nil
	case BackendGCS:
		blob, err := NewGCSBlob(ctx, opts.Bucket, opts.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS registry: %w", err)
		}
		return New(blob), nil
	default:
		return nil, fmt.Errorf("unsupported registry backend: %s", opts.Backend)
	}
}
