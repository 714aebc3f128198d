package model

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Source provides the model used for inference.
type Source interface {
	Model(ctx context.Context) (*TrainedModel, error)
}

// Artifact is the latest stored model version as returned by a registry.
type Artifact struct {
	Name    string
	Version int
	Data    []byte
}

// Fetcher reads the latest version of a named model artifact.
type Fetcher interface {
	LatestModel(ctx context.Context, name string) (Artifact, error)
}

// Loader fetches the latest model version on first use and caches it for the
// life of the process. A failed fetch is not cached.
type Loader struct {
	fetcher Fetcher
	name    string

	mu    sync.Mutex
	model *TrainedModel
}

// NewLoader creates a Loader. No fetch happens until Model is called.
func NewLoader(fetcher Fetcher, name string) *Loader {
	return &Loader{fetcher: fetcher, name: name}
}

// Model returns the cached model, fetching it if needed.
func (l *Loader) Model(ctx context.Context) (*TrainedModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		return l.model, nil
	}

	art, err := l.fetcher.LatestModel(ctx, l.name)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", l.name, err)
	}
	m, err := Decode(art.Data)
	if err != nil {
		return nil, fmt.Errorf("load model %s v%d: %w", art.Name, art.Version, err)
	}
	m.Version = art.Version

	log.Printf("INFO: loaded model %s version %d (%d features, spec v%d)", art.Name, art.Version, len(m.FeatureNames), m.SpecVersion)
	l.model = m
	return m, nil
}

// Invalidate drops the cached model so the next call fetches the latest version.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.model = nil
	l.mu.Unlock()
}

// Static is a Source that always returns the same model.
type Static struct {
	M *TrainedModel
}

func (s Static) Model(context.Context) (*TrainedModel, error) {
	return s.M, nil
}
