package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/model"
)

const (
	kindModels   = "models"
	kindFeatures = "features"

	modelFile = "model.json"
	rowsFile  = "rows.csv"
)

// Registry keeps versioned model artifacts and feature groups on a Blob.
// Layout: <kind>/<name>/v<N>/<file>, where a feature group name is
// <group>/<location>. Writes get-or-create the name and are
// assigned latest+1; reads return the latest version.
type Registry struct {
	blob Blob

	// Serializes version assignment within this process.
	mu sync.Mutex
}

// New creates a Registry on top of blob.
func New(blob Blob) *Registry {
	return &Registry{blob: blob}
}

// Close closes the underlying blob store.
func (r *Registry) Close() error {
	return r.blob.Close()
}

func objectPath(kind, name string, version int, file string) string {
	return path.Join(kind, name, "v"+strconv.Itoa(version), file)
}

// versions lists the versions of name that hold file, ascending.
func (r *Registry) versions(ctx context.Context, kind, name, file string) ([]int, error) {
	prefix := kind + "/" + name + "/v"
	paths, err := r.blob.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, p := range paths {
		rest := strings.TrimPrefix(p, prefix)
		dir, f, ok := strings.Cut(rest, "/")
		if !ok || f != file {
			continue
		}
		v, err := strconv.Atoi(dir)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (r *Registry) latest(ctx context.Context, kind, name, file string) (int, error) {
	vs, err := r.versions(ctx, kind, name, file)
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1], nil
}

func (r *Registry) put(ctx context.Context, kind, name, file string, data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(ctx, kind, name, file, data)
}

// putLocked stores data as version latest+1 of name. r.mu must be held.
func (r *Registry) putLocked(ctx context.Context, kind, name, file string, data []byte) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("registry: empty %s name", kind)
	}
	v, err := r.latest(ctx, kind, name, file)
	if err != nil {
		return 0, err
	}
	v++
	if err := r.blob.Put(ctx, objectPath(kind, name, v, file), data); err != nil {
		return 0, err
	}
	log.Printf("INFO: registry: stored %s/%s version %d", kind, name, v)
	return v, nil
}

func (r *Registry) getLatest(ctx context.Context, kind, name, file string) (int, []byte, error) {
	v, err := r.latest(ctx, kind, name, file)
	if err != nil {
		return 0, nil, err
	}
	if v == 0 {
		return 0, nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, name)
	}
	data, err := r.blob.Get(ctx, objectPath(kind, name, v, file))
	if err != nil {
		return 0, nil, err
	}
	return v, data, nil
}

// SaveModel stores a serialized model as a new version of name.
func (r *Registry) SaveModel(ctx context.Context, name string, data []byte) (int, error) {
	return r.put(ctx, kindModels, name, modelFile, data)
}

// LatestModel returns the highest stored version of name.
func (r *Registry) LatestModel(ctx context.Context, name string) (model.Artifact, error) {
	v, data, err := r.getLatest(ctx, kindModels, name, modelFile)
	if err != nil {
		return model.Artifact{}, err
	}
	return model.Artifact{Name: name, Version: v, Data: data}, nil
}

// featureGroupName scopes a feature group to one location. Rows carry no
// location column, so each location is versioned separately.
func featureGroupName(group string, loc aqi.Location) string {
	if group == "" {
		return ""
	}
	return group + "/" + strings.ReplaceAll(loc.Key(), ":", "_")
}

// InsertObservations appends obs to the feature group of loc as a new version
// holding the merged rows of the previous version and obs.
func (r *Registry) InsertObservations(ctx context.Context, group string, loc aqi.Location, obs []aqi.Observation) (int, error) {
	name := featureGroupName(group, loc)

	// Read, merge and write under one lock so concurrent inserts cannot
	// both build on the same previous version.
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readRows(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	merged := aqi.MergeObservations(existing, obs)
	data, err := EncodeRows(merged)
	if err != nil {
		return 0, err
	}
	return r.putLocked(ctx, kindFeatures, name, rowsFile, data)
}

// ReadObservations returns the rows of the latest version of the feature
// group of loc.
func (r *Registry) ReadObservations(ctx context.Context, group string, loc aqi.Location) ([]aqi.Observation, error) {
	return r.readRows(ctx, featureGroupName(group, loc))
}

func (r *Registry) readRows(ctx context.Context, name string) ([]aqi.Observation, error) {
	v, data, err := r.getLatest(ctx, kindFeatures, name, rowsFile)
	if err != nil {
		return nil, err
	}
	obs, err := DecodeRows(data)
	if err != nil {
		return nil, fmt.Errorf("feature group %s v%d: %w", name, v, err)
	}
	return obs, nil
}
