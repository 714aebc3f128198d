package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a registry object, model or feature group does not exist.
var ErrNotFound = errors.New("registry: not found")

// Blob is the object storage a Registry writes versioned artifacts to.
// Paths are slash separated and relative to the backend root.
type Blob interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns every object path under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// LocalBlob stores objects as files below a base directory.
type LocalBlob struct {
	baseDir string
}

// NewLocalBlob creates the base directory if needed.
func NewLocalBlob(baseDir string) (*LocalBlob, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory %s: %w", baseDir, err)
	}
	return &LocalBlob{baseDir: baseDir}, nil
}

func (l *LocalBlob) Close() error { return nil }

func (l *LocalBlob) Put(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(l.baseDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	// Write then rename so readers never observe a partial artifact.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

func (l *LocalBlob) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.baseDir, filepath.FromSlash(path)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (l *LocalBlob) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(l.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}
