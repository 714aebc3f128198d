package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSBlob stores registry objects in a Google Cloud Storage bucket.
type GCSBlob struct {
	client *storage.Client
	bucket string
}

// NewGCSBlob creates a GCS client authenticated with auth.
func NewGCSBlob(ctx context.Context, bucket string, auth Auth) (*GCSBlob, error) {
	if bucket == "" {
		return nil, errors.New("registry: gcs backend requires a bucket")
	}
	client, err := storage.NewClient(ctx, auth.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBlob{client: client, bucket: bucket}, nil
}

func (g *GCSBlob) Close() error {
	return g.client.Close()
}

func (g *GCSBlob) Put(ctx context.Context, path string, data []byte) error {
	log.Printf("INFO: registry: storing gs://%s/%s", g.bucket, path)

	writer := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = contentType(path)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write %s to GCS: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload of %s: %w", path, err)
	}
	return nil
}

func (g *GCSBlob) Get(ctx context.Context, path string) ([]byte, error) {
	reader, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create reader for %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (g *GCSBlob) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var out []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		out = append(out, attrs.Name)
	}
	sort.Strings(out)
	return out, nil
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
