// Package gcs implements storage.Provider on a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Provider stores staged documents as objects in one GCS bucket.
type Provider struct {
	client *storage.Client
	bucket string
}

// New creates a GCS storage provider. Credentials come from the
// environment (application default credentials).
func New(ctx context.Context, bucket string) (*Provider, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Provider{client: client, bucket: bucket}, nil
}

// Put writes data to the object at key.
func (p *Provider) Put(ctx context.Context, key string, reader io.Reader) error {
	writer := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, reader); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

// Open returns a reader for the object at key.
func (p *Provider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := p.client.Bucket(p.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return reader, nil
}

// Delete removes the object at key. Missing objects are tolerated.
func (p *Provider) Delete(ctx context.Context, key string) error {
	err := p.client.Bucket(p.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// List returns every object key under the given prefix.
func (p *Provider) List(ctx context.Context, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix}
	it := p.client.Bucket(p.bucket).Objects(ctx, query)
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
