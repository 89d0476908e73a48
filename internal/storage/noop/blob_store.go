// Package noop provides a blob store that discards writes. Useful for dry
// runs where no artifact should leave the process.
package noop

import (
	"context"
	"fmt"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// BlobStore discards every write and holds no objects.
type BlobStore struct{}

// NewBlobStore creates a no-op blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{}
}

// PutObject discards the content and returns a noop:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return fmt.Sprintf("noop://%s", path), nil
}

// GetObject always reports the object as missing.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("noop object %q: %w", path, pipeline.ErrObjectNotFound)
}
