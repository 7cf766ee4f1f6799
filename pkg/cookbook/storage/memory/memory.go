package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// Backend is an in-memory implementation of the cookbook.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	updated map[string]time.Time
}

// New creates a new in-memory storage backend
func New() cookbook.BlobStore {
	return &Backend{
		objects: make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	b.updated[objectKey] = time.Now().UTC()
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, cookbook.ErrArtifactNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return cookbook.ErrArtifactNotFound
	}

	delete(b.objects, objectKey)
	delete(b.updated, objectKey)
	return nil
}

// GetDownloadURL returns a URL for downloading content
// In-memory implementation doesn't use URLs
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	return "", errors.New("direct download required for memory backend")
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*cookbook.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, cookbook.ErrArtifactNotFound
	}

	return &cookbook.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: "application/octet-stream",
		UpdatedAt:   b.updated[objectKey],
	}, nil
}
