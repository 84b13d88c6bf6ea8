package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for report binary and text blob storage.
type ObjectStorage interface {
	// Upload stores an object under the given key. The write is atomic:
	// a failed upload never leaves a partial object behind.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// LocalPath returns the on-disk path for the key when the backend is
	// file-based, so readers that need a real file can skip a copy.
	LocalPath(key string) (string, bool)
}
