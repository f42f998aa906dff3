// Package storage provides object storage for immutable chunk payloads.
package storage

import (
	"context"
)

// ObjectStorage abstracts the chunk object store. Chunks are write-once:
// a path is put exactly once and never rewritten, so implementations
// need no conditional or versioned writes.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put stores an object. Chunk payloads are bounded by the writer
	// flush thresholds, so they are passed as one byte slice.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get retrieves a whole object.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an
	// error: catalog deletes may race physical cleanup.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under the given prefix. Used to
	// detect orphaned chunk files after partial deletes.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for S3 multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
	// Concurrency is the number of concurrent part uploads (default: 5).
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    5 * 1024 * 1024, // 5MB
		Concurrency: 5,
	}
}
