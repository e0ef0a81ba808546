// Package storage defines the object storage abstraction used by the
// gateway (raw chunk writes) and worker (segment/manifest writes, chunk
// reads): a single Store interface with interchangeable S3 and Azure
// Blob backends, generalizing the teacher's relay client-factory
// indirection pattern.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object's metadata, as returned by Head.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is the bucket-based object storage contract. Every method wraps
// failures in *errors.StorageError. Implementations MUST make PutFile and
// PutBytes idempotent: re-uploading the same key with the same bytes is
// not an error.
type Store interface {
	// PutFile uploads the contents of the file at localPath to key.
	PutFile(ctx context.Context, key, localPath string) error

	// PutBytes uploads data to key directly from memory.
	PutBytes(ctx context.Context, key string, data []byte) error

	// Get opens a reader over the object at key. The caller must Close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Head returns metadata for the object at key.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// SignedURL returns a time-limited, pre-signed GET URL for key.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
