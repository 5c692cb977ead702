// Package blobstore abstracts where published index archives live.
//
// A built index is a directory; the blobstore moves compressed
// snapshots of such directories between machines. Local disk and
// in-memory stores ship in this package, an S3-compatible remote in
// the minio subpackage.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("blobstore: not found")

// Store reads and writes opaque blobs by key.
type Store interface {
	// Put stores the blob under key, replacing any existing blob.
	// size may be -1 if unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get opens the blob stored under key. The caller must close the
	// returned reader. Returns ErrNotFound for missing keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}
