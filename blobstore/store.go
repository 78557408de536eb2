package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is where serialized module artifacts live. Artifacts are immutable
// once published: a Put never changes bytes behind an open Blob, it writes a
// new key. Implementations must be safe for concurrent use.
type Store interface {
	// Open opens the artifact stored under key for reading.
	Open(ctx context.Context, key string) (Blob, error)

	// Put stores data under key. The write is atomic: readers observe
	// either the previous artifact or the new one, never a torn write.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the artifact stored under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to one artifact.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off. It returns io.EOF
	// when the read reaches the end of the blob.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Close releases the handle.
	Close() error

	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs whose bytes are addressable
// without copying, such as mmap-backed files. The slice is valid until the
// Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}
