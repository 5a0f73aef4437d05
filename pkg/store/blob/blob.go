// Package blob provides the Blob Store adapter for the media bucket.
//
// The reconciliation engine only needs a narrow slice of object storage:
// one-level folder listings, existence probes, and batched deletes. The
// Store interface models exactly that, with an S3-compatible implementation
// in this package.
package blob

import (
	"context"
	"time"
)

// Object is a single object in the bucket. Identity is its path, relative
// to the bucket root (and key prefix, if configured).
type Object struct {
	Path         string
	SizeBytes    int64
	LastModified time.Time
}

// Page is the result of listing one folder level: the objects directly
// under the prefix plus the sub-folder prefixes.
type Page struct {
	Objects []Object
	Folders []string
}

// BatchResult reports the outcome of a batch delete. Paths absent from
// Failed were deleted (or did not exist; deletes are idempotent).
type BatchResult struct {
	Deleted []string
	Failed  map[string]error
}

// Store is the Blob Store adapter consumed by the reconciliation engine.
//
// Implementations must be safe for concurrent use. Delete operations must
// be idempotent: deleting a non-existent path is success.
type Store interface {
	// ListFolder lists the objects and sub-folders directly under prefix.
	// An empty prefix lists the bucket root.
	ListFolder(ctx context.Context, prefix string) (*Page, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// DeleteBatch deletes the given paths, chunking to respect store-side
	// batch limits. A non-nil error means the whole call failed; partial
	// failures are reported per-path in BatchResult.Failed.
	DeleteBatch(ctx context.Context, paths []string) (*BatchResult, error)
}
