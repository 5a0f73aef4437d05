// Package reconcile implements the orphan reconciliation engine: a
// read-only detector that classifies unreachable data in the media bucket
// and the reference tables, and a cleaner that performs bounded, auditable,
// retry-aware deletion.
//
// The engine is stateless and safe to invoke concurrently from multiple
// schedulers without coordination: all deletes are idempotent
// delete-if-exists operations addressed by path or id. Detection never
// mutates either store.
//
// There is no transaction spanning the blob store and the relational store.
// The engine accepts eventual, self-healing consistency instead: anything
// half-deleted by a crash simply becomes a fresh orphan candidate on the
// next run. Cleanup order (storage first, then rows) biases a mid-run crash
// toward leaving dangling DB rows — cheap, safe, self-describing — rather
// than silent orphan blobs.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mediavault/mediavault/pkg/catalog"
	"github.com/mediavault/mediavault/pkg/models"
	"github.com/mediavault/mediavault/pkg/store/blob"
	"github.com/mediavault/mediavault/pkg/store/relational"
)

// RelationalStore is the slice of the relational adapter the engine needs.
// Implemented by *relational.GORMStore.
type RelationalStore interface {
	PathReferenced(ctx context.Context, path string) (bool, error)
	ListOwnerRows(ctx context.Context, owner catalog.Owner, limit int) ([]relational.OwnerRow, error)
	OrphanedMetadataIDs(ctx context.Context, meta catalog.Metadata, limit int) ([]string, error)
	PendingDeletionOwners(ctx context.Context, owner catalog.Owner, status string, limit int) ([]relational.OwnerRow, error)
	MetadataIDsForOwners(ctx context.Context, meta catalog.Metadata, ownerIDs []string) ([]string, error)
	ExpiredEphemeralIDs(ctx context.Context, eph catalog.Ephemeral, cutoff time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, table, idColumn string, ids []string) (int64, error)
}

// NativeCleaner is an optional capability of the relational store: a
// pre-existing, store-native bulk-cleanup routine. Discovered by type
// assertion; its result is merged into the cleanup audit.
type NativeCleaner interface {
	NativeCleanupConfigured() bool
	NativeCleanup(ctx context.Context) (int64, error)
}

// Metrics is an optional collector for run instrumentation. May be nil.
type Metrics interface {
	ObserveRun(action string, dryRun bool, duration time.Duration)
	ObserveOrphans(categoryType string, count int)
	ObserveCleaned(categoryType string, deleted int64)
	ObserveStorageFreed(bytes int64)
}

// Engine is the orphan reconciliation engine. Create with New; safe for
// concurrent use.
type Engine struct {
	blob    blob.Store
	rel     RelationalStore
	policy  Policy
	metrics Metrics
	now     func() time.Time
}

// New creates an engine over the two store adapters. The policy's zero
// values are replaced with defaults.
func New(blobStore blob.Store, rel RelationalStore, policy Policy) *Engine {
	return &Engine{
		blob:   blobStore,
		rel:    rel,
		policy: policy.WithDefaults(),
		now:    time.Now,
	}
}

// SetMetrics attaches a metrics collector. Must be called before the first
// run if used at all.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// ready fails fast with a configuration error if a store handle is missing.
// Nothing touches a store before this check.
func (e *Engine) ready() error {
	if e.blob == nil {
		return fmt.Errorf("blob store: %w", models.ErrNotConfigured)
	}
	if e.rel == nil {
		return fmt.Errorf("relational store: %w", models.ErrNotConfigured)
	}
	return nil
}
