package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/catalog"
	"github.com/mediavault/mediavault/pkg/store/blob"
)

// Cleanup runs the fixed cleanup sequence: storage, metadata tables,
// cascade of pending deletions, ephemeral rows, and the optional
// store-native hook.
//
// dryRun computes and returns the would-be counts and bytes without calling
// delete anywhere. The candidate sets are derived with the same queries the
// detector uses, so detect, dry-run cleanup, and real cleanup agree on an
// unchanged store.
//
// Each step is independently fault-tolerant: a failing step records its
// error in the result and the run continues. The returned CleanupResult is
// complete even under partial failure; only a missing store configuration
// produces an error return.
func (e *Engine) Cleanup(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	run := logger.With("run_id", uuid.NewString(), "action", "cleanup", "dry_run", dryRun)
	run.Info("cleanup started")

	res := newCleanupResult(dryRun)

	// Storage first, then DB, then cascades: a crash mid-run leaves
	// dangling DB rows (cheap, self-describing) rather than orphan blobs.
	e.cleanStorage(ctx, run, res)
	e.cleanMetadata(ctx, run, res)
	e.cleanCascade(ctx, run, res)
	e.cleanEphemeral(ctx, run, res)
	e.runNativeCleanup(ctx, run, res)

	if e.metrics != nil {
		e.metrics.ObserveRun("cleanup", dryRun, time.Since(start))
		if !dryRun {
			for category, a := range res.Audit {
				e.metrics.ObserveCleaned(category, int64(a.Deleted))
			}
			e.metrics.ObserveStorageFreed(res.Totals.StorageFreedBytes)
		}
	}

	run.Info("cleanup complete",
		"records_cleaned", res.Totals.RecordsCleaned,
		"files_deleted", res.Totals.FilesDeleted,
		"storage_freed_bytes", res.Totals.StorageFreedBytes,
		"errors", len(res.Errors),
		"duration_ms", logger.Duration(start))

	return res, nil
}

// cleanStorage re-derives the orphan blob set and batch-deletes it, with a
// delay between batches to stay under the store's rate limits.
func (e *Engine) cleanStorage(ctx context.Context, run *slog.Logger, res *CleanupResult) {
	scan, err := e.scanOrphanBlobs(ctx)
	if err != nil {
		run.Error("storage cleanup: scan failed", "error", err)
		res.addError(CleanupError{
			Category:  KindStorage,
			Type:      CategoryStorageFiles,
			Reason:    fmt.Sprintf("orphan scan failed: %v", err),
			Retriable: blob.IsRetriable(err),
		})
		return
	}

	a := res.audit(CategoryStorageFiles)
	a.Attempted = len(scan.Paths)

	if res.DryRun {
		a.Skipped = len(scan.Paths)
		res.Totals.FilesDeleted += int64(len(scan.Paths))
		res.Totals.StorageFreedBytes += scan.TotalBytes
		if len(scan.Paths) > 0 {
			res.markCleaned(CategoryStorageFiles)
		}
		return
	}

	for i := 0; i < len(scan.Paths); i += e.policy.DeleteBatchSize {
		end := i + e.policy.DeleteBatchSize
		if end > len(scan.Paths) {
			end = len(scan.Paths)
		}
		batch := scan.Paths[i:end]

		// Pace batches; deletes are issued serially per batch.
		if i > 0 && e.policy.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				a.Errors += len(scan.Paths) - i
				res.addError(CleanupError{
					Category:  KindStorage,
					Type:      CategoryStorageFiles,
					Reason:    "run cancelled: " + ctx.Err().Error(),
					Retriable: true,
				})
				return
			case <-time.After(e.policy.BatchDelay):
			}
		}

		br, err := e.blob.DeleteBatch(ctx, batch)
		deleted, failed := 0, 0
		if br != nil {
			deleted = len(br.Deleted)
			failed = len(br.Failed)

			for _, p := range br.Deleted {
				res.Totals.FilesDeleted++
				res.Totals.StorageFreedBytes += scan.SizeByPath[p]
			}
			for p, kerr := range br.Failed {
				class := blob.Classify(kerr)
				res.addError(CleanupError{
					Category:  KindStorage,
					Type:      CategoryStorageFiles,
					Key:       p,
					Reason:    kerr.Error(),
					Retriable: class.Retriable(),
				})
			}
		}
		a.Deleted += deleted
		a.Errors += failed

		if err != nil {
			// Whole-batch failure: everything not individually accounted
			// for counts as an error, reported as one entry.
			remaining := len(batch) - deleted - failed
			a.Errors += remaining
			class := blob.Classify(err)
			res.addError(CleanupError{
				Category:  KindStorage,
				Type:      CategoryStorageFiles,
				Reason:    fmt.Sprintf("batch delete failed (%d objects): %v", remaining, err),
				Retriable: class.Retriable(),
			})
			run.Error("storage cleanup: batch failed",
				"batch_size", len(batch),
				"class", class.String(),
				"error", err)
			continue
		}
	}

	if a.Deleted > 0 {
		res.markCleaned(CategoryStorageFiles)
	}
	run.Info("storage cleanup done",
		"attempted", a.Attempted, "deleted", a.Deleted, "errors", a.Errors)
}

// cleanMetadata deletes FK-orphaned metadata rows, one category at a time.
// The id set is captured before deleting and the delete targets exactly
// that set, so attempted and deleted stay consistent even if the underlying
// condition changes in between.
func (e *Engine) cleanMetadata(ctx context.Context, run *slog.Logger, res *CleanupResult) {
	for _, meta := range catalog.MetadataTables() {
		ids, err := e.rel.OrphanedMetadataIDs(ctx, meta, e.policy.MetadataBatchLimit)
		if err != nil {
			run.Error("metadata cleanup: count failed", "table", meta.Table, "error", err)
			res.addError(CleanupError{
				Category:  KindDatabase,
				Type:      meta.Category,
				Reason:    err.Error(),
				Retriable: true,
			})
			continue
		}

		e.deleteRows(ctx, run, res, meta.Category, meta.Table, meta.IDColumn, ids)
	}
}

// cleanCascade completes deferred deletions: for media items marked
// pending_deletion, delete their blobs, then their dependent metadata rows,
// then the items themselves — all keyed by the same id batch, so the next
// run does not find a fresh orphan.
func (e *Engine) cleanCascade(ctx context.Context, run *slog.Logger, res *CleanupResult) {
	owner, status := catalog.PendingDeletionOwner()
	parents, err := e.rel.PendingDeletionOwners(ctx, owner, status, e.policy.MetadataBatchLimit)
	if err != nil {
		run.Error("cascade cleanup: lookup failed", "error", err)
		res.addError(CleanupError{
			Category:  KindDatabase,
			Type:      CategoryPendingMedia,
			Reason:    err.Error(),
			Retriable: true,
		})
		return
	}
	if len(parents) == 0 {
		return
	}

	parentIDs := make([]string, 0, len(parents))
	var blobPaths []string
	for _, p := range parents {
		parentIDs = append(parentIDs, p.ID)
		blobPaths = append(blobPaths, p.Paths...)
	}

	// Blobs first, same crash bias as the global ordering.
	if len(blobPaths) > 0 {
		if res.DryRun {
			res.Totals.FilesDeleted += int64(len(blobPaths))
		} else {
			br, err := e.blob.DeleteBatch(ctx, blobPaths)
			if br != nil {
				res.Totals.FilesDeleted += int64(len(br.Deleted))
				for p, kerr := range br.Failed {
					res.addError(CleanupError{
						Category:  KindStorage,
						Type:      CategoryPendingMedia,
						Key:       p,
						Reason:    kerr.Error(),
						Retriable: blob.Classify(kerr).Retriable(),
					})
				}
			}
			if err != nil {
				// Leave the rows in place; the parents stay
				// pending_deletion and the next run retries.
				run.Error("cascade cleanup: blob delete failed", "error", err)
				res.addError(CleanupError{
					Category:  KindStorage,
					Type:      CategoryPendingMedia,
					Reason:    err.Error(),
					Retriable: blob.IsRetriable(err),
				})
				return
			}
		}
	}

	for _, meta := range catalog.MetadataTables() {
		ids, err := e.rel.MetadataIDsForOwners(ctx, meta, parentIDs)
		if err != nil {
			run.Error("cascade cleanup: dependent lookup failed", "table", meta.Table, "error", err)
			res.addError(CleanupError{
				Category:  KindDatabase,
				Type:      CategoryCascadePending,
				Reason:    err.Error(),
				Retriable: true,
			})
			continue
		}
		e.deleteRows(ctx, run, res, CategoryCascadePending, meta.Table, meta.IDColumn, ids)
	}

	e.deleteRows(ctx, run, res, CategoryPendingMedia, owner.Table, owner.IDColumn, parentIDs)
}

// cleanEphemeral is a straightforward age-based delete.
func (e *Engine) cleanEphemeral(ctx context.Context, run *slog.Logger, res *CleanupResult) {
	cutoff := e.now().Add(-e.policy.EphemeralTTL)

	for _, eph := range catalog.EphemeralTables() {
		ids, err := e.rel.ExpiredEphemeralIDs(ctx, eph, cutoff, e.policy.MetadataBatchLimit)
		if err != nil {
			run.Error("ephemeral cleanup: lookup failed", "table", eph.Table, "error", err)
			res.addError(CleanupError{
				Category:  KindDatabase,
				Type:      eph.Category,
				Reason:    err.Error(),
				Retriable: true,
			})
			continue
		}

		e.deleteRows(ctx, run, res, eph.Category, eph.Table, eph.IDColumn, ids)
	}
}

// runNativeCleanup invokes the store-native bulk-cleanup routine when the
// relational store exposes one, merging its result into the same audit.
// Native routines cannot preview, so dry runs skip this step.
func (e *Engine) runNativeCleanup(ctx context.Context, run *slog.Logger, res *CleanupResult) {
	nc, ok := e.rel.(NativeCleaner)
	if !ok || !nc.NativeCleanupConfigured() {
		return
	}
	if res.DryRun {
		run.Debug("native cleanup skipped in dry run")
		return
	}

	a := res.audit(CategoryNative)
	removed, err := nc.NativeCleanup(ctx)
	if err != nil {
		a.Attempted++
		a.Errors++
		run.Error("native cleanup failed", "error", err)
		res.addError(CleanupError{
			Category:  KindDatabase,
			Type:      CategoryNative,
			Reason:    err.Error(),
			Retriable: true,
		})
		return
	}

	a.Attempted += int(removed)
	a.Deleted += int(removed)
	res.Totals.RecordsCleaned += removed
	if removed > 0 {
		res.markCleaned(CategoryNative)
	}
	run.Info("native cleanup done", "removed", removed)
}

// deleteRows applies the shared count-then-delete accounting for one
// relational category. ids must be the previously captured candidate set.
func (e *Engine) deleteRows(ctx context.Context, run *slog.Logger, res *CleanupResult, category, table, idColumn string, ids []string) {
	a := res.audit(category)
	a.Attempted += len(ids)

	if len(ids) == 0 {
		return
	}

	if res.DryRun {
		a.Skipped += len(ids)
		res.Totals.RecordsCleaned += int64(len(ids))
		res.markCleaned(category)
		return
	}

	deleted, err := e.rel.DeleteByIDs(ctx, table, idColumn, ids)
	a.Deleted += int(deleted)
	res.Totals.RecordsCleaned += deleted

	if err != nil {
		a.Errors += len(ids) - int(deleted)
		run.Error("row cleanup failed", "table", table, "deleted", deleted, "error", err)
		res.addError(CleanupError{
			Category:  KindDatabase,
			Type:      category,
			Reason:    err.Error(),
			Retriable: true,
		})
	} else {
		// Rows that vanished between count and delete are skips, not
		// errors; the candidate set was captured first.
		a.Skipped += len(ids) - int(deleted)
	}

	if deleted > 0 {
		res.markCleaned(category)
	}
}
