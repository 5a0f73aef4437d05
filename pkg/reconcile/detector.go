package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/catalog"
)

// Detect runs the fixed sequence of read-only consistency checks and
// aggregates the findings. Detection never mutates either store.
//
// Each check is independently fault-tolerant: a failing check is logged and
// its contribution omitted from the report, and the remaining checks still
// run. This is a deliberate best-effort policy, not a hard failure.
//
// includeItems controls whether per-finding items (paths, row ids) are
// attached to each category. Counts are accurate either way.
func (e *Engine) Detect(ctx context.Context, includeItems bool) (*DetectionSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	run := logger.With("run_id", uuid.NewString(), "action", "detect")
	run.Info("detection started", "include_items", includeItems)

	summary := &DetectionSummary{Categories: []Category{}}

	e.runCheck(run, "orphaned_blobs", func() error {
		return e.detectOrphanBlobs(ctx, summary, includeItems)
	})
	e.runCheck(run, "dangling_records", func() error {
		return e.detectDanglingRecords(ctx, summary, includeItems)
	})
	e.runCheck(run, "metadata_orphans", func() error {
		return e.detectMetadataOrphans(ctx, summary, includeItems)
	})
	e.runCheck(run, "cascade_pending", func() error {
		return e.detectCascadePending(ctx, summary, includeItems)
	})
	e.runCheck(run, "ephemeral_expiry", func() error {
		return e.detectExpiredEphemeral(ctx, summary, includeItems)
	})

	if e.metrics != nil {
		e.metrics.ObserveRun("detect", false, time.Since(start))
		for _, c := range summary.Categories {
			e.metrics.ObserveOrphans(c.Type, c.Count)
		}
	}

	run.Info("detection complete",
		"total_issues", summary.TotalIssues,
		"potential_storage_saved", summary.PotentialStorageSaved,
		"duration_ms", logger.Duration(start))

	return summary, nil
}

// runCheck isolates one check so its failure cannot abort the others.
func (e *Engine) runCheck(run *slog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		run.Error("check failed, omitting its findings", "check", name, "error", err)
	}
}

// detectOrphanBlobs is the storage-to-DB direction: objects in the bucket
// that no owner-table row references.
func (e *Engine) detectOrphanBlobs(ctx context.Context, summary *DetectionSummary, includeItems bool) error {
	scan, err := e.scanOrphanBlobs(ctx)
	if err != nil {
		return err
	}

	desc, rec := describe(CategoryStorageFiles)
	c := Category{
		Kind:           KindStorage,
		Type:           CategoryStorageFiles,
		Count:          len(scan.Paths),
		Severity:       SeverityHigh,
		Description:    desc,
		Recommendation: rec,
		SizeBytes:      scan.TotalBytes,
	}
	if includeItems {
		for _, p := range scan.Paths {
			c.Items = append(c.Items, p)
		}
	}
	summary.addCategory(c)
	return nil
}

// detectDanglingRecords is the DB-to-storage direction: owner rows whose
// path variants all point at missing objects. Probing is bounded per table
// because each probe is a network round trip.
func (e *Engine) detectDanglingRecords(ctx context.Context, summary *DetectionSummary, includeItems bool) error {
	for _, owner := range catalog.Owners() {
		rows, err := e.rel.ListOwnerRows(ctx, owner, e.policy.ProbeSampleSize)
		if err != nil {
			return err
		}

		var dangling []string
		for _, row := range rows {
			if len(row.Paths) == 0 {
				continue
			}

			alive := false
			for _, p := range row.Paths {
				exists, err := e.blob.Exists(ctx, p)
				if err != nil {
					return err
				}
				if exists {
					alive = true
					break
				}
			}
			if !alive {
				dangling = append(dangling, row.ID)
			}
		}

		desc, rec := describe(owner.DanglingCategory)
		c := Category{
			Kind:           KindDatabase,
			Type:           owner.DanglingCategory,
			Count:          len(dangling),
			Severity:       SeverityCritical,
			Description:    desc,
			Recommendation: rec,
		}
		if includeItems {
			for _, id := range dangling {
				c.Items = append(c.Items, id)
			}
		}
		summary.addCategory(c)
	}
	return nil
}

// detectMetadataOrphans finds metadata rows whose foreign key points at no
// existing media item, one anti-join per catalog metadata table.
func (e *Engine) detectMetadataOrphans(ctx context.Context, summary *DetectionSummary, includeItems bool) error {
	for _, meta := range catalog.MetadataTables() {
		ids, err := e.rel.OrphanedMetadataIDs(ctx, meta, e.policy.MetadataBatchLimit)
		if err != nil {
			return err
		}

		desc, rec := describe(meta.Category)
		c := Category{
			Kind:           KindDatabase,
			Type:           meta.Category,
			Count:          len(ids),
			Severity:       SeverityMedium,
			Description:    desc,
			Recommendation: rec,
		}
		if includeItems {
			for _, id := range ids {
				c.Items = append(c.Items, id)
			}
		}
		summary.addCategory(c)
	}
	return nil
}

// detectCascadePending reports metadata rows whose parent is marked
// pending_deletion — orphan candidates even though the parent row still
// technically exists.
func (e *Engine) detectCascadePending(ctx context.Context, summary *DetectionSummary, includeItems bool) error {
	owner, status := catalog.PendingDeletionOwner()
	parents, err := e.rel.PendingDeletionOwners(ctx, owner, status, e.policy.MetadataBatchLimit)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return nil
	}

	parentIDs := make([]string, len(parents))
	for i, p := range parents {
		parentIDs[i] = p.ID
	}

	var all []string
	for _, meta := range catalog.MetadataTables() {
		ids, err := e.rel.MetadataIDsForOwners(ctx, meta, parentIDs)
		if err != nil {
			return err
		}
		all = append(all, ids...)
	}

	desc, rec := describe(CategoryCascadePending)
	c := Category{
		Kind:           KindDatabase,
		Type:           CategoryCascadePending,
		Count:          len(all),
		Severity:       SeverityMedium,
		Description:    desc,
		Recommendation: rec,
	}
	if includeItems {
		for _, id := range all {
			c.Items = append(c.Items, id)
		}
	}
	summary.addCategory(c)
	return nil
}

// detectExpiredEphemeral reports time-bound rows older than the TTL,
// regardless of any reference.
func (e *Engine) detectExpiredEphemeral(ctx context.Context, summary *DetectionSummary, includeItems bool) error {
	cutoff := e.now().Add(-e.policy.EphemeralTTL)

	for _, eph := range catalog.EphemeralTables() {
		ids, err := e.rel.ExpiredEphemeralIDs(ctx, eph, cutoff, e.policy.MetadataBatchLimit)
		if err != nil {
			return err
		}

		desc, rec := describe(eph.Category)
		c := Category{
			Kind:           KindDatabase,
			Type:           eph.Category,
			Count:          len(ids),
			Severity:       SeverityLow,
			Description:    desc,
			Recommendation: rec,
		}
		if includeItems {
			for _, id := range ids {
				c.Items = append(c.Items, id)
			}
		}
		summary.addCategory(c)
	}
	return nil
}
