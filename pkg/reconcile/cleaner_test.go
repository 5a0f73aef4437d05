package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCleanup_DryRunDeletesNothing(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	seedMediaItem(t, store, "active", "content/keep.mp4")
	fb.put("content/keep.mp4", 10)
	fb.put("content/orphan.mp4", 100)
	seedAnalytics(t, store, "no-such-media")
	seedPresenceMarker(t, store, 2*time.Hour)

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, true)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if !result.DryRun {
		t.Error("expected dry_run true")
	}
	if fb.deleteCalls != 0 {
		t.Errorf("dry run issued %d delete calls", fb.deleteCalls)
	}
	if fb.count() != 2 {
		t.Errorf("dry run deleted objects: %d remain of 2", fb.count())
	}
	if n := tableCount(t, store, "media_analytics"); n != 1 {
		t.Errorf("dry run deleted rows: %d analytics remain of 1", n)
	}
	if n := tableCount(t, store, "presence_markers"); n != 1 {
		t.Errorf("dry run deleted rows: %d markers remain of 1", n)
	}

	// Would-be totals.
	if result.Totals.FilesDeleted != 1 {
		t.Errorf("expected 1 would-be file deletion, got %d", result.Totals.FilesDeleted)
	}
	if result.Totals.StorageFreedBytes != 100 {
		t.Errorf("expected 100 would-be bytes, got %d", result.Totals.StorageFreedBytes)
	}
	if result.Totals.RecordsCleaned != 2 {
		t.Errorf("expected 2 would-be record deletions, got %d", result.Totals.RecordsCleaned)
	}

	// In a dry run everything attempted is skipped.
	for category, a := range result.Audit {
		if a.Deleted != 0 || a.Errors != 0 {
			t.Errorf("dry run audit for %s has deleted=%d errors=%d", category, a.Deleted, a.Errors)
		}
		if a.Attempted != a.Skipped {
			t.Errorf("dry run audit for %s: attempted=%d skipped=%d", category, a.Attempted, a.Skipped)
		}
	}
	checkAuditInvariant(t, result)
}

func TestCleanup_DryRunAgreesWithRealRun(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	seedMediaItem(t, store, "active", "content/keep.mp4")
	fb.put("content/keep.mp4", 10)
	fb.put("content/orphan1.mp4", 100)
	fb.put("content/orphan2.mp4", 200)
	seedAnalytics(t, store, "no-such-media")
	seedProcessingJob(t, store, "no-such-media")
	seedPresenceMarker(t, store, 3*time.Hour)

	e := New(fb, store, Policy{})

	dry, err := e.Cleanup(ctx, true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	realRun, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("real run failed: %v", err)
	}

	if dry.Totals != realRun.Totals {
		t.Errorf("dry run totals %+v != real run totals %+v", dry.Totals, realRun.Totals)
	}
	checkAuditInvariant(t, realRun)

	// The real run removed everything; a third run finds nothing.
	again, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("repeat run failed: %v", err)
	}
	if again.Totals.RecordsCleaned != 0 || again.Totals.FilesDeleted != 0 {
		t.Errorf("repeat run cleaned more: %+v", again.Totals)
	}
	if len(again.Errors) != 0 {
		t.Errorf("repeat run reported errors: %v", again.Errors)
	}
}

func TestCleanup_RemovesOrphansAndKeepsLiveData(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	liveID := seedMediaItem(t, store, "active", "content/live.mp4")
	fb.put("content/live.mp4", 10)
	seedAnalytics(t, store, liveID)
	fb.put("content/orphan.mp4", 100)
	orphanRow := seedAnalytics(t, store, "no-such-media")

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if fb.has("content/orphan.mp4") {
		t.Error("orphan blob survived cleanup")
	}
	if !fb.has("content/live.mp4") {
		t.Error("live blob was deleted")
	}

	var count int64
	store.DB().Table("media_analytics").Where("id = ?", orphanRow).Count(&count)
	if count != 0 {
		t.Error("orphaned analytics row survived cleanup")
	}
	if n := tableCount(t, store, "media_analytics"); n != 1 {
		t.Errorf("expected live analytics row to survive, %d remain", n)
	}
	if n := tableCount(t, store, "media_items"); n != 1 {
		t.Errorf("live media item deleted, %d remain", n)
	}

	if len(result.CleanedCategories) == 0 {
		t.Error("expected cleaned categories to be reported")
	}
	checkAuditInvariant(t, result)
}

func TestCleanup_BatchesAndSurvivesBatchFailure(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		fb.put(fmt.Sprintf("content/orphan-%04d.mp4", i), 1)
	}

	// Second batch fails wholesale with a permission error.
	fb.failOnCall = 2
	fb.failErr = accessDeniedErr()

	e := New(fb, store, Policy{MaxScanObjects: 2000})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if len(fb.batchSizes) != 2 {
		t.Fatalf("expected 2 delete batches, got %d", len(fb.batchSizes))
	}
	if fb.batchSizes[0] != 1000 || fb.batchSizes[1] != 200 {
		t.Errorf("expected batches [1000 200], got %v", fb.batchSizes)
	}

	a := result.Audit[CategoryStorageFiles]
	if a == nil {
		t.Fatal("missing storage audit entry")
	}
	if a.Attempted != 1200 {
		t.Errorf("expected attempted 1200, got %d", a.Attempted)
	}
	if a.Deleted != 1000 {
		t.Errorf("expected deleted 1000, got %d", a.Deleted)
	}
	if a.Errors != 200 {
		t.Errorf("expected errors 200, got %d", a.Errors)
	}
	checkAuditInvariant(t, result)

	// One surfaced error entry for the failed batch, not 200.
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(result.Errors))
	}
	if result.Errors[0].Retriable {
		t.Error("permission failure reported as retriable")
	}

	// The first batch stays deleted.
	if fb.count() != 200 {
		t.Errorf("expected 200 objects remaining, got %d", fb.count())
	}
}

func TestCleanup_PerKeyFailure(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	fb.put("content/a.mp4", 10)
	fb.put("content/b.mp4", 20)
	fb.put("content/c.mp4", 30)
	fb.keyErrs["content/b.mp4"] = slowDownErr()

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	a := result.Audit[CategoryStorageFiles]
	if a.Attempted != 3 || a.Deleted != 2 || a.Errors != 1 {
		t.Errorf("expected attempted=3 deleted=2 errors=1, got %+v", a)
	}
	checkAuditInvariant(t, result)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(result.Errors))
	}
	if result.Errors[0].Key != "content/b.mp4" {
		t.Errorf("expected failing key content/b.mp4, got %q", result.Errors[0].Key)
	}
	if !result.Errors[0].Retriable {
		t.Error("rate-limit failure reported as not retriable")
	}

	if result.Totals.StorageFreedBytes != 40 {
		t.Errorf("expected 40 bytes freed, got %d", result.Totals.StorageFreedBytes)
	}
}

func TestCleanup_CascadeCompletesDeferredDeletion(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	pendingID := seedMediaItem(t, store, "pending_deletion",
		"content/p/orig.mp4", "content/p/proc.mp4")
	fb.put("content/p/orig.mp4", 100)
	fb.put("content/p/proc.mp4", 50)
	seedAnalytics(t, store, pendingID)
	seedProcessingJob(t, store, pendingID)

	keepID := seedMediaItem(t, store, "active", "content/k/orig.mp4")
	fb.put("content/k/orig.mp4", 10)
	seedAnalytics(t, store, keepID)

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	// Blobs, dependents, then the parent itself.
	if fb.has("content/p/orig.mp4") || fb.has("content/p/proc.mp4") {
		t.Error("pending item's blobs survived cleanup")
	}
	if !fb.has("content/k/orig.mp4") {
		t.Error("active item's blob was deleted")
	}

	var count int64
	store.DB().Table("media_items").Where("id = ?", pendingID).Count(&count)
	if count != 0 {
		t.Error("pending media item survived cleanup")
	}
	if n := tableCount(t, store, "media_items"); n != 1 {
		t.Errorf("expected 1 media item remaining, got %d", n)
	}
	if n := tableCount(t, store, "media_analytics"); n != 1 {
		t.Errorf("expected 1 analytics row remaining, got %d", n)
	}
	if n := tableCount(t, store, "processing_jobs"); n != 0 {
		t.Errorf("expected 0 processing jobs remaining, got %d", n)
	}

	cascade := result.Audit[CategoryCascadePending]
	if cascade == nil || cascade.Deleted != 2 {
		t.Errorf("expected 2 cascade-deleted dependents, got %+v", cascade)
	}
	parents := result.Audit[CategoryPendingMedia]
	if parents == nil || parents.Deleted != 1 {
		t.Errorf("expected 1 deleted parent, got %+v", parents)
	}
	checkAuditInvariant(t, result)

	// Nothing left behind for the next run.
	again, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("repeat run failed: %v", err)
	}
	if again.Totals.RecordsCleaned != 0 || again.Totals.FilesDeleted != 0 {
		t.Errorf("repeat run found leftovers: %+v", again.Totals)
	}
}

func TestCleanup_EphemeralTTLBoundary(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	expired := seedPresenceMarker(t, store, 2*time.Hour)
	fresh := seedPresenceMarker(t, store, 30*time.Minute)

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	var count int64
	store.DB().Table("presence_markers").Where("id = ?", expired).Count(&count)
	if count != 0 {
		t.Error("expired marker survived cleanup")
	}
	store.DB().Table("presence_markers").Where("id = ?", fresh).Count(&count)
	if count != 1 {
		t.Error("fresh marker was deleted")
	}

	a := result.Audit["expired_presence_markers"]
	if a == nil || a.Deleted != 1 {
		t.Errorf("expected 1 deleted marker in audit, got %+v", a)
	}
	checkAuditInvariant(t, result)
}

func TestCleanup_DetectAgreement(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	fb.put("content/orphan1.mp4", 100)
	fb.put("content/orphan2.mp4", 200)
	seedAnalytics(t, store, "no-such-media")
	seedPresenceMarker(t, store, 2*time.Hour)

	e := New(fb, store, Policy{})

	summary, err := e.Detect(ctx, false)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	// On an unchanged store, cleanup removes exactly what detect reported.
	storageFound := findCategory(summary, CategoryStorageFiles).Count
	if int64(storageFound) != result.Totals.FilesDeleted {
		t.Errorf("detect found %d blobs, cleanup deleted %d", storageFound, result.Totals.FilesDeleted)
	}

	dbFound := findCategory(summary, "orphaned_analytics").Count +
		findCategory(summary, "expired_presence_markers").Count
	if int64(dbFound) != result.Totals.RecordsCleaned {
		t.Errorf("detect found %d rows, cleanup deleted %d", dbFound, result.Totals.RecordsCleaned)
	}
}

func TestCleanup_ContinuesAfterScanFailure(t *testing.T) {
	fb := newFakeBlob()
	store := newTestStore(t)
	ctx := context.Background()

	// The bucket walk fails outright; the database steps still run.
	fb.listErr = accessDeniedErr()
	seedAnalytics(t, store, "no-such-media")
	seedPresenceMarker(t, store, 2*time.Hour)

	e := New(fb, store, Policy{})
	result, err := e.Cleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 surfaced error, got %d: %+v", len(result.Errors), result.Errors)
	}
	scanErr := result.Errors[0]
	if scanErr.Type != CategoryStorageFiles {
		t.Errorf("expected storage error type, got %s", scanErr.Type)
	}
	if scanErr.Retriable {
		t.Error("permission failure must not be retriable")
	}

	// The storage step never reached its candidate set, so it has no audit
	// entry, and no stray delete calls were issued.
	if a := result.Audit[CategoryStorageFiles]; a != nil {
		t.Errorf("expected no storage audit entry after scan failure, got %+v", a)
	}
	if fb.deleteCalls != 0 {
		t.Errorf("expected no blob deletes, got %d calls", fb.deleteCalls)
	}

	// Later steps still cleaned their rows.
	if n := tableCount(t, store, "media_analytics"); n != 0 {
		t.Errorf("expected analytics cleaned despite walk failure, %d remain", n)
	}
	if n := tableCount(t, store, "presence_markers"); n != 0 {
		t.Errorf("expected markers cleaned despite walk failure, %d remain", n)
	}
	if a := result.Audit["orphaned_analytics"]; a == nil || a.Deleted != 1 {
		t.Errorf("expected 1 analytics deletion in audit, got %+v", a)
	}
	if result.Totals.RecordsCleaned != 2 {
		t.Errorf("expected 2 records cleaned, got %d", result.Totals.RecordsCleaned)
	}
	checkAuditInvariant(t, result)
}

// fakeNativeStore wraps a RelationalStore with a native cleanup capability.
type fakeNativeStore struct {
	RelationalStore
	configured bool
	removed    int64
	err        error
	calls      int
}

func (f *fakeNativeStore) NativeCleanupConfigured() bool { return f.configured }

func (f *fakeNativeStore) NativeCleanup(ctx context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func TestCleanup_NativeRoutine(t *testing.T) {
	ctx := context.Background()

	t.Run("merged into audit on success", func(t *testing.T) {
		fb := newFakeBlob()
		native := &fakeNativeStore{RelationalStore: newTestStore(t), configured: true, removed: 7}

		e := New(fb, native, Policy{})
		result, err := e.Cleanup(ctx, false)
		if err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}

		if native.calls != 1 {
			t.Errorf("expected 1 native call, got %d", native.calls)
		}
		a := result.Audit[CategoryNative]
		if a == nil || a.Deleted != 7 {
			t.Errorf("expected 7 native deletions in audit, got %+v", a)
		}
		if result.Totals.RecordsCleaned != 7 {
			t.Errorf("expected native deletions in totals, got %d", result.Totals.RecordsCleaned)
		}
		checkAuditInvariant(t, result)
	})

	t.Run("skipped in dry run", func(t *testing.T) {
		fb := newFakeBlob()
		native := &fakeNativeStore{RelationalStore: newTestStore(t), configured: true, removed: 7}

		e := New(fb, native, Policy{})
		if _, err := e.Cleanup(ctx, true); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
		if native.calls != 0 {
			t.Errorf("native routine invoked during dry run")
		}
	})

	t.Run("skipped when not configured", func(t *testing.T) {
		fb := newFakeBlob()
		native := &fakeNativeStore{RelationalStore: newTestStore(t), configured: false}

		e := New(fb, native, Policy{})
		if _, err := e.Cleanup(ctx, false); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
		if native.calls != 0 {
			t.Errorf("unconfigured native routine invoked")
		}
	})

	t.Run("failure recorded without aborting", func(t *testing.T) {
		fb := newFakeBlob()
		native := &fakeNativeStore{
			RelationalStore: newTestStore(t),
			configured:      true,
			err:             errors.New("function does not exist"),
		}

		e := New(fb, native, Policy{})
		result, err := e.Cleanup(ctx, false)
		if err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}

		a := result.Audit[CategoryNative]
		if a == nil || a.Errors != 1 {
			t.Errorf("expected 1 native error in audit, got %+v", a)
		}
		if len(result.Errors) != 1 {
			t.Errorf("expected 1 surfaced error, got %d", len(result.Errors))
		}
		checkAuditInvariant(t, result)
	})
}
