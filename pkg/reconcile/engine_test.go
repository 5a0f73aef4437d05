package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/mediavault/mediavault/pkg/models"
	"github.com/mediavault/mediavault/pkg/store/blob"
	"github.com/mediavault/mediavault/pkg/store/relational"
)

// fakeBlob is an in-memory blob.Store. Folder structure is derived from the
// object paths, matching how a delimited S3 listing behaves.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string]int64

	// keyErrs makes DeleteBatch report a per-key failure for these paths.
	keyErrs map[string]error

	// failOnCall makes the Nth DeleteBatch call (1-based) fail entirely
	// with failErr. Zero disables.
	failOnCall int
	failErr    error

	// listErr makes every ListFolder call fail.
	listErr error

	// duplicateListings makes ListFolder emit every object and folder
	// twice, the way overlapping pages from an eventually consistent
	// listing can.
	duplicateListings bool

	deleteCalls int
	batchSizes  []int
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{
		objects: make(map[string]int64),
		keyErrs: make(map[string]error),
	}
}

func (f *fakeBlob) put(path string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = size
}

func (f *fakeBlob) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}

func (f *fakeBlob) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeBlob) ListFolder(ctx context.Context, prefix string) (*blob.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	page := &blob.Page{}
	seenFolders := make(map[string]bool)
	for path, size := range f.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			folder := prefix + rest[:i+1]
			if !seenFolders[folder] {
				seenFolders[folder] = true
				page.Folders = append(page.Folders, folder)
			}
			continue
		}
		page.Objects = append(page.Objects, blob.Object{Path: path, SizeBytes: size})
	}
	if f.duplicateListings {
		page.Objects = append(page.Objects, page.Objects...)
		page.Folders = append(page.Folders, page.Folders...)
	}
	return page, nil
}

func (f *fakeBlob) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeBlob) DeleteBatch(ctx context.Context, paths []string) (*blob.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	f.batchSizes = append(f.batchSizes, len(paths))

	if f.failOnCall != 0 && f.deleteCalls == f.failOnCall {
		return nil, f.failErr
	}

	result := &blob.BatchResult{Failed: make(map[string]error)}
	for _, p := range paths {
		if err, ok := f.keyErrs[p]; ok {
			result.Failed[p] = err
			continue
		}
		// Deleting a missing path is success.
		delete(f.objects, p)
		result.Deleted = append(result.Deleted, p)
	}
	return result, nil
}

// countingStore wraps a RelationalStore and counts reference lookups per
// path, to verify each object is inspected exactly once.
type countingStore struct {
	RelationalStore
	mu      sync.Mutex
	lookups map[string]int
}

func newCountingStore(rel RelationalStore) *countingStore {
	return &countingStore{RelationalStore: rel, lookups: make(map[string]int)}
}

func (c *countingStore) PathReferenced(ctx context.Context, path string) (bool, error) {
	c.mu.Lock()
	c.lookups[path]++
	c.mu.Unlock()
	return c.RelationalStore.PathReferenced(ctx, path)
}

// newTestStore creates an in-memory SQLite store with the full schema.
func newTestStore(t *testing.T) *relational.GORMStore {
	t.Helper()
	store, err := relational.New(&relational.Config{
		Type: relational.DatabaseTypeSQLite,
		SQLite: relational.SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedMediaItem(t *testing.T, store *relational.GORMStore, status string, paths ...string) string {
	t.Helper()
	item := &models.MediaItem{
		ID:     uuid.NewString(),
		Status: status,
	}
	if len(paths) > 0 {
		item.OriginalPath = paths[0]
	}
	if len(paths) > 1 {
		item.ProcessedPath = paths[1]
	}
	if len(paths) > 2 {
		item.ThumbnailPath = paths[2]
	}
	if err := store.DB().Create(item).Error; err != nil {
		t.Fatalf("failed to seed media item: %v", err)
	}
	return item.ID
}

func seedAudioTrack(t *testing.T, store *relational.GORMStore, storagePath, waveformPath string) string {
	t.Helper()
	track := &models.AudioTrack{
		ID:           uuid.NewString(),
		StoragePath:  storagePath,
		WaveformPath: waveformPath,
	}
	if err := store.DB().Create(track).Error; err != nil {
		t.Fatalf("failed to seed audio track: %v", err)
	}
	return track.ID
}

func seedAnalytics(t *testing.T, store *relational.GORMStore, mediaID string) string {
	t.Helper()
	row := &models.MediaAnalytics{ID: uuid.NewString(), MediaID: mediaID}
	if err := store.DB().Create(row).Error; err != nil {
		t.Fatalf("failed to seed analytics: %v", err)
	}
	return row.ID
}

func seedProcessingJob(t *testing.T, store *relational.GORMStore, mediaID string) string {
	t.Helper()
	row := &models.ProcessingJob{ID: uuid.NewString(), MediaID: mediaID, State: "done"}
	if err := store.DB().Create(row).Error; err != nil {
		t.Fatalf("failed to seed processing job: %v", err)
	}
	return row.ID
}

func seedPresenceMarker(t *testing.T, store *relational.GORMStore, age time.Duration) string {
	t.Helper()
	row := &models.PresenceMarker{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		Channel:   "chat",
		UpdatedAt: time.Now().Add(-age),
	}
	if err := store.DB().Create(row).Error; err != nil {
		t.Fatalf("failed to seed presence marker: %v", err)
	}
	return row.ID
}

func tableCount(t *testing.T, store *relational.GORMStore, table string) int64 {
	t.Helper()
	var n int64
	if err := store.DB().Table(table).Count(&n).Error; err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// checkAuditInvariant verifies attempted == deleted + skipped + errors for
// every category in the result.
func checkAuditInvariant(t *testing.T, result *CleanupResult) {
	t.Helper()
	for category, a := range result.Audit {
		if a.Attempted != a.Deleted+a.Skipped+a.Errors {
			t.Errorf("audit invariant broken for %s: attempted=%d deleted=%d skipped=%d errors=%d",
				category, a.Attempted, a.Deleted, a.Skipped, a.Errors)
		}
	}
}

func findCategory(summary *DetectionSummary, categoryType string) *Category {
	for i := range summary.Categories {
		if summary.Categories[i].Type == categoryType {
			return &summary.Categories[i]
		}
	}
	return nil
}

func accessDeniedErr() error {
	return &smithy.GenericAPIError{Code: "AccessDenied", Message: "access denied"}
}

func slowDownErr() error {
	return &smithy.GenericAPIError{Code: "SlowDown", Message: "rate exceeded"}
}

func TestEngine_NotConfigured(t *testing.T) {
	store := newTestStore(t)

	t.Run("nil blob store", func(t *testing.T) {
		e := New(nil, store, Policy{})
		if _, err := e.Detect(context.Background(), false); err == nil {
			t.Fatal("expected error for missing blob store")
		} else if !errors.Is(err, models.ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}

		if _, err := e.Cleanup(context.Background(), true); err == nil {
			t.Fatal("expected error for missing blob store")
		}
	})

	t.Run("nil relational store", func(t *testing.T) {
		e := New(newFakeBlob(), nil, Policy{})
		if _, err := e.Detect(context.Background(), false); err == nil {
			t.Fatal("expected error for missing relational store")
		}
	})
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	if p.MaxScanObjects != 5000 {
		t.Errorf("expected default scan cap 5000, got %d", p.MaxScanObjects)
	}
	if p.ProbeSampleSize != 200 {
		t.Errorf("expected default probe sample 200, got %d", p.ProbeSampleSize)
	}
	if p.MetadataBatchLimit != 10000 {
		t.Errorf("expected default metadata limit 10000, got %d", p.MetadataBatchLimit)
	}
	if p.DeleteBatchSize != 1000 {
		t.Errorf("expected default delete batch 1000, got %d", p.DeleteBatchSize)
	}
	if p.EphemeralTTL != time.Hour {
		t.Errorf("expected default TTL 1h, got %s", p.EphemeralTTL)
	}

	capped := Policy{DeleteBatchSize: 5000}.WithDefaults()
	if capped.DeleteBatchSize != 1000 {
		t.Errorf("expected delete batch capped at 1000, got %d", capped.DeleteBatchSize)
	}
}
