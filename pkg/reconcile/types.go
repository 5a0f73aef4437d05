package reconcile

import "time"

// Severity communicates operator risk for a category. It is a fixed
// per-check constant, not computed from data.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CategoryKind separates findings that live in the relational store from
// findings that live in the blob store.
type CategoryKind string

const (
	KindDatabase CategoryKind = "database"
	KindStorage  CategoryKind = "storage"
)

// Category types not derived from the catalog.
const (
	CategoryStorageFiles   = "orphaned_storage_files"
	CategoryCascadePending = "cascade_pending_metadata"
	CategoryPendingMedia   = "pending_deletion_media"
	CategoryNative         = "native_cleanup"
)

// Category is one detector finding group. Never persisted; recomputed on
// every invocation.
type Category struct {
	Kind           CategoryKind `json:"category"`
	Type           string       `json:"type"`
	Count          int          `json:"count"`
	Severity       Severity     `json:"severity"`
	Description    string       `json:"description"`
	Recommendation string       `json:"recommendation"`
	SizeBytes      int64        `json:"size_bytes,omitempty"`
	Items          []any        `json:"items,omitempty"`
}

// DetectionSummary is the detector's aggregated report.
type DetectionSummary struct {
	TotalIssues           int        `json:"total_issues"`
	CriticalCount         int        `json:"critical_count"`
	HighCount             int        `json:"high_count"`
	MediumCount           int        `json:"medium_count"`
	LowCount              int        `json:"low_count"`
	PotentialStorageSaved int64      `json:"potential_storage_saved"`
	Categories            []Category `json:"categories"`
}

// addCategory folds a finding into the summary's aggregates.
func (s *DetectionSummary) addCategory(c Category) {
	if c.Count == 0 {
		return
	}
	s.Categories = append(s.Categories, c)
	s.TotalIssues += c.Count
	switch c.Severity {
	case SeverityCritical:
		s.CriticalCount += c.Count
	case SeverityHigh:
		s.HighCount += c.Count
	case SeverityMedium:
		s.MediumCount += c.Count
	case SeverityLow:
		s.LowCount += c.Count
	}
	if c.Kind == KindStorage {
		s.PotentialStorageSaved += c.SizeBytes
	}
}

// CleanupError is one surfaced failure from a cleanup run. Retriable tells
// the caller whether re-invoking later may succeed (rate limit, transient
// network) or an operator must intervene first (permission denied).
type CleanupError struct {
	Category  CategoryKind `json:"category"`
	Type      string       `json:"type"`
	Key       string       `json:"key,omitempty"`
	ID        string       `json:"id,omitempty"`
	Reason    string       `json:"reason"`
	Retriable bool         `json:"retriable"`
}

// AuditEntry tracks what happened to one category during cleanup.
// Invariant at the end of a run: Attempted == Deleted + Skipped + Errors.
type AuditEntry struct {
	Attempted int `json:"attempted"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Totals are the global counters of a cleanup run. In a dry run they carry
// the would-be numbers so that a dry run and the follow-up real run agree.
type Totals struct {
	RecordsCleaned    int64 `json:"records_cleaned"`
	StorageFreedBytes int64 `json:"storage_freed_bytes"`
	FilesDeleted      int64 `json:"files_deleted"`
}

// CleanupResult is the cleaner's full report. Returned complete even when
// individual steps failed; HTTP-level failure is reserved for configuration
// errors.
type CleanupResult struct {
	DryRun            bool                   `json:"dry_run"`
	CleanedCategories []string               `json:"cleaned_categories"`
	Errors            []CleanupError         `json:"errors"`
	Totals            Totals                 `json:"totals"`
	Audit             map[string]*AuditEntry `json:"audit"`
}

func newCleanupResult(dryRun bool) *CleanupResult {
	return &CleanupResult{
		DryRun:            dryRun,
		CleanedCategories: []string{},
		Errors:            []CleanupError{},
		Audit:             make(map[string]*AuditEntry),
	}
}

// audit returns the (created-on-demand) audit entry for a category.
func (r *CleanupResult) audit(category string) *AuditEntry {
	a, ok := r.Audit[category]
	if !ok {
		a = &AuditEntry{}
		r.Audit[category] = a
	}
	return a
}

func (r *CleanupResult) markCleaned(category string) {
	for _, c := range r.CleanedCategories {
		if c == category {
			return
		}
	}
	r.CleanedCategories = append(r.CleanedCategories, category)
}

func (r *CleanupResult) addError(e CleanupError) {
	r.Errors = append(r.Errors, e)
}

// Policy bounds a single reconciliation run. Every cap exists so the run
// finishes within the caller's wall-clock budget; callers needing full
// coverage invoke repeatedly.
type Policy struct {
	// MaxScanObjects caps how many objects the bucket walk inspects.
	MaxScanObjects int `mapstructure:"max_scan_objects" yaml:"max_scan_objects"`

	// ProbeSampleSize caps how many owner rows the DB-to-storage existence
	// probe checks per table (HEAD probes are expensive).
	ProbeSampleSize int `mapstructure:"probe_sample_size" yaml:"probe_sample_size"`

	// MetadataBatchLimit caps the id set fetched per metadata category.
	MetadataBatchLimit int `mapstructure:"metadata_batch_limit" yaml:"metadata_batch_limit"`

	// DeleteBatchSize is the blob batch-delete chunk size.
	DeleteBatchSize int `mapstructure:"delete_batch_size" yaml:"delete_batch_size"`

	// BatchDelay is inserted between blob delete batches to stay under the
	// store's rate limits.
	BatchDelay time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`

	// EphemeralTTL is the age after which ephemeral rows expire.
	EphemeralTTL time.Duration `mapstructure:"ephemeral_ttl" yaml:"ephemeral_ttl"`
}

// WithDefaults returns the policy with zero values replaced by defaults.
func (p Policy) WithDefaults() Policy {
	if p.MaxScanObjects == 0 {
		p.MaxScanObjects = 5000
	}
	if p.ProbeSampleSize == 0 {
		p.ProbeSampleSize = 200
	}
	if p.MetadataBatchLimit == 0 {
		p.MetadataBatchLimit = 10000
	}
	if p.DeleteBatchSize == 0 {
		p.DeleteBatchSize = 1000
	}
	if p.DeleteBatchSize > 1000 {
		p.DeleteBatchSize = 1000 // store-side batch limit
	}
	if p.EphemeralTTL == 0 {
		p.EphemeralTTL = time.Hour
	}
	return p
}

// categoryInfo holds the fixed description/recommendation strings per type.
var categoryInfo = map[string]struct {
	description    string
	recommendation string
}{
	CategoryStorageFiles: {
		"objects in the media bucket with no reference row in any owner table",
		"safe to delete after verifying uploads in flight are not affected",
	},
	CategoryCascadePending: {
		"metadata rows whose media item is marked pending_deletion",
		"run cleanup to complete the deferred deletion",
	},
	"dangling_media_records": {
		"media rows whose storage objects no longer exist",
		"investigate before removal; the content is already lost",
	},
	"dangling_audio_records": {
		"audio track rows whose storage objects no longer exist",
		"investigate before removal; the content is already lost",
	},
	"orphaned_analytics": {
		"analytics rows referencing a media item that does not exist",
		"safe to delete",
	},
	"orphaned_quality_metadata": {
		"quality metadata rows referencing a media item that does not exist",
		"safe to delete",
	},
	"orphaned_processing_jobs": {
		"processing jobs referencing a media item that does not exist",
		"safe to delete",
	},
	"orphaned_collection_items": {
		"collection memberships referencing a media item that does not exist",
		"safe to delete",
	},
	"expired_presence_markers": {
		"presence markers older than the configured TTL",
		"safe to delete",
	},
}

func describe(categoryType string) (string, string) {
	info, ok := categoryInfo[categoryType]
	if !ok {
		return "", ""
	}
	return info.description, info.recommendation
}
