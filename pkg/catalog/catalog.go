// Package catalog is the single source of truth for which relational tables
// can reference a blob path and which tables are metadata tables keyed by a
// media item foreign key.
//
// The catalog is static and hand-maintained: whenever a new path-bearing
// table is introduced, it must be added here. Auto-discovery across
// heterogeneous schemas is unreliable, so this is a deliberate manual step.
package catalog

import "github.com/mediavault/mediavault/pkg/models"

// Owner describes a table whose rows may contain path columns pointing at
// objects in the media bucket.
type Owner struct {
	// Table is the relational table name.
	Table string

	// IDColumn is the primary key column.
	IDColumn string

	// PathColumns are the columns that may hold a blob path. A blob is
	// reachable iff at least one row in at least one owner table contains
	// its path in any of these columns.
	PathColumns []string

	// StatusColumn, if non-empty, names the column holding the row lifecycle
	// status (used by the cascade-pending check).
	StatusColumn string

	// DanglingCategory is the report category for rows of this table whose
	// blobs no longer exist.
	DanglingCategory string
}

// Metadata describes a secondary table whose liveness depends on a foreign
// key to an owner table, not on a blob path.
type Metadata struct {
	// Table is the relational table name.
	Table string

	// IDColumn is the primary key column.
	IDColumn string

	// OwnerTable is the owning table; OwnerIDColumn its primary key.
	OwnerTable    string
	OwnerIDColumn string

	// FKColumn is the column in Table referencing OwnerTable's primary key.
	FKColumn string

	// Category is the report category for orphans of this table.
	Category string
}

// Ephemeral describes a time-bound table whose rows expire purely by age.
type Ephemeral struct {
	Table         string
	IDColumn      string
	UpdatedColumn string
	Category      string
}

// Owners returns the owner tables in scan order.
func Owners() []Owner {
	return []Owner{
		{
			Table:            models.MediaItem{}.TableName(),
			IDColumn:         "id",
			PathColumns:      []string{"original_path", "processed_path", "thumbnail_path"},
			StatusColumn:     "status",
			DanglingCategory: "dangling_media_records",
		},
		{
			Table:            models.AudioTrack{}.TableName(),
			IDColumn:         "id",
			PathColumns:      []string{"storage_path", "waveform_path"},
			DanglingCategory: "dangling_audio_records",
		},
	}
}

// MetadataTables returns the metadata tables in cleanup order.
func MetadataTables() []Metadata {
	mediaItems := models.MediaItem{}.TableName()
	return []Metadata{
		{
			Table:         models.MediaAnalytics{}.TableName(),
			IDColumn:      "id",
			OwnerTable:    mediaItems,
			OwnerIDColumn: "id",
			FKColumn:      "media_id",
			Category:      "orphaned_analytics",
		},
		{
			Table:         models.QualityMetadata{}.TableName(),
			IDColumn:      "id",
			OwnerTable:    mediaItems,
			OwnerIDColumn: "id",
			FKColumn:      "media_id",
			Category:      "orphaned_quality_metadata",
		},
		{
			Table:         models.ProcessingJob{}.TableName(),
			IDColumn:      "id",
			OwnerTable:    mediaItems,
			OwnerIDColumn: "id",
			FKColumn:      "media_id",
			Category:      "orphaned_processing_jobs",
		},
		{
			Table:         models.CollectionItem{}.TableName(),
			IDColumn:      "id",
			OwnerTable:    mediaItems,
			OwnerIDColumn: "id",
			FKColumn:      "media_id",
			Category:      "orphaned_collection_items",
		},
	}
}

// EphemeralTables returns the age-expired tables.
func EphemeralTables() []Ephemeral {
	return []Ephemeral{
		{
			Table:         models.PresenceMarker{}.TableName(),
			IDColumn:      "id",
			UpdatedColumn: "updated_at",
			Category:      "expired_presence_markers",
		},
	}
}

// PendingDeletionOwner returns the owner table that participates in the
// cascade-pending check, along with the status value marking a row for
// deletion.
func PendingDeletionOwner() (Owner, string) {
	return Owners()[0], models.MediaStatusPendingDeletion
}
