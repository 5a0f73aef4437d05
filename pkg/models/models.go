// Package models defines the GORM models for MediaVault's reference tables.
//
// Two kinds of liveness rules exist:
//   - Owner tables (MediaItem, AudioTrack) hold path columns pointing at
//     objects in the media bucket. A blob is reachable iff at least one owner
//     row references its path.
//   - Metadata tables (MediaAnalytics, QualityMetadata, ProcessingJob,
//     CollectionItem) hold a foreign key to a media item. A metadata row is
//     live iff its media item exists.
//
// PresenceMarker rows are ephemeral and expire purely by age.
package models

import "time"

// MediaItemStatus values for MediaItem.Status.
const (
	MediaStatusActive          = "active"
	MediaStatusPendingDeletion = "pending_deletion"
)

// MediaItem is the primary owner table for uploaded media.
// A media item references up to three blob paths: the original upload, the
// processed rendition, and the thumbnail.
type MediaItem struct {
	ID            string `gorm:"primaryKey;size:36"`
	CreatorID     string `gorm:"size:36;index"`
	Title         string `gorm:"size:255"`
	Status        string `gorm:"size:32;default:active;index"`
	OriginalPath  string `gorm:"size:1024"`
	ProcessedPath string `gorm:"size:1024"`
	ThumbnailPath string `gorm:"size:1024"`
	SizeBytes     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides the default pluralization.
func (MediaItem) TableName() string { return "media_items" }

// AudioTrack is an owner table for standalone audio uploads.
type AudioTrack struct {
	ID           string `gorm:"primaryKey;size:36"`
	CreatorID    string `gorm:"size:36;index"`
	Title        string `gorm:"size:255"`
	StoragePath  string `gorm:"size:1024"`
	WaveformPath string `gorm:"size:1024"`
	SizeBytes    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AudioTrack) TableName() string { return "audio_tracks" }

// MediaAnalytics holds per-item view/engagement counters.
type MediaAnalytics struct {
	ID        string `gorm:"primaryKey;size:36"`
	MediaID   string `gorm:"size:36;index"`
	Views     int64
	Likes     int64
	UpdatedAt time.Time
}

func (MediaAnalytics) TableName() string { return "media_analytics" }

// QualityMetadata holds transcoding quality data for a media item.
type QualityMetadata struct {
	ID        string `gorm:"primaryKey;size:36"`
	MediaID   string `gorm:"size:36;index"`
	Width     int
	Height    int
	Bitrate   int
	Codec     string `gorm:"size:64"`
	CreatedAt time.Time
}

func (QualityMetadata) TableName() string { return "quality_metadata" }

// ProcessingJob tracks a transcoding/thumbnailing job for a media item.
type ProcessingJob struct {
	ID        string `gorm:"primaryKey;size:36"`
	MediaID   string `gorm:"size:36;index"`
	State     string `gorm:"size:32"`
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProcessingJob) TableName() string { return "processing_jobs" }

// CollectionItem is a membership row linking a media item into a
// creator-curated collection.
type CollectionItem struct {
	ID           string `gorm:"primaryKey;size:36"`
	CollectionID string `gorm:"size:36;index"`
	MediaID      string `gorm:"size:36;index"`
	Position     int
	CreatedAt    time.Time
}

func (CollectionItem) TableName() string { return "collection_items" }

// PresenceMarker is a time-bound liveness row written by chat/viewer
// sessions. Markers are meaningful only while fresh; stale rows are pure
// garbage regardless of any reference.
type PresenceMarker struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:36;index"`
	Channel   string `gorm:"size:255"`
	UpdatedAt time.Time `gorm:"index"`
}

func (PresenceMarker) TableName() string { return "presence_markers" }

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&MediaItem{},
		&AudioTrack{},
		&MediaAnalytics{},
		&QualityMetadata{},
		&ProcessingJob{},
		&CollectionItem{},
		&PresenceMarker{},
	}
}
