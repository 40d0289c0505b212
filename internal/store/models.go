package store

import "time"

// Generation run states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// FootageClip is a durable record of a downloaded stock clip. The provider
// ID is the dedup key; the term set only ever grows across re-discoveries.
type FootageClip struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProviderID  int64     `gorm:"uniqueIndex;not null" json:"provider_id"`
	Path        string    `gorm:"not null" json:"path"`
	Terms       []string  `gorm:"serializer:json" json:"terms"`
	DurationSec float64   `json:"duration_sec"`
	Orientation string    `gorm:"index" json:"orientation"`
	Quality     string    `json:"quality"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LibraryItem is a user-curated media file, always consulted before any
// external fetch.
type LibraryItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Path        string    `gorm:"not null" json:"path"`
	Tags        []string  `gorm:"serializer:json" json:"tags"`
	Orientation string    `gorm:"index" json:"orientation"`
	DurationSec float64   `json:"duration_sec"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Source      string    `json:"source"` // "upload" or other provenance
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VoiceoverEntry caches synthesized narration keyed by the fingerprint of
// (narration text, language).
type VoiceoverEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Fingerprint string    `gorm:"uniqueIndex;not null" json:"fingerprint"`
	Language    string    `json:"language"`
	Path        string    `gorm:"not null" json:"path"`
	DurationSec float64   `json:"duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
}

// MusicTrack is a background track fetched once per mood and reused.
type MusicTrack struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Mood      string    `gorm:"uniqueIndex;not null" json:"mood"`
	Path      string    `gorm:"not null" json:"path"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationRecord tracks the status of one generation run.
type GenerationRecord struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Prompt       string    `json:"prompt"`
	Status       string    `gorm:"index" json:"status"`
	Stage        string    `json:"stage"`
	Error        string    `json:"error,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
