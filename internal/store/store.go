// Package store is the durable record store behind the footage, voiceover
// and music caches. It runs on SQLite by default and Postgres when
// configured, and its clip upserts are set-union merges so concurrent jobs
// can race on the same provider ID without losing terms.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the gorm handle with the operations the pipeline needs.
type Store struct {
	db *gorm.DB
}

// Open connects to the database selected by DATABASE_TYPE ("sqlite" by
// default, "postgres" via the POSTGRES_* variables) and migrates the schema.
func Open(defaultSQLitePath string) (*Store, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch dbType := os.Getenv("DATABASE_TYPE"); dbType {
	case "", "sqlite":
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = defaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			envOr("POSTGRES_HOST", "localhost"),
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("POSTGRES_DB"),
			envOr("POSTGRES_PORT", "5432"),
		)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&FootageClip{},
		&LibraryItem{},
		&VoiceoverEntry{},
		&MusicTrack{},
		&GenerationRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenDB wraps an existing gorm handle, migrating the schema. Used by tests.
func OpenDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&FootageClip{},
		&LibraryItem{},
		&VoiceoverEntry{},
		&MusicTrack{},
		&GenerationRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ClipByProviderID returns the cached clip for a provider ID, or nil when
// the clip has never been cached.
func (s *Store) ClipByProviderID(providerID int64) (*FootageClip, error) {
	var clip FootageClip
	err := s.db.Where("provider_id = ?", providerID).First(&clip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &clip, nil
}

// SaveClipMergeTerms upserts a clip by provider ID. When a record already
// exists its term set is unioned with the new one and the existing local
// path is kept, so a clip is never re-pointed once downloaded. The union is
// commutative: two jobs racing on the same ID converge on the same set.
//
// The insert uses ON CONFLICT DO NOTHING so a racing first-insert is
// absorbed rather than erroring, and the merge then read-locks the row on
// Postgres so concurrent unions cannot overwrite each other. SQLite
// serializes writers at the database level and rejects FOR UPDATE, so the
// lock is applied per dialect.
func (s *Store) SaveClipMergeTerms(clip *FootageClip) (*FootageClip, error) {
	var out FootageClip
	err := s.db.Transaction(func(tx *gorm.DB) error {
		seed := FootageClip{
			ProviderID:  clip.ProviderID,
			Path:        clip.Path,
			Terms:       normalizeTerms(clip.Terms),
			DurationSec: clip.DurationSec,
			Orientation: clip.Orientation,
			Quality:     clip.Quality,
			Width:       clip.Width,
			Height:      clip.Height,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing FootageClip
		if err := q.Where("provider_id = ?", clip.ProviderID).First(&existing).Error; err != nil {
			return err
		}

		existing.Terms = unionTerms(existing.Terms, clip.Terms)
		if existing.Path == "" {
			existing.Path = clip.Path
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert clip %d: %w", clip.ProviderID, err)
	}
	return &out, nil
}

// ClipsByOrientation returns a bounded candidate set for term scoring.
func (s *Store) ClipsByOrientation(orientation string, limit int) ([]FootageClip, error) {
	var clips []FootageClip
	q := s.db.Order("id")
	if orientation != "" {
		q = q.Where("orientation = ?", orientation)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&clips).Error; err != nil {
		return nil, err
	}
	return clips, nil
}

// ClipsExcluding returns cached clips for an orientation minus the
// already-used provider IDs. An empty orientation matches everything.
func (s *Store) ClipsExcluding(orientation string, usedProviderIDs []int64, limit int) ([]FootageClip, error) {
	var clips []FootageClip
	q := s.db.Order("id")
	if orientation != "" {
		q = q.Where("orientation = ?", orientation)
	}
	if len(usedProviderIDs) > 0 {
		q = q.Where("provider_id NOT IN ?", usedProviderIDs)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&clips).Error; err != nil {
		return nil, err
	}
	return clips, nil
}

// LibraryItems returns curated media for an orientation.
func (s *Store) LibraryItems(orientation string, limit int) ([]LibraryItem, error) {
	var items []LibraryItem
	q := s.db.Order("id")
	if orientation != "" {
		q = q.Where("orientation = ?", orientation)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// SaveLibraryItem registers a curated media file.
func (s *Store) SaveLibraryItem(item *LibraryItem) error {
	item.Tags = normalizeTerms(item.Tags)
	return s.db.Create(item).Error
}

// VoiceoverByFingerprint returns the cached voiceover, or nil on a miss.
func (s *Store) VoiceoverByFingerprint(fp string) (*VoiceoverEntry, error) {
	var entry VoiceoverEntry
	err := s.db.Where("fingerprint = ?", fp).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SaveVoiceover records a synthesized narration file. A concurrent insert
// of the same fingerprint is treated as a hit, not an error.
func (s *Store) SaveVoiceover(entry *VoiceoverEntry) error {
	err := s.db.Create(entry).Error
	if err != nil {
		if existing, ferr := s.VoiceoverByFingerprint(entry.Fingerprint); ferr == nil && existing != nil {
			*entry = *existing
			return nil
		}
	}
	return err
}

// MusicByMood returns the cached track for a mood, or nil on a miss.
func (s *Store) MusicByMood(mood string) (*MusicTrack, error) {
	var track MusicTrack
	err := s.db.Where("mood = ?", mood).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// SaveMusicTrack records a fetched background track.
func (s *Store) SaveMusicTrack(track *MusicTrack) error {
	return s.db.Create(track).Error
}

// CreateGeneration records the start of a run.
func (s *Store) CreateGeneration(rec *GenerationRecord) error {
	rec.Status = StatusRunning
	return s.db.Create(rec).Error
}

// UpdateGenerationStage moves a running record to a new stage.
func (s *Store) UpdateGenerationStage(id, stage string) error {
	return s.db.Model(&GenerationRecord{}).Where("id = ?", id).Update("stage", stage).Error
}

// FinishGeneration marks a run complete or failed.
func (s *Store) FinishGeneration(id, artifactPath string, runErr error) error {
	updates := map[string]any{"status": StatusComplete, "artifact_path": artifactPath}
	if runErr != nil {
		updates = map[string]any{"status": StatusFailed, "error": runErr.Error()}
	}
	return s.db.Model(&GenerationRecord{}).Where("id = ?", id).Updates(updates).Error
}

func normalizeTerms(terms []string) []string {
	return unionTerms(nil, terms)
}

// unionTerms returns the sorted, deduplicated, lowercased union of two term
// sets. Sorting makes the merge order-independent.
func unionTerms(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, t := range append(append([]string{}, a...), b...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
