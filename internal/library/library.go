// Package library registers user-curated media files so the acquisition
// cascade can prefer them over any external fetch.
package library

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/ffmpeg"
	"github.com/adhielesmana/promptweaver/internal/store"
	"github.com/adhielesmana/promptweaver/internal/types"
)

// Store is the library surface the importer needs.
type Store interface {
	SaveLibraryItem(item *store.LibraryItem) error
}

// Importer analyzes and registers curated media.
type Importer struct {
	store Store
	probe func(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	log   zerolog.Logger
}

// NewImporter builds an Importer backed by ffprobe frame analysis.
func NewImporter(st Store, logger zerolog.Logger) *Importer {
	return &Importer{
		store: st,
		probe: ffmpeg.ProbeVideo,
		log:   logger.With().Str("component", "library").Logger(),
	}
}

// Import registers a media file. Frame analysis fills duration, resolution
// and orientation; when the probe fails the item is stored with generic
// metadata instead of failing the import.
func (i *Importer) Import(ctx context.Context, path, title, description string, tags []string) (*store.LibraryItem, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("library file: %w", err)
	}
	if title == "" {
		return nil, fmt.Errorf("library item needs a title")
	}

	item := &store.LibraryItem{
		Title:       title,
		Description: description,
		Path:        path,
		Tags:        itemTags(title, description, tags),
		Orientation: string(types.OrientationLandscape),
		Source:      "upload",
	}

	info, err := i.probe(ctx, path)
	if err != nil {
		i.log.Warn().Err(err).Str("path", path).Msg("frame analysis failed, using generic metadata")
	} else {
		item.Width = info.Width
		item.Height = info.Height
		item.DurationSec = info.DurationSec
		if info.Height > info.Width {
			item.Orientation = string(types.OrientationPortrait)
		}
	}

	if err := i.store.SaveLibraryItem(item); err != nil {
		return nil, fmt.Errorf("save library item: %w", err)
	}
	i.log.Info().Str("title", title).Strs("tags", item.Tags).Msg("library item registered")
	return item, nil
}

// itemTags merges explicit tags with significant words from the title and
// description, normalized lowercase.
func itemTags(title, description string, tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if len(t) > 2 && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range tags {
		add(t)
	}
	for _, w := range strings.Fields(title) {
		add(w)
	}
	for _, w := range strings.Fields(description) {
		add(w)
	}
	return out
}
