// Package music maintains the mood-keyed soundtrack cache. Each mood maps
// to one fixed source URL; a track is fetched once and reused indefinitely.
package music

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/store"
)

// sources is the closed set of supported moods and their track URLs.
var sources = map[string]string{
	"chill":     "https://cdn.pixabay.com/audio/2023/07/30/audio-e4e0d5b7ff.mp3",
	"cinematic": "https://cdn.pixabay.com/audio/2024/04/24/audio-2f2b6e0f3a.mp3",
	"dark":      "https://cdn.pixabay.com/audio/2022/10/25/audio-91b9c3f1a9.mp3",
	"epic":      "https://cdn.pixabay.com/audio/2023/10/05/audio-1b8a3dd0c4.mp3",
	"happy":     "https://cdn.pixabay.com/audio/2022/08/02/audio-884fe92c21.mp3",
	"upbeat":    "https://cdn.pixabay.com/audio/2023/03/19/audio-d0c6ff1eab.mp3",
}

// Moods lists the supported mood tags in stable order.
func Moods() []string {
	out := make([]string, 0, len(sources))
	for m := range sources {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Store is the music-cache surface the service needs.
type Store interface {
	MusicByMood(mood string) (*store.MusicTrack, error)
	SaveMusicTrack(track *store.MusicTrack) error
}

// Service resolves mood tags to locally cached track files.
type Service struct {
	store      Store
	cacheDir   string
	sources    map[string]string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewService wires the soundtrack cache.
func NewService(st Store, cacheDir string, logger zerolog.Logger) *Service {
	return &Service{
		store:      st,
		cacheDir:   cacheDir,
		sources:    sources,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logger.With().Str("component", "music").Logger(),
	}
}

// Track returns the cached file for a mood, fetching it on first use.
// Unknown moods and fetch failures return an error the caller treats as
// non-fatal: the job proceeds without music.
func (s *Service) Track(ctx context.Context, mood string) (string, error) {
	srcURL, ok := s.sources[mood]
	if !ok {
		return "", fmt.Errorf("unknown music mood %q", mood)
	}

	if cached, err := s.store.MusicByMood(mood); err == nil && cached != nil {
		if _, statErr := os.Stat(cached.Path); statErr == nil {
			s.log.Info().Str("mood", mood).Msg("music cache hit")
			return cached.Path, nil
		}
	}

	if err := os.MkdirAll(filepath.Join(s.cacheDir, "music"), 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(s.cacheDir, "music", mood+".mp3")
	if err := s.fetch(ctx, srcURL, dest); err != nil {
		return "", err
	}

	if err := s.store.SaveMusicTrack(&store.MusicTrack{Mood: mood, Path: dest, SourceURL: srcURL}); err != nil {
		s.log.Warn().Err(err).Str("mood", mood).Msg("music cache write failed")
	}
	return dest, nil
}

func (s *Service) fetch(ctx context.Context, srcURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch music: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch music: status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("fetch music: %w", err)
	}
	return f.Close()
}
