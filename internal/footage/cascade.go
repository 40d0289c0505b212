// Package footage resolves one local clip per scene through a five-tier
// fallback cascade: curated library, exact-orientation cache, remote
// provider search, cross-orientation cache, and an emergency generic fetch.
// Tiers are an ordered list of strategies sharing one contract, so they can
// be tested and reordered independently.
package footage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/match"
	"github.com/adhielesmana/promptweaver/internal/store"
	"github.com/adhielesmana/promptweaver/internal/types"
)

// ErrNoFootage reports that no scene resolved any clip at all.
var ErrNoFootage = errors.New("no footage resolved for any scene")

// broadFallbackTerms are tried against the provider when a scene's own
// query finds nothing.
var broadFallbackTerms = []string{
	"nature", "city", "sky", "ocean", "forest",
	"mountains", "clouds", "sunset", "road", "water",
}

// emergencyTerms are guaranteed-safe generic queries for the last tier.
var emergencyTerms = []string{"nature", "sky", "water", "city", "abstract"}

// stopWords is the short list stripped when simplifying a scene query.
var stopWords = map[string]bool{
	"the": true, "and": true, "with": true, "over": true, "under": true,
	"for": true, "from": true, "into": true, "near": true, "very": true,
}

// Store is the durable-cache surface the cascade needs.
type Store interface {
	ClipByProviderID(providerID int64) (*store.FootageClip, error)
	SaveClipMergeTerms(clip *store.FootageClip) (*store.FootageClip, error)
	ClipsByOrientation(orientation string, limit int) ([]store.FootageClip, error)
	ClipsExcluding(orientation string, usedProviderIDs []int64, limit int) ([]store.FootageClip, error)
	LibraryItems(orientation string, limit int) ([]store.LibraryItem, error)
}

// Notice records a scene that exhausted every tier.
type Notice struct {
	SceneIndex int
	Query      string
	Reason     string
}

// Cascade resolves scene queries to workspace-local clip files.
type Cascade struct {
	store          Store
	provider       Provider
	cacheDir       string
	maxClipSec     float64
	candidateLimit int
	log            zerolog.Logger
}

// NewCascade wires the cascade. cacheDir is where downloaded clips persist
// across jobs.
func NewCascade(st Store, provider Provider, cacheDir string, logger zerolog.Logger) *Cascade {
	return &Cascade{
		store:          st,
		provider:       provider,
		cacheDir:       cacheDir,
		maxClipSec:     30,
		candidateLimit: 200,
		log:            logger.With().Str("component", "footage").Logger(),
	}
}

// SetLimits overrides the provider clip-length cap and the cache candidate
// bound. Zero values keep the current setting.
func (c *Cascade) SetLimits(maxClipSec float64, candidateLimit int) {
	if maxClipSec > 0 {
		c.maxClipSec = maxClipSec
	}
	if candidateLimit > 0 {
		c.candidateLimit = candidateLimit
	}
}

// job carries the per-job dedup state threaded through every tier. A clip
// or library item used once in a job is never used again in the same job.
type job struct {
	orientation types.Orientation
	workspace   string
	usedClips   map[int64]bool
	usedLibrary map[uint]bool
}

func (j *job) usedClipIDs() []int64 {
	ids := make([]int64, 0, len(j.usedClips))
	for id := range j.usedClips {
		ids = append(ids, id)
	}
	return ids
}

// tier is one strategy level: (query, orientation, usedIds) → optional path.
type tier struct {
	name    string
	resolve func(ctx context.Context, j *job, query string, dest string) (bool, error)
}

// Resolve returns one local file path per scene, best effort, plus notices
// for scenes that exhausted every tier. It fails outright only when the
// provider credential is missing (checked before any network call) or when
// zero scenes resolve.
func (c *Cascade) Resolve(ctx context.Context, scenes []types.Scene, orientation types.Orientation, workspace string) ([]string, []Notice, error) {
	if err := c.provider.Ready(); err != nil {
		return nil, nil, fmt.Errorf("footage provider: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(c.cacheDir, "footage"), 0755); err != nil {
		return nil, nil, err
	}

	j := &job{
		orientation: orientation,
		workspace:   workspace,
		usedClips:   make(map[int64]bool),
		usedLibrary: make(map[uint]bool),
	}

	tiers := []tier{
		{name: "library", resolve: c.libraryTier},
		{name: "cache", resolve: c.cacheTier},
		{name: "provider", resolve: c.providerTier},
		{name: "cross-orientation", resolve: c.crossOrientationTier},
		{name: "emergency", resolve: c.emergencyTier},
	}

	var (
		paths   []string
		notices []Notice
	)
	for _, scene := range scenes {
		dest := filepath.Join(workspace, fmt.Sprintf("scene_%03d.mp4", scene.Index))
		resolved := false
		for _, t := range tiers {
			ok, err := t.resolve(ctx, j, scene.SearchTerms, dest)
			if err != nil {
				// Tier-internal failures are swallowed; the next tier runs.
				c.log.Warn().Err(err).Int("scene", scene.Index).Str("tier", t.name).Msg("tier failed")
				continue
			}
			if ok {
				c.log.Info().Int("scene", scene.Index).Str("tier", t.name).Str("query", scene.SearchTerms).Msg("footage resolved")
				paths = append(paths, dest)
				resolved = true
				break
			}
		}
		if !resolved {
			c.log.Warn().Int("scene", scene.Index).Str("query", scene.SearchTerms).Msg("all tiers exhausted, skipping scene")
			notices = append(notices, Notice{
				SceneIndex: scene.Index,
				Query:      scene.SearchTerms,
				Reason:     "no footage found in library, cache or provider",
			})
		}
	}

	if len(paths) == 0 {
		return nil, notices, ErrNoFootage
	}
	return paths, notices, nil
}

// libraryTier ranks curated uploads against the query and copies the best
// unused match into the workspace. Library files are copied, never linked,
// so a job can't hold a link into user-managed storage.
func (c *Cascade) libraryTier(ctx context.Context, j *job, query, dest string) (bool, error) {
	items, err := c.store.LibraryItems(string(j.orientation), c.candidateLimit)
	if err != nil {
		return false, err
	}

	terms := make([][]string, len(items))
	for i, item := range items {
		terms[i] = item.Tags
	}
	for _, idx := range match.Rank(query, terms, match.DefaultLimit) {
		item := items[idx]
		if j.usedLibrary[item.ID] {
			continue
		}
		if !fileExists(item.Path) {
			continue
		}
		if err := copyFile(item.Path, dest); err != nil {
			return false, err
		}
		j.usedLibrary[item.ID] = true
		return true, nil
	}
	return false, nil
}

// cacheTier ranks the durable clip cache for the requested orientation and
// links the best unused hit into the workspace, merging the query into the
// clip's stored terms.
func (c *Cascade) cacheTier(ctx context.Context, j *job, query, dest string) (bool, error) {
	clips, err := c.store.ClipsByOrientation(string(j.orientation), c.candidateLimit)
	if err != nil {
		return false, err
	}

	terms := make([][]string, len(clips))
	for i, clip := range clips {
		terms[i] = clip.Terms
	}
	for _, idx := range match.Rank(query, terms, match.DefaultLimit) {
		clip := clips[idx]
		if j.usedClips[clip.ProviderID] || !fileExists(clip.Path) {
			continue
		}
		if err := linkOrCopy(clip.Path, dest); err != nil {
			return false, err
		}
		j.usedClips[clip.ProviderID] = true
		clip.Terms = append(clip.Terms, match.Tokens(query)...)
		if _, err := c.store.SaveClipMergeTerms(&clip); err != nil {
			c.log.Warn().Err(err).Int64("provider_id", clip.ProviderID).Msg("term merge failed")
		}
		return true, nil
	}
	return false, nil
}

// providerTier searches the remote provider with progressively simpler
// queries and downloads the first unused result into the durable cache.
func (c *Cascade) providerTier(ctx context.Context, j *job, query, dest string) (bool, error) {
	for _, q := range searchQueries(query) {
		results, err := c.provider.Search(ctx, q, j.orientation, c.maxClipSec)
		if err != nil {
			c.log.Debug().Err(err).Str("query", q).Msg("provider search failed")
			continue
		}
		for _, res := range results {
			if j.usedClips[res.ID] {
				continue
			}
			ok, err := c.acquire(ctx, j, res, q, string(j.orientation), dest)
			if err != nil {
				c.log.Debug().Err(err).Int64("provider_id", res.ID).Msg("acquire failed")
				continue
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// crossOrientationTier relaxes both the query and, if needed, the
// orientation: any cached clip not yet used in this job qualifies.
func (c *Cascade) crossOrientationTier(ctx context.Context, j *job, query, dest string) (bool, error) {
	for _, o := range []types.Orientation{j.orientation, j.orientation.Opposite()} {
		clips, err := c.store.ClipsExcluding(string(o), j.usedClipIDs(), c.candidateLimit)
		if err != nil {
			return false, err
		}
		for _, clip := range clips {
			if j.usedClips[clip.ProviderID] || !fileExists(clip.Path) {
				continue
			}
			if err := linkOrCopy(clip.Path, dest); err != nil {
				continue
			}
			j.usedClips[clip.ProviderID] = true
			return true, nil
		}
	}
	return false, nil
}

// emergencyTier forces fresh downloads for generic terms, ignoring
// orientation, until one succeeds.
func (c *Cascade) emergencyTier(ctx context.Context, j *job, query, dest string) (bool, error) {
	for _, term := range emergencyTerms {
		results, err := c.provider.Search(ctx, term, "", c.maxClipSec)
		if err != nil {
			continue
		}
		for _, res := range results {
			if j.usedClips[res.ID] {
				continue
			}
			ok, err := c.acquire(ctx, j, res, term, orientationOf(res.Width, res.Height), dest)
			if err != nil {
				continue
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// acquire materializes a provider result into the workspace. A clip already
// cached with a live path is reused instead of re-downloaded; otherwise it
// is downloaded into the durable cache first and only persisted after the
// download completed.
func (c *Cascade) acquire(ctx context.Context, j *job, res SearchResult, query, orientation, dest string) (bool, error) {
	existing, err := c.store.ClipByProviderID(res.ID)
	if err != nil {
		return false, err
	}

	cached := ""
	if existing != nil && fileExists(existing.Path) {
		cached = existing.Path
	} else {
		cached = filepath.Join(c.cacheDir, "footage", fmt.Sprintf("%d.mp4", res.ID))
		if err := c.provider.Download(ctx, res, cached); err != nil {
			return false, err
		}
	}

	if _, err := c.store.SaveClipMergeTerms(&store.FootageClip{
		ProviderID:  res.ID,
		Path:        cached,
		Terms:       match.Tokens(query),
		DurationSec: res.DurationSec,
		Orientation: orientation,
		Quality:     res.Quality,
		Width:       res.Width,
		Height:      res.Height,
	}); err != nil {
		return false, err
	}

	if err := linkOrCopy(cached, dest); err != nil {
		return false, err
	}
	j.usedClips[res.ID] = true
	return true, nil
}

// searchQueries expands a scene query into the provider attempt sequence:
// the original phrase, a two-word stop-word-stripped simplification, up to
// three significant words on their own, then the broad fallback terms.
func searchQueries(query string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q != "" && !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}

	add(query)

	significant := significantWords(query)
	if len(significant) >= 2 {
		add(significant[0] + " " + significant[1])
	}
	for i, w := range significant {
		if i == 3 {
			break
		}
		add(w)
	}
	for _, t := range broadFallbackTerms {
		add(t)
	}
	return out
}

func significantWords(query string) []string {
	var out []string
	for _, tok := range match.Tokens(query) {
		if !stopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func orientationOf(w, h int) string {
	if h > w {
		return string(types.OrientationPortrait)
	}
	return string(types.OrientationLandscape)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// linkOrCopy hard-links src into the workspace and falls back to a copy
// when the filesystem refuses the link.
func linkOrCopy(src, dest string) error {
	os.Remove(dest)
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	return copyFile(src, dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
