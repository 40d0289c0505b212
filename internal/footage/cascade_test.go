package footage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhielesmana/promptweaver/internal/store"
	"github.com/adhielesmana/promptweaver/internal/types"
)

// fakeStore keeps everything in memory with the same merge semantics as the
// durable store.
type fakeStore struct {
	clips   map[int64]*store.FootageClip
	library []store.LibraryItem
	merges  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{clips: make(map[int64]*store.FootageClip)}
}

func (f *fakeStore) ClipByProviderID(id int64) (*store.FootageClip, error) {
	if c, ok := f.clips[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) SaveClipMergeTerms(clip *store.FootageClip) (*store.FootageClip, error) {
	f.merges++
	if existing, ok := f.clips[clip.ProviderID]; ok {
		seen := make(map[string]bool)
		var merged []string
		for _, t := range append(existing.Terms, clip.Terms...) {
			if !seen[t] {
				seen[t] = true
				merged = append(merged, t)
			}
		}
		existing.Terms = merged
		cp := *existing
		return &cp, nil
	}
	cp := *clip
	f.clips[clip.ProviderID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) ClipsByOrientation(orientation string, limit int) ([]store.FootageClip, error) {
	var out []store.FootageClip
	for _, c := range f.clips {
		if orientation == "" || c.Orientation == orientation {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) ClipsExcluding(orientation string, used []int64, limit int) ([]store.FootageClip, error) {
	excluded := make(map[int64]bool)
	for _, id := range used {
		excluded[id] = true
	}
	var out []store.FootageClip
	for _, c := range f.clips {
		if excluded[c.ProviderID] {
			continue
		}
		if orientation == "" || c.Orientation == orientation {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) LibraryItems(orientation string, limit int) ([]store.LibraryItem, error) {
	var out []store.LibraryItem
	for _, it := range f.library {
		if orientation == "" || it.Orientation == orientation {
			out = append(out, it)
		}
	}
	return out, nil
}

// fakeProvider serves canned results and counts remote traffic.
type fakeProvider struct {
	ready     error
	results   map[string][]SearchResult
	searches  int
	downloads int
	failAll   bool
}

func (f *fakeProvider) Ready() error { return f.ready }

func (f *fakeProvider) Search(ctx context.Context, query string, o types.Orientation, maxDur float64) ([]SearchResult, error) {
	f.searches++
	if f.failAll {
		return nil, errors.New("provider unavailable")
	}
	return f.results[query], nil
}

func (f *fakeProvider) Download(ctx context.Context, res SearchResult, dest string) error {
	f.downloads++
	if f.failAll {
		return errors.New("provider unavailable")
	}
	return os.WriteFile(dest, []byte("clip"), 0644)
}

func writeTempClip(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0644))
	return path
}

func newTestCascade(t *testing.T, st Store, p Provider) (*Cascade, string) {
	t.Helper()
	workspace := t.TempDir()
	c := NewCascade(st, p, t.TempDir(), zerolog.Nop())
	return c, workspace
}

func TestMissingAPIKeyBeforeAnyNetworkCall(t *testing.T) {
	provider := &fakeProvider{ready: ErrMissingAPIKey}
	c, workspace := newTestCascade(t, newFakeStore(), provider)

	_, _, err := c.Resolve(context.Background(), []types.Scene{{Index: 0, SearchTerms: "calm forest"}},
		types.OrientationLandscape, workspace)

	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, provider.searches, "no network call may precede the credential check")
}

func TestLibraryTierWinsBeforeProvider(t *testing.T) {
	st := newFakeStore()
	libDir := t.TempDir()
	st.library = []store.LibraryItem{{
		ID:          1,
		Title:       "forest walk",
		Path:        writeTempClip(t, libDir, "forest.mp4"),
		Tags:        []string{"forest", "trees"},
		Orientation: "landscape",
	}}
	provider := &fakeProvider{}
	c, workspace := newTestCascade(t, st, provider)

	paths, notices, err := c.Resolve(context.Background(),
		[]types.Scene{{Index: 0, SearchTerms: "calm forest"}},
		types.OrientationLandscape, workspace)

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Empty(t, notices)
	assert.Zero(t, provider.searches, "library hit must short-circuit remote search")
	assert.FileExists(t, paths[0])
}

func TestCacheHitNeverRedownloadsAndMergesTerms(t *testing.T) {
	st := newFakeStore()
	cacheDir := t.TempDir()
	st.clips[42] = &store.FootageClip{
		ProviderID:  42,
		Path:        writeTempClip(t, cacheDir, "42.mp4"),
		Terms:       []string{"forest"},
		Orientation: "landscape",
	}
	provider := &fakeProvider{}
	c, workspace := newTestCascade(t, st, provider)

	paths, _, err := c.Resolve(context.Background(),
		[]types.Scene{{Index: 0, SearchTerms: "forest dawn"}},
		types.OrientationLandscape, workspace)

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Zero(t, provider.downloads, "cached clip must not be re-downloaded")
	assert.Contains(t, st.clips[42].Terms, "dawn", "query terms must merge into the cached record")
	assert.Contains(t, st.clips[42].Terms, "forest")
}

func TestProviderTierDownloadsAndPersists(t *testing.T) {
	st := newFakeStore()
	provider := &fakeProvider{results: map[string][]SearchResult{
		"city lights": {{ID: 7, Width: 1920, Height: 1080, DurationSec: 12, Quality: "hd", Link: "http://x/7"}},
	}}
	c, workspace := newTestCascade(t, st, provider)

	paths, _, err := c.Resolve(context.Background(),
		[]types.Scene{{Index: 0, SearchTerms: "city lights"}},
		types.OrientationLandscape, workspace)

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 1, provider.downloads)
	require.NotNil(t, st.clips[7], "downloaded clip must persist to the durable cache")
	assert.FileExists(t, st.clips[7].Path)
}

func TestNoDuplicateProviderIDsWithinOneJob(t *testing.T) {
	st := newFakeStore()
	results := []SearchResult{
		{ID: 1, Width: 1920, Height: 1080, DurationSec: 10, Link: "http://x/1"},
		{ID: 2, Width: 1920, Height: 1080, DurationSec: 10, Link: "http://x/2"},
	}
	provider := &fakeProvider{results: map[string][]SearchResult{
		"sky": results, "blue sky": results,
	}}
	c, workspace := newTestCascade(t, st, provider)

	paths, _, err := c.Resolve(context.Background(), []types.Scene{
		{Index: 0, SearchTerms: "blue sky"},
		{Index: 1, SearchTerms: "blue sky"},
	}, types.OrientationLandscape, workspace)

	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Len(t, st.clips, 2, "each scene must resolve a distinct provider ID")
}

func TestPartialFailureRecordsNoticeAndContinues(t *testing.T) {
	st := newFakeStore()
	libDir := t.TempDir()
	st.library = []store.LibraryItem{{
		ID:          1,
		Path:        writeTempClip(t, libDir, "forest.mp4"),
		Tags:        []string{"forest"},
		Orientation: "landscape",
	}}
	// Provider is up but finds nothing, and the cache has nothing either:
	// the second scene exhausts all five tiers.
	provider := &fakeProvider{results: map[string][]SearchResult{}}
	c, workspace := newTestCascade(t, st, provider)

	paths, notices, err := c.Resolve(context.Background(), []types.Scene{
		{Index: 0, SearchTerms: "calm forest"},
		{Index: 1, SearchTerms: "lunar eclipse"},
	}, types.OrientationLandscape, workspace)

	require.NoError(t, err, "job must survive a single failed scene")
	assert.Len(t, paths, 1)
	require.Len(t, notices, 1)
	assert.Equal(t, 1, notices[0].SceneIndex)
}

func TestAllScenesFailedIsFatal(t *testing.T) {
	provider := &fakeProvider{failAll: true}
	c, workspace := newTestCascade(t, newFakeStore(), provider)

	_, notices, err := c.Resolve(context.Background(),
		[]types.Scene{{Index: 0, SearchTerms: "calm forest"}},
		types.OrientationLandscape, workspace)

	require.ErrorIs(t, err, ErrNoFootage)
	assert.Len(t, notices, 1)
}

func TestCrossOrientationTierReusesOppositeCache(t *testing.T) {
	st := newFakeStore()
	cacheDir := t.TempDir()
	// Only a portrait clip is cached, and the provider finds nothing.
	st.clips[9] = &store.FootageClip{
		ProviderID:  9,
		Path:        writeTempClip(t, cacheDir, "9.mp4"),
		Terms:       []string{"waterfall"},
		Orientation: "portrait",
	}
	provider := &fakeProvider{results: map[string][]SearchResult{}}
	c, workspace := newTestCascade(t, st, provider)

	paths, notices, err := c.Resolve(context.Background(),
		[]types.Scene{{Index: 0, SearchTerms: "desert dunes"}},
		types.OrientationLandscape, workspace)

	require.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Empty(t, notices)
}

func TestSearchQueriesExpansion(t *testing.T) {
	qs := searchQueries("a calm forest at dawn")
	require.NotEmpty(t, qs)
	assert.Equal(t, "a calm forest at dawn", qs[0])
	assert.Equal(t, "calm forest", qs[1], "two-word simplification comes second")
	assert.Contains(t, qs, "calm")
	assert.Contains(t, qs, "forest")
	assert.Contains(t, qs, "dawn")
	for _, broad := range broadFallbackTerms {
		assert.Contains(t, qs, broad)
	}
}
