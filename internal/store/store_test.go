package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := OpenDB(db)
	require.NoError(t, err)
	return s
}

func TestClipByProviderIDMiss(t *testing.T) {
	s := testStore(t)
	clip, err := s.ClipByProviderID(12345)
	require.NoError(t, err)
	assert.Nil(t, clip, "a cache miss is nil, not an error")
}

func TestSaveClipMergeTermsInsert(t *testing.T) {
	s := testStore(t)

	saved, err := s.SaveClipMergeTerms(&FootageClip{
		ProviderID:  101,
		Path:        "/cache/landscape/101.mp4",
		Terms:       []string{"Forest", "river", "forest"},
		Orientation: "landscape",
		DurationSec: 12.4,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"forest", "river"}, saved.Terms, "terms are lowercased and deduplicated")

	got, err := s.ClipByProviderID(101)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/cache/landscape/101.mp4", got.Path)
}

func TestSaveClipMergeTermsUnion(t *testing.T) {
	s := testStore(t)

	_, err := s.SaveClipMergeTerms(&FootageClip{
		ProviderID: 7, Path: "/cache/7.mp4", Terms: []string{"ocean", "waves"},
	})
	require.NoError(t, err)

	merged, err := s.SaveClipMergeTerms(&FootageClip{
		ProviderID: 7, Path: "/other/7.mp4", Terms: []string{"beach", "ocean"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "ocean", "waves"}, merged.Terms)
	assert.Equal(t, "/cache/7.mp4", merged.Path, "a downloaded clip is never re-pointed")
}

func TestSaveClipMergeTermsCommutative(t *testing.T) {
	s := testStore(t)

	setA := []string{"city", "night"}
	setB := []string{"skyline", "city"}

	_, err := s.SaveClipMergeTerms(&FootageClip{ProviderID: 1, Path: "/a.mp4", Terms: setA})
	require.NoError(t, err)
	ab, err := s.SaveClipMergeTerms(&FootageClip{ProviderID: 1, Path: "/a.mp4", Terms: setB})
	require.NoError(t, err)

	_, err = s.SaveClipMergeTerms(&FootageClip{ProviderID: 2, Path: "/b.mp4", Terms: setB})
	require.NoError(t, err)
	ba, err := s.SaveClipMergeTerms(&FootageClip{ProviderID: 2, Path: "/b.mp4", Terms: setA})
	require.NoError(t, err)

	assert.Equal(t, ab.Terms, ba.Terms, "merge order must not matter")
}

func TestSaveClipMergeTermsConflictingInsertMerges(t *testing.T) {
	s := testStore(t)

	// Another job's insert lands first, bypassing the merge path.
	require.NoError(t, s.db.Create(&FootageClip{
		ProviderID: 42, Path: "/cache/42.mp4", Terms: []string{"rain"},
	}).Error)

	merged, err := s.SaveClipMergeTerms(&FootageClip{
		ProviderID: 42, Path: "/late/42.mp4", Terms: []string{"storm"},
	})
	require.NoError(t, err, "a conflicting insert resolves to a merge, not an error")
	assert.Equal(t, []string{"rain", "storm"}, merged.Terms)
	assert.Equal(t, "/cache/42.mp4", merged.Path)

	var count int64
	require.NoError(t, s.db.Model(&FootageClip{}).Where("provider_id = ?", 42).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestClipsExcluding(t *testing.T) {
	s := testStore(t)

	for id, orient := range map[int64]string{10: "landscape", 11: "landscape", 12: "portrait"} {
		_, err := s.SaveClipMergeTerms(&FootageClip{
			ProviderID: id, Path: "/c.mp4", Orientation: orient, Terms: []string{"x"},
		})
		require.NoError(t, err)
	}

	clips, err := s.ClipsExcluding("landscape", []int64{10}, 0)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, int64(11), clips[0].ProviderID)

	// Empty orientation matches everything.
	clips, err = s.ClipsExcluding("", nil, 0)
	require.NoError(t, err)
	assert.Len(t, clips, 3)
}

func TestVoiceoverRoundTrip(t *testing.T) {
	s := testStore(t)

	miss, err := s.VoiceoverByFingerprint("abc")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, s.SaveVoiceover(&VoiceoverEntry{
		Fingerprint: "abc", Language: "en", Path: "/cache/voice/abc.mp3", DurationSec: 31.2,
	}))

	hit, err := s.VoiceoverByFingerprint("abc")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "/cache/voice/abc.mp3", hit.Path)
}

func TestSaveVoiceoverDuplicateIsHit(t *testing.T) {
	s := testStore(t)

	first := &VoiceoverEntry{Fingerprint: "dup", Language: "en", Path: "/first.mp3"}
	require.NoError(t, s.SaveVoiceover(first))

	second := &VoiceoverEntry{Fingerprint: "dup", Language: "en", Path: "/second.mp3"}
	require.NoError(t, s.SaveVoiceover(second), "a racing insert resolves to the existing row")
	assert.Equal(t, "/first.mp3", second.Path)
}

func TestMusicByMood(t *testing.T) {
	s := testStore(t)

	miss, err := s.MusicByMood("chill")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, s.SaveMusicTrack(&MusicTrack{Mood: "chill", Path: "/cache/music/chill.mp3"}))

	hit, err := s.MusicByMood("chill")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "/cache/music/chill.mp3", hit.Path)
}

func TestGenerationLifecycle(t *testing.T) {
	s := testStore(t)

	rec := &GenerationRecord{ID: "job1", Prompt: "a calm forest"}
	require.NoError(t, s.CreateGeneration(rec))
	assert.Equal(t, StatusRunning, rec.Status)

	require.NoError(t, s.UpdateGenerationStage("job1", "footage"))
	require.NoError(t, s.FinishGeneration("job1", "/out/video_job1.mp4", nil))

	var got GenerationRecord
	require.NoError(t, s.db.First(&got, "id = ?", "job1").Error)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, "footage", got.Stage)
	assert.Equal(t, "/out/video_job1.mp4", got.ArtifactPath)
}

func TestFinishGenerationFailure(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateGeneration(&GenerationRecord{ID: "job2", Prompt: "x"}))
	require.NoError(t, s.FinishGeneration("job2", "", errors.New("no footage resolved")))

	var got GenerationRecord
	require.NoError(t, s.db.First(&got, "id = ?", "job2").Error)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "no footage resolved", got.Error)
}

func TestLibraryItems(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveLibraryItem(&LibraryItem{
		Title: "City drone shot", Path: "/lib/city.mp4",
		Tags: []string{"City", "drone", "city"}, Orientation: "landscape",
	}))

	items, err := s.LibraryItems("landscape", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"city", "drone"}, items[0].Tags)

	none, err := s.LibraryItems("portrait", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
