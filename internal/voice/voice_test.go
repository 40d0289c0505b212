package voice

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhielesmana/promptweaver/internal/store"
)

type memStore struct {
	entries map[string]*store.VoiceoverEntry
}

func (m *memStore) VoiceoverByFingerprint(fp string) (*store.VoiceoverEntry, error) {
	if e, ok := m.entries[fp]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) SaveVoiceover(entry *store.VoiceoverEntry) error {
	cp := *entry
	m.entries[entry.Fingerprint] = &cp
	return nil
}

type countingSynth struct {
	calls int
	audio string
}

func (c *countingSynth) Synthesize(ctx context.Context, text, language, dest string) error {
	c.calls++
	return os.WriteFile(dest, []byte(c.audio), 0644)
}

func newTestService(t *testing.T, synth Synthesizer) *Service {
	t.Helper()
	svc := NewService(&memStore{entries: make(map[string]*store.VoiceoverEntry)}, synth, t.TempDir(), zerolog.Nop())
	svc.probe = func(ctx context.Context, path string) (float64, error) { return 12.5, nil }
	return svc
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("a calm forest at dawn", "en")
	b := Fingerprint("a calm forest at dawn", "en")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("a calm forest at dawn", "de"))
	assert.NotEqual(t, a, Fingerprint("a stormy coast at dusk", "en"))
}

func TestFingerprintTruncatesLongText(t *testing.T) {
	long := strings.Repeat("word ", 2000) // 10000 runes
	truncated := long[:maxTextRunes]
	assert.Equal(t, Fingerprint(long, "en"), Fingerprint(truncated, "en"))
}

func TestNarrateCacheHitSkipsSynthesis(t *testing.T) {
	synth := &countingSynth{audio: "audio-bytes"}
	svc := newTestService(t, synth)
	ctx := context.Background()

	ws1, ws2 := t.TempDir(), t.TempDir()
	path1, dur1, err := svc.Narrate(ctx, "hello forest", "en", ws1)
	require.NoError(t, err)
	assert.Equal(t, 1, synth.calls)
	assert.InDelta(t, 12.5, dur1, 0.001)

	path2, dur2, err := svc.Narrate(ctx, "hello forest", "en", ws2)
	require.NoError(t, err)
	assert.Equal(t, 1, synth.calls, "identical (text, language) must not re-invoke synthesis")
	assert.Equal(t, dur1, dur2)

	b1, err := os.ReadFile(path1)
	require.NoError(t, err)
	b2, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "cached audio must be byte-identical")
}

func TestNarrateDifferentLanguageMisses(t *testing.T) {
	synth := &countingSynth{audio: "audio"}
	svc := newTestService(t, synth)
	ctx := context.Background()

	_, _, err := svc.Narrate(ctx, "hello forest", "en", t.TempDir())
	require.NoError(t, err)
	_, _, err = svc.Narrate(ctx, "hello forest", "de", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, synth.calls)
}

func TestSynthesizeStopsSleepingAfterFinalAttempt(t *testing.T) {
	var slept []time.Duration
	synth := &CommandSynthesizer{
		command: "promptweaver-no-such-tts",
		retries: 3,
		sleep:   func(d time.Duration) { slept = append(slept, d) },
	}

	err := synth.Synthesize(context.Background(), "hello", "en", filepath.Join(t.TempDir(), "out.mp3"))
	require.Error(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept,
		"the last failed attempt returns immediately instead of backing off")
}
