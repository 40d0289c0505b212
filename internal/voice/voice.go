// Package voice synthesizes narration through an external TTS command and
// caches the result by a fingerprint of (text, language) so identical
// narration never re-invokes synthesis.
package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/ffmpeg"
	"github.com/adhielesmana/promptweaver/internal/store"
)

// maxTextRunes bounds the text fed into the fingerprint and the
// synthesizer. Anything longer is truncated first.
const maxTextRunes = 4096

// Fingerprint hashes (truncated narration text, language) into the
// voiceover cache key.
func Fingerprint(text, language string) string {
	runes := []rune(text)
	if len(runes) > maxTextRunes {
		runes = runes[:maxTextRunes]
	}
	sum := sha256.Sum256([]byte(string(runes) + "|" + language))
	return hex.EncodeToString(sum[:])
}

// Synthesizer turns text into an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, dest string) error
}

// voices maps language codes to the synthesis voice used for them.
var voices = map[string]string{
	"en": "en-US-GuyNeural",
	"de": "de-DE-ConradNeural",
	"es": "es-ES-AlvaroNeural",
	"fr": "fr-FR-HenriNeural",
	"id": "id-ID-ArdiNeural",
}

// CommandSynthesizer shells out to a TTS engine. TTS_COMMAND overrides the
// binary; without it edge-tts is used. Transient failures are retried.
type CommandSynthesizer struct {
	command string
	retries int
	sleep   func(time.Duration)
}

// NewCommandSynthesizer picks the engine from the environment.
func NewCommandSynthesizer() *CommandSynthesizer {
	return &CommandSynthesizer{
		command: os.Getenv("TTS_COMMAND"),
		retries: 3,
		sleep:   time.Sleep,
	}
}

// Synthesize renders text to dest, retrying with backoff.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text, language, dest string) error {
	runes := []rune(text)
	if len(runes) > maxTextRunes {
		text = string(runes[:maxTextRunes])
	}

	voiceName, ok := voices[language]
	if !ok {
		voiceName = voices["en"]
	}

	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		var cmd *exec.Cmd
		switch s.command {
		case "":
			cmd = exec.CommandContext(ctx, "edge-tts",
				"--voice", voiceName,
				"--text", text,
				"--write-media", dest,
			)
		default:
			cmd = exec.CommandContext(ctx, s.command,
				"--text", text,
				"--voice", voiceName,
				"--output", dest,
			)
		}
		if err = cmd.Run(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == s.retries {
			break
		}
		s.sleep(time.Duration(attempt) * 2 * time.Second)
	}
	return fmt.Errorf("speech synthesis failed after %d attempts: %w", s.retries, err)
}

// Store is the voiceover-cache surface the service needs.
type Store interface {
	VoiceoverByFingerprint(fp string) (*store.VoiceoverEntry, error)
	SaveVoiceover(entry *store.VoiceoverEntry) error
}

// Service is the narration service: fingerprint cache in front of the
// synthesizer.
type Service struct {
	store    Store
	synth    Synthesizer
	cacheDir string
	probe    func(ctx context.Context, path string) (float64, error)
	log      zerolog.Logger
}

// NewService wires the narration cache. cacheDir persists synthesized audio
// across jobs.
func NewService(st Store, synth Synthesizer, cacheDir string, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		synth:    synth,
		cacheDir: cacheDir,
		probe:    ffmpeg.ProbeDuration,
		log:      logger.With().Str("component", "voice").Logger(),
	}
}

// Narrate returns a workspace-local narration file and its duration. A
// cache hit copies the stored audio and returns immediately; a miss
// synthesizes, persists under the fingerprint, then copies. The cache row
// is only written after synthesis succeeded locally.
func (s *Service) Narrate(ctx context.Context, text, language, workspace string) (string, float64, error) {
	fp := Fingerprint(text, language)
	dest := filepath.Join(workspace, "narration.mp3")

	if entry, err := s.store.VoiceoverByFingerprint(fp); err == nil && entry != nil {
		if _, statErr := os.Stat(entry.Path); statErr == nil {
			if err := copyFile(entry.Path, dest); err == nil {
				s.log.Info().Str("fingerprint", fp[:12]).Msg("voiceover cache hit")
				return dest, entry.DurationSec, nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Join(s.cacheDir, "voice"), 0755); err != nil {
		return "", 0, err
	}
	cached := filepath.Join(s.cacheDir, "voice", fp+".mp3")
	if err := s.synth.Synthesize(ctx, text, language, cached); err != nil {
		return "", 0, err
	}

	dur, err := s.probe(ctx, cached)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not measure narration duration")
	}

	entry := &store.VoiceoverEntry{
		Fingerprint: fp,
		Language:    language,
		Path:        cached,
		DurationSec: dur,
	}
	if err := s.store.SaveVoiceover(entry); err != nil {
		s.log.Warn().Err(err).Msg("voiceover cache write failed")
	}

	if err := copyFile(cached, dest); err != nil {
		return "", 0, err
	}
	return dest, dur, nil
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
