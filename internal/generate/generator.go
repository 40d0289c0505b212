// Package generate is the orchestrator: it sequences script writing,
// narration, footage acquisition, caption timing and composition into one
// generation run, streams progress events, applies per-stage recovery, and
// guarantees the job workspace is cleaned up.
package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/captions"
	"github.com/adhielesmana/promptweaver/internal/compose"
	"github.com/adhielesmana/promptweaver/internal/footage"
	"github.com/adhielesmana/promptweaver/internal/store"
	"github.com/adhielesmana/promptweaver/internal/types"
)

// ScriptWriter produces the structured script for a prompt.
type ScriptWriter interface {
	Run(ctx context.Context, prompt string, opts types.Options) (*types.Script, error)
}

// FootageResolver acquires one local clip per scene.
type FootageResolver interface {
	Resolve(ctx context.Context, scenes []types.Scene, orientation types.Orientation, workspace string) ([]string, []footage.Notice, error)
}

// VoiceService synthesizes (or recalls) narration audio.
type VoiceService interface {
	Narrate(ctx context.Context, text, language, workspace string) (path string, durationSec float64, err error)
}

// MusicService resolves a mood to a local track.
type MusicService interface {
	Track(ctx context.Context, mood string) (string, error)
}

// Composer assembles clips, captions and audio into the artifact.
type Composer interface {
	Assemble(ctx context.Context, in compose.Input, progress compose.Progress) (string, error)
}

// Recorder persists run status rows. It may be nil-like (no-op) in tests.
type Recorder interface {
	CreateGeneration(rec *store.GenerationRecord) error
	UpdateGenerationStage(id, stage string) error
	FinishGeneration(id, artifactPath string, runErr error) error
}

// Generator owns a job end to end. Its only public contract is Generate.
type Generator struct {
	script     ScriptWriter
	footage    FootageResolver
	voice      VoiceService
	music      MusicService
	composer   Composer
	recorder   Recorder
	outputRoot string
	log        zerolog.Logger
}

// New wires the orchestrator. outputRoot holds per-job workspaces and the
// finished artifacts.
func New(script ScriptWriter, footageRes FootageResolver, voice VoiceService, music MusicService, composer Composer, recorder Recorder, outputRoot string, logger zerolog.Logger) *Generator {
	return &Generator{
		script:     script,
		footage:    footageRes,
		voice:      voice,
		music:      music,
		composer:   composer,
		recorder:   recorder,
		outputRoot: outputRoot,
		log:        logger.With().Str("component", "generate").Logger(),
	}
}

// Result carries the artifact plus the degradations the run accepted.
type Result struct {
	ArtifactPath   string
	Title          string
	FootageNotices []footage.Notice
	Silent         bool // narration was requested but synthesis failed
	NoMusic        bool // music was requested but could not be fetched
}

// Generate runs one job. The returned artifact lives under the output
// root; the job's private workspace is always removed, on success and on
// failure alike.
func (g *Generator) Generate(ctx context.Context, opts types.Options, progress ProgressFunc) (*Result, error) {
	opts.Normalize()
	emit := func(stage Stage, format string, args ...any) {
		if progress != nil {
			progress(Event{Stage: stage, Message: fmt.Sprintf(format, args...)})
		}
	}

	jobID := uuid.NewString()[:8]
	logger := g.log.With().Str("job", jobID).Logger()

	workspace := filepath.Join(g.outputRoot, "jobs", jobID)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	g.record(jobID, opts.Prompt)

	res, err := g.run(ctx, jobID, workspace, opts, emit, logger)
	if err != nil {
		logger.Error().Err(err).Msg("generation failed")
		g.finish(jobID, "", err)
		emit(StageError, "generation failed: %v", err)
		return nil, err
	}

	g.finish(jobID, res.ArtifactPath, nil)
	emit(StageComplete, "video ready: %s", res.ArtifactPath)
	return res, nil
}

func (g *Generator) run(ctx context.Context, jobID, workspace string, opts types.Options, emit func(Stage, string, ...any), logger zerolog.Logger) (*Result, error) {
	res := &Result{}

	// Script.
	g.stage(jobID, StageScript)
	script, err := g.script.Run(ctx, opts.Prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	res.Title = script.Title
	emit(StageScript, "script ready: %q, %d scenes", script.Title, len(script.Scenes))

	// Narration. Synthesis failure is non-fatal: the job proceeds silent
	// and the target duration stays at the requested value.
	targetDur := opts.DurationSec
	voicePath, voiceDur := "", 0.0
	if opts.IncludeSpeech {
		g.stage(jobID, StageVoice)
		voicePath, voiceDur, err = g.voice.Narrate(ctx, script.Narration, opts.Language, workspace)
		if err != nil {
			logger.Warn().Err(err).Msg("narration failed, continuing silent")
			res.Silent = true
			voicePath, voiceDur = "", 0
			emit(StageVoice, "narration unavailable, continuing without speech")
		} else {
			if voiceDur+1 > targetDur {
				targetDur = voiceDur + 1
			}
			emit(StageVoice, "voice ready (%.1fs)", voiceDur)
		}
	}

	// Footage.
	g.stage(jobID, StageFootage)
	clipPaths, notices, err := g.footage.Resolve(ctx, script.Scenes, opts.Orientation, workspace)
	if err != nil {
		return nil, fmt.Errorf("acquire footage: %w", err)
	}
	res.FootageNotices = notices
	emit(StageFootage, "footage resolved: %d/%d scenes", len(clipPaths), len(script.Scenes))

	// Captions. Timed from narration when it exists, from scene captions
	// otherwise.
	var track *captions.Track
	if voicePath != "" {
		track = captions.Build(script.Narration, targetDur, opts.Orientation)
	} else {
		track = captions.FromScenes(script.Scenes, targetDur, opts.Orientation)
	}
	subtitlePath, err := track.WriteFile(filepath.Join(workspace, "captions.ass"))
	if err != nil {
		logger.Warn().Err(err).Msg("caption track write failed, continuing without captions")
		subtitlePath = ""
	}

	// Music. Fetch failure is non-fatal.
	musicPath := ""
	if opts.MusicMood != "" && opts.MusicMood != "none" {
		musicPath, err = g.music.Track(ctx, opts.MusicMood)
		if err != nil {
			logger.Warn().Err(err).Str("mood", opts.MusicMood).Msg("music unavailable, continuing without music")
			res.NoMusic = true
			musicPath = ""
		}
	}

	// Composition.
	artifact, err := g.composer.Assemble(ctx, compose.Input{
		ClipPaths:         clipPaths,
		SubtitlePath:      subtitlePath,
		Style:             opts.Style,
		VoicePath:         voicePath,
		VoiceDurationSec:  voiceDur,
		MusicPath:         musicPath,
		MusicVolume:       opts.MusicVolume,
		TargetDurationSec: targetDur,
		Orientation:       opts.Orientation,
		Workspace:         workspace,
	}, func(stage string, pct float64) {
		switch stage {
		case "encode":
			g.stage(jobID, StageEncode)
			emit(StageEncode, "clips encoded")
		case "merge":
			g.stage(jobID, StageMerge)
			emit(StageMerge, "clips merged")
		case "render":
			emit(StageRender, "rendering %.0f%%", pct)
		case "finalize":
			g.stage(jobID, StageFinalize)
			emit(StageFinalize, "audio mixed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("compose video: %w", err)
	}

	// The workspace is removed on return, so the artifact moves out first.
	finalPath := filepath.Join(g.outputRoot, fmt.Sprintf("video_%s.mp4", jobID))
	if err := moveFile(artifact, finalPath); err != nil {
		return nil, fmt.Errorf("finalize artifact: %w", err)
	}
	res.ArtifactPath = finalPath
	return res, nil
}

func (g *Generator) record(jobID, prompt string) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.CreateGeneration(&store.GenerationRecord{ID: jobID, Prompt: prompt}); err != nil {
		g.log.Warn().Err(err).Msg("could not record generation start")
	}
}

func (g *Generator) stage(jobID string, stage Stage) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.UpdateGenerationStage(jobID, string(stage)); err != nil {
		g.log.Warn().Err(err).Msg("could not record stage")
	}
}

func (g *Generator) finish(jobID, artifact string, runErr error) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.FinishGeneration(jobID, artifact, runErr); err != nil {
		g.log.Warn().Err(err).Msg("could not record completion")
	}
}

// moveFile renames and falls back to copy+remove across filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
