// Package compose assembles acquired clips, narration, music and captions
// into the final video through a sequence of ffmpeg invocations: parallel
// per-clip transforms, a stream-copy concat, one styled render pass with
// caption burn-in, duration reconciliation, and the audio mix.
package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adhielesmana/promptweaver/internal/ffmpeg"
	"github.com/adhielesmana/promptweaver/internal/types"
)

// Input is everything the pipeline needs for one assembly.
type Input struct {
	ClipPaths         []string
	SubtitlePath      string // optional ASS track
	Style             string
	VoicePath         string // optional narration audio
	VoiceDurationSec  float64
	MusicPath         string // optional background track
	MusicVolume       float64
	TargetDurationSec float64
	Orientation       types.Orientation
	Workspace         string
}

// Config tunes the encoder and the reconciliation threshold.
type Config struct {
	FPS            int
	Preset         string
	CRF            int
	ExtendSlackSec float64
}

// DefaultConfig matches the values the pipeline ships with.
func DefaultConfig() Config {
	return Config{FPS: 30, Preset: "fast", CRF: 22, ExtendSlackSec: 0.5}
}

// Pipeline runs the composition stages.
type Pipeline struct {
	cfg Config
	log zerolog.Logger
}

// NewPipeline builds a pipeline with the given encoder settings.
func NewPipeline(cfg Config, logger zerolog.Logger) *Pipeline {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Preset == "" {
		cfg.Preset = "fast"
	}
	if cfg.CRF <= 0 {
		cfg.CRF = 22
	}
	if cfg.ExtendSlackSec <= 0 {
		cfg.ExtendSlackSec = 0.5
	}
	return &Pipeline{cfg: cfg, log: logger.With().Str("component", "compose").Logger()}
}

// Progress reports a named composition stage and its completion percentage.
type Progress func(stage string, percent float64)

// Assemble produces the final artifact inside the workspace and returns its
// path. Stages run strictly in order; per-clip transforms fan out and join
// before concatenation starts.
func (p *Pipeline) Assemble(ctx context.Context, in Input, progress Progress) (string, error) {
	if len(in.ClipPaths) == 0 {
		return "", fmt.Errorf("no clips to compose")
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	transformed, err := p.transformClips(ctx, in)
	if err != nil {
		return "", fmt.Errorf("transform clips: %w", err)
	}
	progress("encode", 100)

	merged, err := p.concat(ctx, transformed, in.Workspace)
	if err != nil {
		return "", fmt.Errorf("concatenate clips: %w", err)
	}
	progress("merge", 100)

	rendered, err := p.render(ctx, merged, in, func(pct float64) { progress("render", pct) })
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	reconciled, err := p.reconcileDuration(ctx, rendered, in)
	if err != nil {
		return "", fmt.Errorf("reconcile duration: %w", err)
	}

	final, err := p.mixAudio(ctx, reconciled, in)
	if err != nil {
		return "", fmt.Errorf("mix audio: %w", err)
	}
	progress("finalize", 100)
	return final, nil
}

// perClipDuration splits the total duration evenly across clips.
func perClipDuration(totalSec float64, clips int) float64 {
	if clips <= 0 {
		return 0
	}
	return totalSec / float64(clips)
}

// transformClips trims or loops every clip to its share of the total
// duration, scales it to the orientation's canvas and strips its audio.
// Transforms run concurrently and all must finish before concat.
func (p *Pipeline) transformClips(ctx context.Context, in Input) ([]string, error) {
	clipSec := perClipDuration(in.TargetDurationSec, len(in.ClipPaths))
	out := make([]string, len(in.ClipPaths))

	g, gctx := errgroup.WithContext(ctx)
	for i, clip := range in.ClipPaths {
		i, clip := i, clip
		g.Go(func() error {
			dest := filepath.Join(in.Workspace, fmt.Sprintf("encoded_%03d.mp4", i))
			if err := p.transformOne(gctx, clip, dest, clipSec, in.Orientation); err != nil {
				return fmt.Errorf("clip %d: %w", i, err)
			}
			out[i] = dest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) transformOne(ctx context.Context, src, dest string, clipSec float64, orientation types.Orientation) error {
	srcDur, err := ffmpeg.ProbeDuration(ctx, src)
	if err != nil {
		// Unmeasurable clips are treated as long enough to trim.
		srcDur = clipSec
	}

	cmd := p.transformCommand(src, dest, clipSec, srcDur, orientation)
	return cmd.Run(ctx)
}

// transformCommand builds the per-clip trim/scale/strip invocation. Clips
// shorter than their slot are stream-looped to fill it.
func (p *Pipeline) transformCommand(src, dest string, clipSec, srcDurSec float64, orientation types.Orientation) *ffmpeg.Command {
	w, h := orientation.Canvas()
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", w, h, w, h)

	cmd := ffmpeg.New()
	if srcDurSec < clipSec {
		loops := int(clipSec/srcDurSec) + 1
		cmd.Input(src, "-stream_loop", fmt.Sprintf("%d", loops))
	} else {
		cmd.Input(src)
	}
	return cmd.
		VideoFilter(scale).
		OutputOptions(
			"-t", fmt.Sprintf("%.3f", clipSec),
			"-r", fmt.Sprintf("%d", p.cfg.FPS),
			"-c:v", "libx264",
			"-preset", p.cfg.Preset,
			"-crf", fmt.Sprintf("%d", p.cfg.CRF),
			"-pix_fmt", "yuv420p",
			"-an",
		).
		Output(dest)
}

// concat joins the transformed clips with a stream-copy list merge; no
// re-encode keeps this stage cheap.
func (p *Pipeline) concat(ctx context.Context, clips []string, workspace string) (string, error) {
	listFile := filepath.Join(workspace, "concat_list.txt")
	var lines []string
	for _, c := range clips {
		lines = append(lines, fmt.Sprintf("file '%s'", c))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", err
	}

	dest := filepath.Join(workspace, "merged.mp4")
	cmd := ffmpeg.New().
		Input(listFile, "-f", "concat", "-safe", "0").
		OutputOptions("-c", "copy").
		Output(dest)
	if err := cmd.Run(ctx); err != nil {
		return "", err
	}
	return dest, nil
}

// render applies the style filter chain and caption burn-in in a single
// re-encode pass, reporting percentage progress.
func (p *Pipeline) render(ctx context.Context, src string, in Input, progress func(float64)) (string, error) {
	filter := renderFilter(in.Style, in.SubtitlePath)
	if filter == "" {
		// Nothing to burn in; the merged stream is already final video.
		return src, nil
	}

	dest := filepath.Join(in.Workspace, "rendered.mp4")
	cmd := ffmpeg.New().
		Input(src).
		VideoFilter(filter).
		OutputOptions(
			"-c:v", "libx264",
			"-preset", p.cfg.Preset,
			"-crf", fmt.Sprintf("%d", p.cfg.CRF),
			"-pix_fmt", "yuv420p",
			"-an",
		).
		Output(dest)
	if err := cmd.RunProgress(ctx, in.TargetDurationSec, progress); err != nil {
		return "", err
	}
	return dest, nil
}

// renderFilter composes the style chain with the subtitle overlay.
func renderFilter(style, subtitlePath string) string {
	var parts []string
	if f := StyleFilter(style); f != "" {
		parts = append(parts, f)
	}
	if subtitlePath != "" {
		parts = append(parts, fmt.Sprintf("subtitles=%s", ffmpeg.EscapeFilterPath(subtitlePath)))
	}
	return strings.Join(parts, ",")
}

// reconcileDuration loop-extends the rendered video when the narration
// outlasts it by more than the slack threshold. Extension is a stream-copy
// loop capped at the voice duration, never a re-render.
func (p *Pipeline) reconcileDuration(ctx context.Context, src string, in Input) (string, error) {
	if in.VoicePath == "" || in.VoiceDurationSec <= 0 {
		return src, nil
	}

	videoDur, err := ffmpeg.ProbeDuration(ctx, src)
	if err != nil {
		return "", err
	}
	gap := in.VoiceDurationSec - videoDur
	if gap <= p.cfg.ExtendSlackSec {
		return src, nil
	}

	p.log.Info().Float64("gap_sec", gap).Msg("extending video to cover narration")
	dest := filepath.Join(in.Workspace, "extended.mp4")
	loops := int(in.VoiceDurationSec/videoDur) + 1
	cmd := ffmpeg.New().
		Input(src, "-stream_loop", fmt.Sprintf("%d", loops)).
		OutputOptions("-t", fmt.Sprintf("%.3f", in.VoiceDurationSec), "-c", "copy").
		Output(dest)
	if err := cmd.Run(ctx); err != nil {
		return "", err
	}
	return dest, nil
}

// mixAudio attaches the final audio track. The four cases are mutually
// exclusive on the presence of voice and music.
func (p *Pipeline) mixAudio(ctx context.Context, video string, in Input) (string, error) {
	dest := filepath.Join(in.Workspace, "final.mp4")

	videoDur, err := ffmpeg.ProbeDuration(ctx, video)
	if err != nil {
		videoDur = in.TargetDurationSec
	}

	cmd := p.mixCommand(video, dest, videoDur, in)
	if err := cmd.Run(ctx); err != nil {
		return "", err
	}
	return dest, nil
}

// mixCommand builds the audio-mix invocation for the current voice/music
// combination.
func (p *Pipeline) mixCommand(video, dest string, videoDurSec float64, in Input) *ffmpeg.Command {
	volume := clamp01(in.MusicVolume)
	fadeStart := videoDurSec - 2
	if fadeStart < 0 {
		fadeStart = 0
	}

	switch {
	case in.VoicePath != "" && in.MusicPath != "":
		// Normalize both tracks to one sample format, fade the music out
		// over the final two seconds, and give voice priority on duration.
		graph := fmt.Sprintf(
			"[1:a]aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo[voice];"+
				"[2:a]aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo,volume=%.2f,afade=t=out:st=%.3f:d=2[music];"+
				"[voice][music]amix=inputs=2:duration=first:normalize=0[aout]",
			volume, fadeStart,
		)
		return ffmpeg.New().
			Input(video).
			Input(in.VoicePath).
			Input(in.MusicPath, "-stream_loop", "-1").
			FilterComplex(graph).
			Map("0:v").Map("[aout]").
			OutputOptions("-c:v", "copy", "-c:a", "aac", "-b:a", "192k", "-shortest", "-movflags", "+faststart").
			Output(dest)

	case in.VoicePath != "":
		return ffmpeg.New().
			Input(video).
			Input(in.VoicePath).
			Map("0:v").Map("1:a").
			OutputOptions("-c:v", "copy", "-c:a", "aac", "-b:a", "192k", "-shortest", "-movflags", "+faststart").
			Output(dest)

	case in.MusicPath != "":
		return ffmpeg.New().
			Input(video).
			Input(in.MusicPath, "-stream_loop", "-1").
			FilterComplex(fmt.Sprintf("[1:a]volume=%.2f,afade=t=out:st=%.3f:d=2[aout]", volume, fadeStart)).
			Map("0:v").Map("[aout]").
			OutputOptions("-c:v", "copy", "-c:a", "aac", "-b:a", "192k", "-shortest", "-movflags", "+faststart").
			Output(dest)

	default:
		return ffmpeg.New().
			Input(video).
			OutputOptions("-c:v", "copy", "-an", "-movflags", "+faststart").
			Output(dest)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
