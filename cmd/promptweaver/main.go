// Command promptweaver turns a text prompt into a finished short video:
// script, stock footage, narration, captions and music, composed with
// ffmpeg. It can also import local files into the footage library and
// optionally publish the result to YouTube.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/config"
	"github.com/adhielesmana/promptweaver/internal/compose"
	"github.com/adhielesmana/promptweaver/internal/footage"
	"github.com/adhielesmana/promptweaver/internal/generate"
	"github.com/adhielesmana/promptweaver/internal/library"
	"github.com/adhielesmana/promptweaver/internal/music"
	"github.com/adhielesmana/promptweaver/internal/publish"
	"github.com/adhielesmana/promptweaver/internal/script"
	"github.com/adhielesmana/promptweaver/internal/store"
	"github.com/adhielesmana/promptweaver/internal/types"
	"github.com/adhielesmana/promptweaver/internal/voice"
)

func main() {
	// .env is for local development only.
	_ = godotenv.Load()

	var (
		prompt      = flag.String("prompt", "", "what the video should be about")
		duration    = flag.Float64("duration", 30, "target duration in seconds")
		orientation = flag.String("orientation", "landscape", "landscape or portrait")
		style       = flag.String("style", "", "visual style filter (cinematic, vibrant, noir, warm, cool, dream, retro)")
		mood        = flag.String("mood", "chill", fmt.Sprintf("music mood (%s) or none", strings.Join(music.Moods(), ", ")))
		musicVolume = flag.Float64("music-volume", 0.2, "music volume 0..1")
		speech      = flag.Bool("speech", true, "narrate the video")
		language    = flag.String("language", "en", "narration language code")
		configPath  = flag.String("config", "config.yaml", "config file path")
		doPublish   = flag.Bool("publish", false, "upload the finished video to YouTube")

		importPath  = flag.String("import", "", "import a local video into the library instead of generating")
		importTitle = flag.String("title", "", "title for the imported file")
		importDesc  = flag.String("description", "", "description for the imported file")
		importTags  = flag.String("tags", "", "comma-separated tags for the imported file")
	)
	flag.Parse()

	logger := newLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("could not load config")
	}

	for _, dir := range []string{cfg.Paths.Cache, cfg.Paths.Output, cfg.Paths.Library} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("could not create directory")
		}
	}

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open database")
	}

	ctx := context.Background()

	if *importPath != "" {
		runImport(ctx, st, *importPath, *importTitle, *importDesc, *importTags, logger)
		return
	}

	if *prompt == "" {
		flag.Usage()
		os.Exit(2)
	}

	cascade := footage.NewCascade(st, footage.NewPexelsClient(), cfg.Paths.Cache, logger)
	cascade.SetLimits(float64(cfg.Footage.MaxClipDurationSec), cfg.Footage.CandidateLimit)

	gen := generate.New(
		script.NewWriter(cfg.Script.GroqModel, cfg.Script.Temperature, cfg.Script.MaxScenes, logger),
		cascade,
		voice.NewService(st, voice.NewCommandSynthesizer(), cfg.Paths.Cache, logger),
		music.NewService(st, cfg.Paths.Cache, logger),
		compose.NewPipeline(compose.Config{
			FPS:            cfg.Compose.FPS,
			Preset:         cfg.Compose.Preset,
			CRF:            cfg.Compose.CRF,
			ExtendSlackSec: cfg.Compose.ExtendSlackSec,
		}, logger),
		st,
		cfg.Paths.Output,
		logger,
	)

	opts := types.Options{
		Prompt:        *prompt,
		DurationSec:   *duration,
		Orientation:   types.ParseOrientation(*orientation),
		Style:         *style,
		MusicMood:     *mood,
		MusicVolume:   *musicVolume,
		IncludeSpeech: *speech,
		Language:      *language,
	}

	res, err := gen.Generate(ctx, opts, func(ev generate.Event) {
		logger.Info().Str("stage", string(ev.Stage)).Msg(ev.Message)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("generation failed")
	}

	for _, n := range res.FootageNotices {
		logger.Warn().Int("scene", n.SceneIndex).Str("query", n.Query).Msg(n.Reason)
	}
	if res.Silent {
		logger.Warn().Msg("narration was unavailable; the video has no speech")
	}
	if res.NoMusic {
		logger.Warn().Msg("music was unavailable; the video has no soundtrack")
	}
	logger.Info().Str("path", res.ArtifactPath).Str("title", res.Title).Msg("video ready")

	if *doPublish {
		pub := publish.New(cfg.Publish, logger)
		if !pub.Enabled() {
			logger.Warn().Msg("publish requested but YouTube credentials are not set; skipping")
			return
		}
		url, err := pub.Upload(ctx, res.ArtifactPath, publish.Metadata{
			Title:       res.Title,
			Description: *prompt,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("upload failed")
		}
		logger.Info().Str("url", url).Msg("published")
	}
}

func runImport(ctx context.Context, st *store.Store, path, title, description, tags string, logger zerolog.Logger) {
	var tagList []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tagList = append(tagList, t)
		}
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	item, err := library.NewImporter(st, logger).Import(ctx, path, title, description, tagList)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("import failed")
	}
	logger.Info().
		Uint("id", item.ID).
		Str("title", item.Title).
		Str("orientation", item.Orientation).
		Msg("library item imported")
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("APP_ENV") == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if os.Getenv("APP_ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}
