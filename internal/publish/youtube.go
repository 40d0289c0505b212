// Package publish uploads finished videos to YouTube via the Data API v3.
// Publishing is optional: credentials come from the environment and the
// publisher reports itself disabled when they are absent.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/adhielesmana/promptweaver/config"
)

// Metadata describes the listing for an uploaded video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Publisher uploads artifacts to a YouTube channel.
type Publisher struct {
	cfg config.PublishConfig
	log zerolog.Logger
}

func New(cfg config.PublishConfig, logger zerolog.Logger) *Publisher {
	return &Publisher{cfg: cfg, log: logger.With().Str("component", "publish").Logger()}
}

// Enabled reports whether OAuth credentials are present. Callers should
// skip publishing entirely when this is false.
func (p *Publisher) Enabled() bool {
	return os.Getenv("YOUTUBE_CLIENT_ID") != "" &&
		os.Getenv("YOUTUBE_CLIENT_SECRET") != "" &&
		os.Getenv("YOUTUBE_REFRESH_TOKEN") != ""
}

// Upload pushes the video file and returns its watch URL.
func (p *Publisher) Upload(ctx context.Context, videoPath string, meta Metadata) (string, error) {
	client, err := p.oauthClient(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube auth: %w", err)
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  p.cfg.YouTubeCategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           p.cfg.Visibility,
			SelfDeclaredMadeForKids: p.cfg.MadeForKids,
		},
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		p.log.Info().
			Str("title", meta.Title).
			Float64("size_mb", float64(fi.Size())/1024/1024).
			Msg("uploading video")
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).NotifySubscribers(p.cfg.NotifySubscribers).Media(f).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	p.log.Info().Str("video_id", uploaded.Id).Str("url", url).Msg("upload complete")
	return url, nil
}

func (p *Publisher) oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN must be set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}
