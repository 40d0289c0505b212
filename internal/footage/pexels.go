package footage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/adhielesmana/promptweaver/internal/types"
)

// ErrMissingAPIKey reports an absent remote-provider credential. It is a
// configuration error and is surfaced before any network call is attempted.
var ErrMissingAPIKey = errors.New("PEXELS_API_KEY not set")

// SearchResult is one downloadable clip offered by the remote provider.
type SearchResult struct {
	ID          int64
	Width       int
	Height      int
	DurationSec float64
	Quality     string
	Link        string
}

// Provider is the remote stock-footage collaborator. It is rate-limited and
// may fail transiently; callers treat individual failures as tier-internal.
type Provider interface {
	// Ready reports whether the provider is usable at all; a non-nil error
	// is a configuration problem, not a transient one.
	Ready() error
	Search(ctx context.Context, query string, orientation types.Orientation, maxDurationSec float64) ([]SearchResult, error)
	Download(ctx context.Context, res SearchResult, dest string) error
}

const pexelsBaseURL = "https://api.pexels.com/videos"

// PexelsClient talks to the Pexels video search API.
type PexelsClient struct {
	apiKey     string
	baseURL    string
	perPage    int
	httpClient *http.Client
}

// NewPexelsClient reads the API key from the environment.
func NewPexelsClient() *PexelsClient {
	return &PexelsClient{
		apiKey:     os.Getenv("PEXELS_API_KEY"),
		baseURL:    pexelsBaseURL,
		perPage:    15,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Ready fails when no API key is configured.
func (p *PexelsClient) Ready() error {
	if p.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

type pexelsVideoFile struct {
	Quality string `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Link    string `json:"link"`
}

type pexelsVideo struct {
	ID         int64             `json:"id"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Duration   float64           `json:"duration"`
	VideoFiles []pexelsVideoFile `json:"video_files"`
}

type pexelsSearchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

// Search queries the provider for clips no longer than maxDurationSec,
// preferring the orientation's aspect. Results keep provider ranking order.
func (p *PexelsClient) Search(ctx context.Context, query string, orientation types.Orientation, maxDurationSec float64) ([]SearchResult, error) {
	if err := p.Ready(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", fmt.Sprintf("%d", p.perPage))
	if orientation != "" {
		params.Set("orientation", string(orientation))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("pexels search: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("pexels search: decode: %w", err)
	}

	var results []SearchResult
	for _, v := range parsed.Videos {
		if maxDurationSec > 0 && v.Duration > maxDurationSec {
			continue
		}
		quality, link, w, h := bestFile(v.VideoFiles)
		if link == "" {
			continue
		}
		if w == 0 {
			w, h = v.Width, v.Height
		}
		results = append(results, SearchResult{
			ID:          v.ID,
			Width:       w,
			Height:      h,
			DurationSec: v.Duration,
			Quality:     quality,
			Link:        link,
		})
	}
	return results, nil
}

// bestFile prefers the first HD rendition and falls back to whatever exists.
func bestFile(files []pexelsVideoFile) (quality, link string, w, h int) {
	for _, f := range files {
		if f.Quality == "hd" {
			return f.Quality, f.Link, f.Width, f.Height
		}
	}
	for _, f := range files {
		return f.Quality, f.Link, f.Width, f.Height
	}
	return "", "", 0, 0
}

// Download fetches a clip to dest. Partial files are removed on failure so
// a live path on disk always means a complete download.
func (p *PexelsClient) Download(ctx context.Context, res SearchResult, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.Link, nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pexels download %d: %w", res.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pexels download %d: status %d", res.ID, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("pexels download %d: %w", res.ID, err)
	}
	return f.Close()
}
