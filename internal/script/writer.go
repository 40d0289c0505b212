// Package script turns a user prompt into a structured video script via
// the Groq chat-completions API: a title, the narration text, and 3-5
// scenes each carrying a short footage search phrase and a caption.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adhielesmana/promptweaver/internal/types"
)

const defaultBaseURL = "https://api.groq.com/openai/v1/chat/completions"

const (
	minScenes        = 3
	defaultMaxScenes = 5
)

const systemPrompt = `You are a scriptwriter for short-form videos. Given a topic, write a tight script for a vertical or horizontal clip.

You MUST respond with ONLY valid JSON - no preamble, no markdown, no explanation.

The JSON must have exactly these fields:
- "title": a short video title
- "narration": the full voiceover text, written to be read aloud in the requested duration at a natural pace (~150 words per minute)
- "scenes": an array of 3 to 5 objects, each with:
  - "search_terms": 2-3 concrete visual words for stock footage search (e.g. "calm forest", "city night rain")
  - "caption": a short on-screen caption for the scene, or ""

Scenes must follow the narration in order and together cover the whole video.`

// Writer generates scripts through the language-model service.
type Writer struct {
	model       string
	temperature float64
	maxScenes   int
	baseURL     string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewWriter builds a Writer for the given model. maxScenes caps the scene
// count; values below the 3-scene minimum fall back to the default of 5.
func NewWriter(model string, temperature float64, maxScenes int, logger zerolog.Logger) *Writer {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	if maxScenes < minScenes {
		maxScenes = defaultMaxScenes
	}
	return &Writer{
		model:       model,
		temperature: temperature,
		maxScenes:   maxScenes,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		log:         logger.With().Str("component", "script").Logger(),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type scriptJSON struct {
	Title     string `json:"title"`
	Narration string `json:"narration"`
	Scenes    []struct {
		SearchTerms string `json:"search_terms"`
		Caption     string `json:"caption"`
	} `json:"scenes"`
}

// Run produces the script for one generation. Malformed model output is
// retried once before failing.
func (w *Writer) Run(ctx context.Context, prompt string, opts types.Options) (*types.Script, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}

	userPrompt := buildUserPrompt(prompt, opts)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		script, err := w.complete(ctx, apiKey, userPrompt)
		if err == nil {
			return script, nil
		}
		lastErr = err
		w.log.Warn().Err(err).Int("attempt", attempt+1).Msg("script generation attempt failed")
	}
	return nil, lastErr
}

func (w *Writer) complete(ctx context.Context, apiKey, userPrompt string) (*types.Script, error) {
	body, err := json.Marshal(chatRequest{
		Model: w.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: w.temperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("language model request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("language model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("language model returned no choices")
	}

	return parseScript(parsed.Choices[0].Message.Content, w.maxScenes)
}

func buildUserPrompt(prompt string, opts types.Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", prompt)
	fmt.Fprintf(&sb, "Video duration: %.0f seconds\n", opts.DurationSec)
	fmt.Fprintf(&sb, "Orientation: %s\n", opts.Orientation)
	fmt.Fprintf(&sb, "Language: %s\n", opts.Language)
	sb.WriteString("Respond ONLY with valid JSON.")
	return sb.String()
}

// parseScript decodes and validates the model output.
func parseScript(content string, maxScenes int) (*types.Script, error) {
	var raw scriptJSON
	if err := json.Unmarshal([]byte(cleanJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("parse script JSON: %w", err)
	}
	if strings.TrimSpace(raw.Narration) == "" {
		return nil, fmt.Errorf("script has no narration")
	}
	if len(raw.Scenes) < minScenes {
		return nil, fmt.Errorf("script has %d scenes, need at least %d", len(raw.Scenes), minScenes)
	}
	if len(raw.Scenes) > maxScenes {
		raw.Scenes = raw.Scenes[:maxScenes]
	}

	script := &types.Script{Title: raw.Title, Narration: raw.Narration}
	for i, s := range raw.Scenes {
		if strings.TrimSpace(s.SearchTerms) == "" {
			return nil, fmt.Errorf("scene %d has no search terms", i)
		}
		script.Scenes = append(script.Scenes, types.Scene{
			Index:       i,
			SearchTerms: s.SearchTerms,
			Caption:     s.Caption,
		})
	}
	return script, nil
}

// cleanJSON strips markdown fences when the model wraps its answer in
// ```json blocks despite instructions.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
