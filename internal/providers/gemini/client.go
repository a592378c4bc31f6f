// Package gemini rewrites transcripts with the Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"livescribe/internal/observability/logging"
)

const (
	defaultAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel      = "gemini-1.5-flash-latest"

	maxResponseBytes = 1 << 20
)

var ErrEmptyResponse = errors.New("no fixed text found in gemini response")

// Config controls the Gemini client.
type Config struct {
	APIBaseURL string
	Model      string
	Timeout    time.Duration
}

// Client implements ports.TextFixer.
type Client struct {
	cfg        Config
	baseURL    string
	apiVersion string
	http       *http.Client
	log        zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	baseURL, apiVersion := splitBaseURL(cfg.APIBaseURL)
	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: limitedTransport{next: http.DefaultTransport, limit: maxResponseBytes},
		},
		log: logging.WithComponent("gemini"),
	}
}

// splitBaseURL separates a trailing API version segment such as /v1beta.
func splitBaseURL(raw string) (string, string) {
	trimmed := strings.TrimRight(raw, "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed, ""
	}
	idx := strings.LastIndex(parsed.Path, "/")
	if idx < 0 {
		return trimmed, ""
	}
	version := parsed.Path[idx+1:]
	if !strings.HasPrefix(version, "v1") {
		return trimmed, ""
	}
	parsed.Path = parsed.Path[:idx]
	return parsed.String(), version
}

func buildPrompt(text, prompt string) string {
	return prompt + "\n\nOriginal Text:\n" + text + "\n\nFixed Text:"
}

// Fix sends text with the user's prompt and returns the trimmed rewrite.
func (c *Client) Fix(ctx context.Context, text string, prompt string, apiKey string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.http,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: c.apiVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(buildPrompt(text, prompt)), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopK:            genai.Ptr[float32](1),
		TopP:            genai.Ptr[float32](1),
		MaxOutputTokens: 1024,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			c.log.Error().Int("code", apiErr.Code).Str("status", apiErr.Status).Msg(apiErr.Message)
			return "", fmt.Errorf("gemini api error: %d %s", apiErr.Code, strings.TrimSpace(apiErr.Message))
		}
		c.log.Error().Err(err).Msg("gemini request failed")
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if result == nil {
		return "", ErrEmptyResponse
	}

	fixed := strings.TrimSpace(result.Text())
	if fixed == "" {
		return "", ErrEmptyResponse
	}
	return fixed, nil
}

// limitedTransport caps response bodies.
type limitedTransport struct {
	next  http.RoundTripper
	limit int64
}

func (t limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = limitedBody{Reader: io.LimitReader(resp.Body, t.limit), Closer: resp.Body}
	return resp, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
