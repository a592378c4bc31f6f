// Package keys fetches API key material for the transcription and
// correction backends.
package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"livescribe/internal/domain"
)

const maxKeyResponseBytes = 64 << 10

// keyResponse accepts both the {"key"} and the {"apiKey"} body shapes.
type keyResponse struct {
	Key    string `json:"key"`
	APIKey string `json:"apiKey"`
	Error  string `json:"error"`
}

// HTTPSource fetches a key from a key endpoint with GET.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

// FetchKey returns domain.ErrKeyNotConfigured when the endpoint answers
// with a decodable body that carries no key, unless the status marks a
// gateway or availability failure. Transport and decode failures
// are returned as plain errors and may be retried.
func (s *HTTPSource) FetchKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build key request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch key: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read key response: %w", err)
	}

	if retryableStatus(resp.StatusCode) {
		return "", fmt.Errorf("fetch key: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded keyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode key response (http %d): %w", resp.StatusCode, err)
	}

	key := strings.TrimSpace(decoded.Key)
	if key == "" {
		key = strings.TrimSpace(decoded.APIKey)
	}
	if key == "" {
		if decoded.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrKeyNotConfigured, decoded.Error)
		}
		return "", domain.ErrKeyNotConfigured
	}
	return key, nil
}

// retryableStatus reports gateway and availability failures, which say
// nothing about whether a key is configured.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// EnvSource reads a key from an environment variable at fetch time and
// falls back to a fixed value.
type EnvSource struct {
	Var      string
	Fallback string
}

func (s EnvSource) FetchKey(_ context.Context) (string, error) {
	if s.Var != "" {
		if value := strings.TrimSpace(os.Getenv(s.Var)); value != "" {
			return value, nil
		}
	}
	if value := strings.TrimSpace(s.Fallback); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s is not set", domain.ErrKeyNotConfigured, s.Var)
}
