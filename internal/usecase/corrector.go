package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"livescribe/internal/domain"
	"livescribe/internal/observability/metrics"
	"livescribe/internal/ports"
	"livescribe/internal/transcript"
)

var (
	ErrEmptyTranscript = errors.New("no transcript to correct")
	ErrEmptyPrompt     = errors.New("correction prompt is empty")
)

// TranscriptSource exposes the finalized words of a session.
type TranscriptSource interface {
	Transcript() transcript.State
}

// Correction is the result of a prompt-driven transcript rewrite.
type Correction struct {
	Original  string             `json:"original"`
	Corrected string             `json:"corrected"`
	Tokens    []transcript.Token `json:"tokens"`
}

// TranscriptCorrector submits the final transcript to a text fixer.
type TranscriptCorrector struct {
	source  TranscriptSource
	keys    ports.KeySource
	fixer   ports.TextFixer
	events  ports.EventSink
	metrics *metrics.Metrics
}

func NewTranscriptCorrector(
	source TranscriptSource,
	keys ports.KeySource,
	fixer ports.TextFixer,
	events ports.EventSink,
	m *metrics.Metrics,
) *TranscriptCorrector {
	if m == nil {
		m = metrics.Default
	}
	return &TranscriptCorrector{source: source, keys: keys, fixer: fixer, events: events, metrics: m}
}

// Correct rewrites the final transcript according to prompt.
func (c *TranscriptCorrector) Correct(ctx context.Context, prompt string) (Correction, error) {
	original := transcript.PlainText(c.source.Transcript().Final)
	if original == "" {
		return Correction{}, ErrEmptyTranscript
	}
	if strings.TrimSpace(prompt) == "" {
		return Correction{}, ErrEmptyPrompt
	}

	corrected, err := c.fix(ctx, original, prompt)
	c.metrics.RecordCorrection(err)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeCorrection, err.Error())
		return Correction{}, err
	}

	return Correction{
		Original:  original,
		Corrected: corrected,
		Tokens:    transcript.HighlightChanges(original, corrected),
	}, nil
}

func (c *TranscriptCorrector) fix(ctx context.Context, original, prompt string) (string, error) {
	apiKey, err := c.keys.FetchKey(ctx)
	if err == nil && apiKey == "" {
		err = domain.ErrKeyNotConfigured
	}
	if err != nil {
		return "", fmt.Errorf("correction key: %w", err)
	}
	return c.fixer.Fix(ctx, original, prompt, apiKey)
}
