// Package audio captures microphone PCM and delivers it in fixed-interval
// chunks.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livescribe/internal/observability/logging"
	"livescribe/internal/ports"
)

type openFunc func(ctx context.Context, cfg ports.AudioConfig) (device, error)

// Source implements ports.AudioSource on top of a device backend. The
// device is opened on first Acquire and shared until the handle is stopped.
type Source struct {
	open     openFunc
	cfg      ports.AudioConfig
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	handle *chunkedHandle
}

func newSource(backend string, open openFunc, cfg ports.AudioConfig, interval time.Duration) *Source {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Source{
		open:     open,
		cfg:      cfg,
		interval: interval,
		log:      logging.WithComponent("audio").With().Str("backend", backend).Logger(),
	}
}

// Config returns the effective capture configuration.
func (s *Source) Config() ports.AudioConfig {
	return s.cfg
}

func (s *Source) Acquire(ctx context.Context) (ports.CaptureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && !s.handle.isStopped() {
		return s.handle, nil
	}

	dev, err := s.open(ctx, s.cfg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to open microphone")
		return nil, err
	}
	s.log.Info().
		Int("sampleRate", s.cfg.SampleRate).
		Int("channels", s.cfg.Channels).
		Msg("microphone acquired")

	var handle *chunkedHandle
	handle = newChunkedHandle(dev, s.interval, s.log, func() { s.release(handle) })
	s.handle = handle
	return handle, nil
}

func (s *Source) release(h *chunkedHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		s.handle = nil
		s.log.Info().Msg("microphone released")
	}
}
