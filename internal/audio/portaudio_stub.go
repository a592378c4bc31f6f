//go:build !portaudio

package audio

import (
	"context"
	"fmt"
	"time"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// NewPortAudioSource returns a source whose Acquire always fails. Build
// with -tags portaudio to link the PortAudio backend.
func NewPortAudioSource(cfg ports.AudioConfig, interval time.Duration) *Source {
	return newSource("portaudio", func(context.Context, ports.AudioConfig) (device, error) {
		return nil, fmt.Errorf("%w: built without portaudio support", domain.ErrDeviceUnavailable)
	}, cfg, interval)
}
