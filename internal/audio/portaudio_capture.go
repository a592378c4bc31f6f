//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

const portAudioFramesPerBuffer = 512

// NewPortAudioSource captures the microphone through PortAudio in
// blocking-read mode. An empty or "default" InputDevice selects the system
// default input.
func NewPortAudioSource(cfg ports.AudioConfig, interval time.Duration) *Source {
	return newSource("portaudio", func(_ context.Context, cfg ports.AudioConfig) (device, error) {
		return openPortAudio(cfg)
	}, cfg, interval)
}

type portAudioStream struct {
	stream  *portaudio.Stream
	samples []int16

	mu      sync.Mutex
	pending []byte
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

func openPortAudio(cfg ports.AudioConfig) (*portAudioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %v", domain.ErrDeviceUnavailable, err)
	}

	s := &portAudioStream{samples: make([]int16, portAudioFramesPerBuffer*cfg.Channels)}

	var (
		stream *portaudio.Stream
		err    error
	)
	if cfg.InputDevice != "" && cfg.InputDevice != "default" {
		dev, findErr := findInputDevice(cfg.InputDevice)
		if findErr != nil {
			_ = portaudio.Terminate()
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, findErr)
		}
		stream, err = portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: cfg.Channels,
				Latency:  dev.DefaultLowInputLatency,
			},
			SampleRate:      float64(cfg.SampleRate),
			FramesPerBuffer: portAudioFramesPerBuffer,
		}, s.samples)
	} else {
		stream, err = portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), portAudioFramesPerBuffer, s.samples)
	}
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyPortAudioErr("open input stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classifyPortAudioErr("start input stream", err)
	}

	s.stream = stream
	return s, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}

func classifyPortAudioErr(op string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%w: %s: %v", domain.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, op, err)
}

// Read blocks for one PortAudio buffer and returns it as little-endian PCM.
func (s *portAudioStream) Read(b []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("portaudio stream closed")
	}
	if len(s.pending) == 0 {
		s.mu.Unlock()
		err := s.stream.Read()
		if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return 0, err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, errors.New("portaudio stream closed")
		}
		s.pending = make([]byte, 2*len(s.samples))
		for i, sample := range s.samples {
			binary.LittleEndian.PutUint16(s.pending[2*i:], uint16(sample))
		}
	}
	n := copy(b, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.stream.Stop(); err != nil {
			s.closeErr = err
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		if err := portaudio.Terminate(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
