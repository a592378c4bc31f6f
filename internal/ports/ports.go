package ports

import (
	"context"

	"livescribe/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// CaptureHandle is an acquired microphone.
type CaptureHandle interface {
	// Stream begins emitting chunks in capture order.
	Stream(emit func(chunk []byte)) error
	// Pause halts emission. No emit call is in flight once it returns.
	Pause()
	// Stop halts emission and releases the device.
	Stop() error
}

// AudioSource acquires the microphone. Acquire is idempotent while a handle is held.
type AudioSource interface {
	Acquire(ctx context.Context) (CaptureHandle, error)
}

// Connection is an open streaming session to the recognition backend.
type Connection interface {
	Send(chunk []byte)
	KeepAlive()
	Finish()
}

// TranscriptionProvider opens streaming connections. Events for one
// connection are delivered sequentially and end with exactly one Closed.
type TranscriptionProvider interface {
	Open(ctx context.Context, apiKey string, cfg domain.SessionConfig, onEvent func(domain.ConnectionEvent)) (Connection, error)
}

// KeySource fetches API key material.
type KeySource interface {
	FetchKey(ctx context.Context) (string, error)
}

// TextFixer rewrites text according to a user prompt.
type TextFixer interface {
	Fix(ctx context.Context, text string, prompt string, apiKey string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink receives controller state for presentation.
type EventSink interface {
	SessionStateChanged(status domain.Status)
	TranscriptChanged(final []domain.Word, interim []domain.Word)
	SessionError(code domain.ErrorCode, detail string)
}
