package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livescribe/internal/domain"
	"livescribe/internal/observability/logging"
	"livescribe/internal/observability/metrics"
	"livescribe/internal/ports"
	"livescribe/internal/transcript"
)

var (
	ErrNoActiveSession = errors.New("no active transcription session")
	ErrSessionActive   = errors.New("a transcription session is already active")
	ErrKeyNotLoaded    = errors.New("transcription api key is not loaded")
	ErrSessionLocked   = errors.New("configuration is locked while a session is active")
	ErrUnknownOption   = errors.New("unknown transcription option")
	ErrInvalidConfig   = errors.New("invalid session configuration")
	ErrStartAborted    = errors.New("session stopped before the connection was opened")
)

type keyState int

const (
	keyPending keyState = iota
	keyLoaded
	keyFailed
	keyNotConfigured
)

// Config controls session behavior.
type Config struct {
	OptionKey         string
	Diarize           bool
	KeepAliveInterval time.Duration
	Metrics           *metrics.Metrics
}

// SessionController owns the capture handle, the connection and the
// transcript state for live transcription sessions.
//
// Sink callbacks run with the controller lock held and must not call back
// into the controller.
type SessionController struct {
	audio     ports.AudioSource
	provider  ports.TranscriptionProvider
	keys      ports.KeySource
	events    ports.EventSink
	metrics   *metrics.Metrics
	keepAlive time.Duration
	log       zerolog.Logger

	// lifetime scopes the capture device, which outlives single sessions.
	lifetime context.Context
	shutdown context.CancelFunc

	mu         sync.Mutex
	keyState   keyState
	apiKey     string
	option     domain.TranscriptionOption
	diarize    bool
	capture    ports.CaptureHandle
	current    *activeSession
	transcript transcript.State
	message    string
	level      domain.MessageLevel
}

func NewSessionController(
	audio ports.AudioSource,
	provider ports.TranscriptionProvider,
	keys ports.KeySource,
	events ports.EventSink,
	cfg Config,
) (*SessionController, error) {
	if cfg.OptionKey == "" {
		cfg.OptionKey = domain.DefaultOptionKey
	}
	option, ok := domain.LookupOption(cfg.OptionKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, cfg.OptionKey)
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	return &SessionController{
		audio:     audio,
		provider:  provider,
		keys:      keys,
		events:    events,
		metrics:   cfg.Metrics,
		keepAlive: cfg.KeepAliveInterval,
		log:       logging.WithComponent("session"),
		lifetime:  lifetime,
		shutdown:  shutdown,
		option:    option,
		diarize:   cfg.Diarize,
	}, nil
}

// LoadKey fetches the transcription API key. A missing configuration is
// terminal; any other failure may be retried by calling LoadKey again.
func (c *SessionController) LoadKey(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if c.keyState == keyNotConfigured {
		c.mu.Unlock()
		return domain.ErrKeyNotConfigured
	}
	c.keyState = keyPending
	c.setMessageLocked(domain.MessageInfo, "Loading API key...")
	c.emitStatusLocked()
	c.mu.Unlock()

	key, err := c.keys.FetchKey(ctx)
	if err == nil && key == "" {
		err = domain.ErrKeyNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.keyState = keyLoaded
		c.apiKey = key
		c.metrics.RecordKeyFetch("ok")
		c.setMessageLocked(domain.MessageSuccess, "API key loaded.")
	case errors.Is(err, domain.ErrKeyNotConfigured):
		c.keyState = keyNotConfigured
		c.metrics.RecordKeyFetch("not_configured")
		c.log.Error().Err(err).Msg("transcription api key is not configured")
		c.setMessageLocked(domain.MessageError, "Error: transcription API key not configured.")
		c.events.SessionError(domain.ErrorCodeKey, err.Error())
	default:
		c.keyState = keyFailed
		c.metrics.RecordKeyFetch("error")
		c.log.Error().Err(err).Msg("failed to fetch transcription api key")
		c.setMessageLocked(domain.MessageError, "Error fetching API key.")
		c.events.SessionError(domain.ErrorCodeKey, err.Error())
	}
	c.emitStatusLocked()
	return err
}

// Start opens a new session. It is rejected unless the controller is idle
// with a loaded key. Failures after the connection was requested are
// reported through the event sink.
//
// ctx only scopes the start request. The connection lives until Stop or
// Close, so cancelling ctx afterwards does not cut off the final results.
func (c *SessionController) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		c.log.Debug().Msg("start ignored, session already active")
		return ErrSessionActive
	}
	if c.keyState != keyLoaded {
		c.setMessageLocked(domain.MessageError, "API key not loaded or configured.")
		c.emitStatusLocked()
		c.mu.Unlock()
		return ErrKeyNotLoaded
	}
	cfg := c.option.SessionConfig(c.diarize)
	if !cfg.Valid() {
		c.mu.Unlock()
		return ErrInvalidConfig
	}

	sessionCtx, cancel := context.WithCancel(c.lifetime)
	id := uuid.NewString()
	s := &activeSession{
		id:     id,
		cfg:    cfg,
		done:   sessionCtx.Done(),
		cancel: cancel,
		log:    logging.WithSession("session", id),
		state:  domain.SessionStateConnecting,
	}
	c.current = s
	c.transcript = transcript.Reset()
	c.metrics.RecordSessionStart()
	c.setMessageLocked(domain.MessageInfo, "Connecting...")
	c.emitStatusLocked()
	c.emitTranscriptLocked()
	apiKey := c.apiKey
	capture := c.capture
	c.mu.Unlock()

	s.log.Info().
		Str("model", cfg.Model).
		Str("language", cfg.Language).
		Bool("fillerWords", cfg.FillerWords).
		Bool("diarize", cfg.Diarize).
		Msg("starting transcription session")

	if capture == nil {
		handle, err := c.audio.Acquire(c.lifetime)
		if err != nil {
			c.abortStart(s, err)
			return fmt.Errorf("acquire microphone: %w", err)
		}
		c.mu.Lock()
		if c.capture == nil {
			c.capture = handle
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.current != s || s.state != domain.SessionStateConnecting {
		if c.current == s {
			c.finishLocked(s, "stopped")
			c.setMessageLocked(domain.MessageInfo, "Connection closed.")
			c.emitStatusLocked()
		}
		c.mu.Unlock()
		return ErrStartAborted
	}
	c.mu.Unlock()

	conn, err := c.provider.Open(sessionCtx, apiKey, cfg, func(event domain.ConnectionEvent) {
		c.handleEvent(s, event)
	})
	if err != nil {
		c.abortStart(s, err)
		return fmt.Errorf("open transcription connection: %w", err)
	}

	c.mu.Lock()
	if c.current != s {
		// Torn down by an event delivered while Open was running.
		c.mu.Unlock()
		conn.Finish()
		return nil
	}
	s.conn = conn
	finish := s.state == domain.SessionStateStopping
	if !finish && s.opened {
		if after := c.openedLocked(s); after != nil {
			c.mu.Unlock()
			after()
			return nil
		}
	}
	c.mu.Unlock()

	if finish {
		conn.Finish()
	}
	return nil
}

// Stop requests a graceful close. Teardown completes when the connection
// reports Closed.
func (c *SessionController) Stop() error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.state == domain.SessionStateStopping {
		c.mu.Unlock()
		return nil
	}
	s.state = domain.SessionStateStopping
	c.setMessageLocked(domain.MessageInfo, "Stopping...")
	c.emitStatusLocked()
	conn := s.conn
	c.mu.Unlock()

	s.log.Info().Msg("stop requested")
	if conn != nil {
		conn.Finish()
	}
	return nil
}

// Toggle stops an active session or starts a new one.
func (c *SessionController) Toggle(ctx context.Context) error {
	c.mu.Lock()
	active := c.current != nil
	c.mu.Unlock()
	if active {
		return c.Stop()
	}
	return c.Start(ctx)
}

// SetOption selects a transcription option while no session is active.
func (c *SessionController) SetOption(key string) error {
	option, ok := domain.LookupOption(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrSessionLocked
	}
	c.option = option
	return nil
}

// SetDiarization toggles speaker labels while no session is active.
func (c *SessionController) SetDiarization(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return ErrSessionLocked
	}
	c.diarize = enabled
	return nil
}

// Option returns the selected transcription option and diarization flag.
func (c *SessionController) Option() (domain.TranscriptionOption, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.option, c.diarize
}

// Status returns the current status snapshot.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Transcript returns the current reducer state.
func (c *SessionController) Transcript() transcript.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Rendered returns the transcript with speaker labels and confidence tiers.
func (c *SessionController) Rendered() transcript.Rendered {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transcript.Render(c.transcript, c.diarize)
}

// Close ends any session without waiting for the backend and releases the
// microphone.
func (c *SessionController) Close() error {
	c.mu.Lock()
	var conn ports.Connection
	if s := c.current; s != nil {
		conn = s.conn
		c.finishLocked(s, "stopped")
		c.setMessageLocked(domain.MessageInfo, "Connection closed.")
		c.emitStatusLocked()
	}
	capture := c.capture
	c.capture = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Finish()
	}
	c.shutdown()
	if capture != nil {
		return capture.Stop()
	}
	return nil
}

func (c *SessionController) handleEvent(s *activeSession, event domain.ConnectionEvent) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		s.log.Debug().Str("event", string(event.Kind)).Msg("ignoring event from finished session")
		return
	}

	var after func()
	switch event.Kind {
	case domain.EventOpened:
		s.opened = true
		if s.conn != nil {
			after = c.openedLocked(s)
		}
	case domain.EventTranscript:
		c.transcript = transcript.Reduce(c.transcript, event)
		c.metrics.RecordTranscript(event.IsFinal)
		c.emitTranscriptLocked()
	case domain.EventMetadata, domain.EventUtteranceEnd:
		s.log.Debug().Str("event", string(event.Kind)).Msg("backend event")
	case domain.EventError:
		after = c.failLocked(s, domain.ErrorCodeConnection, "Connection error: "+event.Message)
	case domain.EventClosed:
		if s.state == domain.SessionStateStopping {
			c.finishLocked(s, "stopped")
			s.log.Info().Msg("transcription session closed")
			c.setMessageLocked(domain.MessageInfo, "Connection closed.")
			c.emitStatusLocked()
		} else {
			after = c.failLocked(s, domain.ErrorCodeConnection, "Connection closed unexpectedly.")
		}
	}
	c.mu.Unlock()

	if after != nil {
		after()
	}
}

// openedLocked moves a connecting session to listening: capture emission
// and the keep-alive timer start here.
func (c *SessionController) openedLocked(s *activeSession) func() {
	if s.state != domain.SessionStateConnecting {
		s.log.Debug().Str("state", string(s.state)).Msg("ignoring open for stopping session")
		return nil
	}
	if c.capture == nil {
		return c.failLocked(s, domain.ErrorCodeMicrophone, "Microphone setup failed.")
	}

	s.sending.Store(true)
	if err := c.capture.Stream(func(chunk []byte) {
		if s.forward(chunk) {
			c.metrics.RecordChunkSent(len(chunk))
			return
		}
		c.metrics.RecordChunkDropped()
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to start audio emission")
		return c.dropCaptureLocked(s, "Microphone setup failed.")
	}
	if watched, ok := c.capture.(failureNotifier); ok {
		go c.watchCapture(s, watched.Failed())
	}
	s.keepAlive = startKeepAlive(c.keepAlive, func() {
		if s.ping() {
			c.metrics.RecordKeepAlive()
		}
	})

	s.state = domain.SessionStateListening
	s.log.Info().Msg("connection opened, listening")
	c.setMessageLocked(domain.MessageInfo, "Connection opened. Listening...")
	c.emitStatusLocked()
	return nil
}

// failureNotifier is implemented by capture handles that can die on their
// own, for example when the device is unplugged.
type failureNotifier interface {
	Failed() <-chan struct{}
}

func (c *SessionController) watchCapture(s *activeSession, failed <-chan struct{}) {
	select {
	case <-s.done:
		return
	case <-failed:
	}

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	after := c.dropCaptureLocked(s, "Microphone stopped producing audio.")
	c.mu.Unlock()
	after()
}

// dropCaptureLocked fails the session with a microphone error and forgets
// the capture handle so the next Start acquires a fresh one.
func (c *SessionController) dropCaptureLocked(s *activeSession, message string) func() {
	capture := c.capture
	c.capture = nil
	finish := c.failLocked(s, domain.ErrorCodeMicrophone, message)
	return func() {
		if finish != nil {
			finish()
		}
		if capture != nil {
			if err := capture.Stop(); err != nil {
				s.log.Debug().Err(err).Msg("release failed capture")
			}
		}
	}
}

// failLocked surfaces an error, passes through connection_error and tears
// the session down without waiting for Closed.
func (c *SessionController) failLocked(s *activeSession, code domain.ErrorCode, message string) func() {
	s.log.Error().Str("code", string(code)).Msg(message)
	if code == domain.ErrorCodeConnection {
		c.metrics.RecordConnectionError()
	}
	c.setMessageLocked(domain.MessageError, message)
	c.events.SessionError(code, message)
	c.events.SessionStateChanged(domain.Status{
		State:        domain.SessionStateConnectionError,
		SessionID:    s.id,
		Message:      message,
		MessageLevel: domain.MessageError,
	})

	conn := s.conn
	c.finishLocked(s, "error")
	c.emitStatusLocked()

	if conn == nil {
		return nil
	}
	return conn.Finish
}

// abortStart ends a session whose Start failed before a connection existed.
func (c *SessionController) abortStart(s *activeSession, err error) {
	code := domain.ErrorCodeConnection
	message := "Failed to open transcription connection."
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrDeviceUnavailable) {
		code = domain.ErrorCodeMicrophone
		message = "Microphone access denied or error. Please grant permission."
	}
	s.log.Error().Err(err).Msg("session start failed")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != s {
		return
	}
	c.finishLocked(s, "error")
	c.setMessageLocked(domain.MessageError, message)
	c.events.SessionError(code, err.Error())
	c.emitStatusLocked()
}

// finishLocked detaches the session. Capture emission and the keep-alive
// timer are halted synchronously; neither goroutine takes the controller
// lock, so waiting for them here cannot deadlock.
func (c *SessionController) finishLocked(s *activeSession, outcome string) {
	s.sending.Store(false)
	if c.capture != nil {
		c.capture.Pause()
	}
	s.keepAlive.stop()
	s.keepAlive = nil
	s.cancel()
	s.state = domain.SessionStateIdle
	c.current = nil
	c.metrics.RecordSessionEnd(outcome)
}

func (c *SessionController) restingStateLocked() domain.SessionState {
	switch c.keyState {
	case keyLoaded:
		return domain.SessionStateIdle
	case keyPending:
		return domain.SessionStateKeyPending
	default:
		return domain.SessionStateKeyUnavailable
	}
}

func (c *SessionController) statusLocked() domain.Status {
	status := domain.Status{
		State:        c.restingStateLocked(),
		Message:      c.message,
		MessageLevel: c.level,
	}
	if s := c.current; s != nil {
		status.State = s.state
		status.SessionID = s.id
	}
	status.Active = status.State.Active()
	status.CanStart = status.State == domain.SessionStateIdle
	return status
}

func (c *SessionController) setMessageLocked(level domain.MessageLevel, message string) {
	c.level = level
	c.message = message
}

func (c *SessionController) emitStatusLocked() {
	c.events.SessionStateChanged(c.statusLocked())
}

func (c *SessionController) emitTranscriptLocked() {
	c.events.TranscriptChanged(c.transcript.Final, c.transcript.Interim)
}
