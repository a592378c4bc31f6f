package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"livescribe/internal/domain"
	"livescribe/internal/observability/metrics"
	"livescribe/internal/ports"
)

type fakeAudioSource struct {
	mu      sync.Mutex
	handles []*fakeCapture
	errs    []error
	calls   int
	gate    chan struct{}
}

func (f *fakeAudioSource) Acquire(_ context.Context) (ports.CaptureHandle, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	if len(f.handles) == 0 {
		return nil, errors.New("no capture handle configured")
	}
	if call >= len(f.handles) {
		return f.handles[len(f.handles)-1], nil
	}
	return f.handles[call], nil
}

func (f *fakeAudioSource) acquireCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCapture struct {
	mu          sync.Mutex
	emit        func([]byte)
	streamCalls int
	pauseCalls  int
	stopCalls   int
	streamErr   error
	failed      chan struct{}
}

func (f *fakeCapture) Failed() <-chan struct{} {
	return f.failed
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func (f *fakeCapture) Stream(emit func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return f.streamErr
	}
	f.emit = emit
	f.streamCalls++
	return nil
}

func (f *fakeCapture) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emit = nil
	f.pauseCalls++
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emit = nil
	f.stopCalls++
	return nil
}

// push delivers a chunk the way a capture goroutine would. It reports
// whether emission was active.
func (f *fakeCapture) push(chunk []byte) bool {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(chunk)
	return true
}

func (f *fakeCapture) streaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emit != nil
}

type fakeProvider struct {
	mu           sync.Mutex
	conns        []*fakeConnection
	err          error
	openedOnOpen bool
}

func (f *fakeProvider) Open(_ context.Context, apiKey string, cfg domain.SessionConfig, onEvent func(domain.ConnectionEvent)) (ports.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	conn := &fakeConnection{apiKey: apiKey, cfg: cfg, onEvent: onEvent}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	if f.openedOnOpen {
		conn.emit(domain.OpenedEvent())
	}
	return conn, nil
}

func (f *fakeProvider) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeProvider) last(t *testing.T) *fakeConnection {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatalf("no connection opened")
	}
	return f.conns[len(f.conns)-1]
}

type fakeConnection struct {
	mu            sync.Mutex
	apiKey        string
	cfg           domain.SessionConfig
	onEvent       func(domain.ConnectionEvent)
	sent          [][]byte
	keepAlives    int
	finishCalls   int
	closeOnFinish bool
}

func (f *fakeConnection) Send(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), chunk...))
}

func (f *fakeConnection) KeepAlive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAlives++
}

func (f *fakeConnection) Finish() {
	f.mu.Lock()
	f.finishCalls++
	closeNow := f.closeOnFinish
	f.mu.Unlock()
	if closeNow {
		f.emit(domain.ClosedEvent())
	}
}

func (f *fakeConnection) emit(event domain.ConnectionEvent) {
	f.onEvent(event)
}

func (f *fakeConnection) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeConnection) keepAliveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepAlives
}

func (f *fakeConnection) finishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishCalls
}

type fakeKeys struct {
	mu    sync.Mutex
	keys  []string
	errs  []error
	calls int
}

func (f *fakeKeys) FetchKey(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if len(f.keys) == 0 {
		return "", nil
	}
	if call >= len(f.keys) {
		return f.keys[len(f.keys)-1], nil
	}
	return f.keys[call], nil
}

func (f *fakeKeys) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEventSink struct {
	mu sync.Mutex

	statuses    []domain.Status
	transcripts []transcriptEvent
	errors      []errEvent
}

type transcriptEvent struct {
	final   []domain.Word
	interim []domain.Word
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeEventSink) TranscriptChanged(final []domain.Word, interim []domain.Word) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, transcriptEvent{final: final, interim: interim})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionState, 0, len(f.statuses))
	for _, s := range f.statuses {
		out = append(out, s.State)
	}
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) sawState(state domain.SessionState) bool {
	for _, s := range f.snapshotStates() {
		if s == state {
			return true
		}
	}
	return false
}

type harness struct {
	controller *SessionController
	audio      *fakeAudioSource
	capture    *fakeCapture
	provider   *fakeProvider
	keys       *fakeKeys
	events     *fakeEventSink
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	capture := &fakeCapture{}
	h := &harness{
		audio:    &fakeAudioSource{handles: []*fakeCapture{capture}},
		capture:  capture,
		provider: &fakeProvider{},
		keys:     &fakeKeys{keys: []string{"dg-key"}},
		events:   &fakeEventSink{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = time.Hour
	}
	cfg.Metrics = h.metrics

	controller, err := NewSessionController(h.audio, h.provider, h.keys, h.events, cfg)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.controller = controller
	t.Cleanup(func() { _ = controller.Close() })
	return h
}

// listening loads the key, starts a session and delivers Opened.
func (h *harness) listening(t *testing.T) *fakeConnection {
	t.Helper()
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	conn := h.provider.last(t)
	conn.emit(domain.OpenedEvent())
	if got := h.controller.Status().State; got != domain.SessionStateListening {
		t.Fatalf("expected listening, got %s", got)
	}
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
