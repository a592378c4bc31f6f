package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"livescribe/internal/domain"
)

func TestSessionControllerStartStopLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{OptionKey: "nova2-de", Diarize: true})
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	status := h.controller.Status()
	if status.State != domain.SessionStateConnecting || !status.Active || status.SessionID == "" {
		t.Fatalf("unexpected status after start: %+v", status)
	}
	conn := h.provider.last(t)
	want := domain.SessionConfig{Model: "nova-2", Language: "de", Diarize: true}
	if conn.cfg != want || conn.apiKey != "dg-key" {
		t.Fatalf("unexpected open parameters: %+v key=%q", conn.cfg, conn.apiKey)
	}
	if h.capture.streaming() {
		t.Fatalf("capture must not stream before the connection opens")
	}

	conn.emit(domain.OpenedEvent())
	if h.controller.Status().State != domain.SessionStateListening {
		t.Fatalf("expected listening")
	}
	if !h.capture.push([]byte("pcm")) || conn.sentCount() != 1 {
		t.Fatalf("expected chunk to be forwarded")
	}

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if h.controller.Status().State != domain.SessionStateStopping {
		t.Fatalf("expected stopping until closed")
	}
	if conn.finishCount() != 1 {
		t.Fatalf("expected finish to be requested")
	}

	conn.emit(domain.ClosedEvent())
	status = h.controller.Status()
	if status.State != domain.SessionStateIdle || status.Active || !status.CanStart {
		t.Fatalf("unexpected status after close: %+v", status)
	}
	if h.capture.streaming() {
		t.Fatalf("capture still streaming after teardown")
	}

	states := h.events.snapshotStates()
	wantStates := []domain.SessionState{
		domain.SessionStateKeyPending,
		domain.SessionStateIdle,
		domain.SessionStateConnecting,
		domain.SessionStateListening,
		domain.SessionStateStopping,
		domain.SessionStateIdle,
	}
	if len(states) != len(wantStates) {
		t.Fatalf("unexpected transitions: %v", states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("transition %d: got %s, want %s (all: %v)", i, states[i], wantStates[i], states)
		}
	}
	if got := testutil.ToFloat64(h.metrics.SessionsActive); got != 0 {
		t.Fatalf("expected no active sessions, got %v", got)
	}
}

func TestSessionControllerInterimThenFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)

	conn.emit(domain.TranscriptEvent(false, domain.RawWord{Word: "hel", Confidence: 0.4}))
	if got := h.controller.Transcript(); len(got.Interim) != 1 || got.Interim[0].Text != "hel" {
		t.Fatalf("unexpected interim state: %+v", got)
	}

	conn.emit(domain.TranscriptEvent(true,
		domain.RawWord{Word: "hello", PunctuatedWord: "Hello", Confidence: 0.99},
		domain.RawWord{Word: "world", Confidence: 0.8},
	))
	got := h.controller.Transcript()
	if len(got.Final) != 2 || got.Final[0].Text != "Hello" || got.Final[1].Text != "world" {
		t.Fatalf("unexpected final words: %+v", got.Final)
	}
	if len(got.Interim) != 0 {
		t.Fatalf("expected empty interim, got %+v", got.Interim)
	}
	if got := testutil.ToFloat64(h.metrics.TranscriptsFinal); got != 1 {
		t.Fatalf("expected one final transcript metric, got %v", got)
	}
}

func TestSessionControllerStartWithoutKey(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrKeyNotLoaded) {
		t.Fatalf("expected ErrKeyNotLoaded, got %v", err)
	}
	if h.controller.Status().State != domain.SessionStateKeyPending {
		t.Fatalf("expected key_pending, got %s", h.controller.Status().State)
	}
	if h.provider.opened() != 0 || h.audio.acquireCalls() != 0 {
		t.Fatalf("no connection or capture expected without a key")
	}
}

func TestSessionControllerKeyNotConfiguredIsTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.keys.errs = []error{domain.ErrKeyNotConfigured}

	if err := h.controller.LoadKey(context.Background()); !errors.Is(err, domain.ErrKeyNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if err := h.controller.LoadKey(context.Background()); !errors.Is(err, domain.ErrKeyNotConfigured) {
		t.Fatalf("expected not configured on retry, got %v", err)
	}
	if h.keys.fetchCalls() != 1 {
		t.Fatalf("expected a single fetch, got %d", h.keys.fetchCalls())
	}

	status := h.controller.Status()
	if status.State != domain.SessionStateKeyUnavailable || status.CanStart {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrKeyNotLoaded) {
		t.Fatalf("expected start to be rejected, got %v", err)
	}
	if h.provider.opened() != 0 || h.audio.acquireCalls() != 0 {
		t.Fatalf("no connection or capture expected without a key")
	}
}

func TestSessionControllerKeyFetchFailureIsRetryable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.keys.errs = []error{errors.New("network down")}

	if err := h.controller.LoadKey(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if h.controller.Status().State != domain.SessionStateKeyUnavailable {
		t.Fatalf("expected key_unavailable")
	}
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle after retry")
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeKey {
		t.Fatalf("expected one key error, got %+v", errs)
	}
}

func TestSessionControllerStartWhileListeningIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.listening(t)
	before := h.controller.Status()

	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if h.provider.opened() != 1 {
		t.Fatalf("expected a single connection, got %d", h.provider.opened())
	}
	if after := h.controller.Status(); after != before {
		t.Fatalf("status changed: %+v -> %+v", before, after)
	}
}

func TestSessionControllerStopBeforeOpened(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{KeepAliveInterval: 2 * time.Millisecond})
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	conn := h.provider.last(t)

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if conn.finishCount() != 1 {
		t.Fatalf("expected finish while connecting")
	}

	// A late open must not start capture or the keep-alive timer.
	conn.emit(domain.OpenedEvent())
	if h.capture.streaming() {
		t.Fatalf("capture started after stop")
	}
	conn.emit(domain.ClosedEvent())

	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle, got %s", h.controller.Status().State)
	}
	if h.capture.push([]byte("late")) {
		t.Fatalf("capture still emitting after teardown")
	}
	time.Sleep(20 * time.Millisecond)
	if conn.sentCount() != 0 || conn.keepAliveCount() != 0 {
		t.Fatalf("expected no traffic, sent=%d keepalives=%d", conn.sentCount(), conn.keepAliveCount())
	}
}

func TestSessionControllerStopDuringAcquisition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.audio.gate = make(chan struct{})
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- h.controller.Start(context.Background()) }()
	waitFor(t, time.Second, func() bool {
		return h.controller.Status().State == domain.SessionStateConnecting
	})

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	close(h.audio.gate)

	if err := <-result; !errors.Is(err, ErrStartAborted) {
		t.Fatalf("expected ErrStartAborted, got %v", err)
	}
	if h.provider.opened() != 0 {
		t.Fatalf("no connection expected after stop")
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle")
	}
}

func TestSessionControllerErrorMidSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{KeepAliveInterval: 2 * time.Millisecond})
	conn := h.listening(t)
	waitFor(t, time.Second, func() bool { return conn.keepAliveCount() > 0 })

	conn.emit(domain.ErrorEvent("socket reset"))

	if !h.events.sawState(domain.SessionStateConnectionError) {
		t.Fatalf("expected connection_error transition, got %v", h.events.snapshotStates())
	}
	status := h.controller.Status()
	if status.State != domain.SessionStateIdle || status.MessageLevel != domain.MessageError {
		t.Fatalf("unexpected status after error: %+v", status)
	}
	if h.capture.streaming() {
		t.Fatalf("capture still streaming after error")
	}
	if conn.finishCount() == 0 {
		t.Fatalf("expected errored connection to be finished")
	}

	pings := conn.keepAliveCount()
	time.Sleep(20 * time.Millisecond)
	if conn.keepAliveCount() != pings {
		t.Fatalf("keep-alive fired after error teardown")
	}

	// A Closed after Error belongs to the finished session.
	conn.emit(domain.ClosedEvent())

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	next := h.provider.last(t)
	if next == conn {
		t.Fatalf("expected a new connection")
	}
	next.emit(domain.OpenedEvent())
	if h.controller.Status().State != domain.SessionStateListening {
		t.Fatalf("expected listening after restart")
	}
	if h.audio.acquireCalls() != 1 {
		t.Fatalf("expected the held capture handle to be reused, got %d acquisitions", h.audio.acquireCalls())
	}
	if !h.capture.push([]byte("x")) || next.sentCount() != 1 || conn.sentCount() != 0 {
		t.Fatalf("chunk routed to wrong connection")
	}
}

func TestSessionControllerUnexpectedClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)
	conn.emit(domain.ClosedEvent())

	if !h.events.sawState(domain.SessionStateConnectionError) {
		t.Fatalf("expected connection_error transition")
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle")
	}
	errs := h.events.snapshotErrors()
	if len(errs) == 0 || errs[len(errs)-1].code != domain.ErrorCodeConnection {
		t.Fatalf("expected connection error event, got %+v", errs)
	}
}

func TestSessionControllerMicrophoneDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.audio.errs = []error{domain.ErrPermissionDenied}
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}

	err := h.controller.Start(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle after permission failure")
	}
	if h.provider.opened() != 0 {
		t.Fatalf("no connection expected")
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeMicrophone {
		t.Fatalf("expected microphone error, got %+v", errs)
	}

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if h.provider.opened() != 1 {
		t.Fatalf("expected connection on retry")
	}
}

func TestSessionControllerOpenedDuringOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.provider.openedOnOpen = true
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if h.controller.Status().State != domain.SessionStateListening {
		t.Fatalf("expected listening, got %s", h.controller.Status().State)
	}
	if !h.capture.push([]byte("x")) {
		t.Fatalf("expected capture streaming")
	}
}

func TestSessionControllerSynchronousCloseOnFinish(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)
	conn.closeOnFinish = true

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle")
	}
}

func TestSessionControllerForwardsTailWhileStopping(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Audio keeps flowing while the backend drains.
	h.capture.push([]byte("tail"))
	conn.emit(domain.ClosedEvent())

	if conn.sentCount() != 1 {
		t.Fatalf("expected tail chunk while stopping, got %d", conn.sentCount())
	}
	if got := testutil.ToFloat64(h.metrics.AudioChunksSent); got != 1 {
		t.Fatalf("unexpected sent metric: %v", got)
	}
}

func TestSessionControllerConfigurationLocked(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.controller.SetOption("nova2-fr"); err != nil {
		t.Fatalf("set option: %v", err)
	}
	if err := h.controller.SetOption("bogus"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}

	conn := h.listening(t)
	if conn.cfg.Language != "fr" {
		t.Fatalf("expected selected option in connection config, got %+v", conn.cfg)
	}
	if err := h.controller.SetOption("nova3-en"); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
	if err := h.controller.SetDiarization(true); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
	if option, diarize := h.controller.Option(); option.Key != "nova2-fr" || diarize {
		t.Fatalf("configuration changed during session: %s %v", option.Key, diarize)
	}
}

func TestSessionControllerRestartResetsTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)
	conn.emit(domain.TranscriptEvent(true, domain.RawWord{Word: "first"}))
	conn.closeOnFinish = true
	if err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(h.controller.Transcript().Final) != 1 {
		t.Fatalf("transcript must survive stop")
	}

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if got := h.controller.Transcript(); len(got.Final) != 0 || len(got.Interim) != 0 {
		t.Fatalf("expected reset transcript, got %+v", got)
	}
}

func TestSessionControllerToggle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle start: %v", err)
	}
	conn := h.provider.last(t)
	conn.emit(domain.OpenedEvent())
	if err := h.controller.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle stop: %v", err)
	}
	if h.controller.Status().State != domain.SessionStateStopping {
		t.Fatalf("expected stopping")
	}
}

func TestSessionControllerStopWithoutSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.controller.Stop(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSessionControllerCloseReleasesCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	conn := h.listening(t)
	if err := h.controller.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if conn.finishCount() != 1 {
		t.Fatalf("expected finish on close")
	}
	if h.capture.stopCalls != 1 {
		t.Fatalf("expected capture device released")
	}
	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle after close")
	}
}

func TestSessionControllerRenderedUsesDiarization(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Diarize: true})
	conn := h.listening(t)
	conn.emit(domain.TranscriptEvent(true, domain.RawWord{Word: "a", Speaker: domain.SpeakerID(1)}))
	conn.emit(domain.TranscriptEvent(false, domain.RawWord{Word: "b", Speaker: domain.SpeakerID(1)}))

	r := h.controller.Rendered()
	if len(r.Final) != 1 || !r.Final[0].ShowSpeaker {
		t.Fatalf("expected final speaker label")
	}
	if len(r.Interim) != 1 || r.Interim[0].ShowSpeaker {
		t.Fatalf("expected seam label suppressed")
	}
}

func TestNewSessionControllerRejectsUnknownOption(t *testing.T) {
	t.Parallel()

	_, err := NewSessionController(&fakeAudioSource{}, &fakeProvider{}, &fakeKeys{}, &fakeEventSink{}, Config{OptionKey: "nope"})
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestSessionControllerCaptureFailureMidSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.capture.failed = make(chan struct{})
	replacement := &fakeCapture{}
	h.audio.handles = append(h.audio.handles, replacement)
	conn := h.listening(t)

	close(h.capture.failed)

	waitFor(t, time.Second, func() bool { return h.controller.Status().State == domain.SessionStateIdle })
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeMicrophone {
		t.Fatalf("expected microphone error, got %+v", errs)
	}
	waitFor(t, time.Second, func() bool { return h.capture.stopCount() == 1 })
	if conn.finishCount() == 0 {
		t.Fatalf("expected connection to be finished")
	}

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	h.provider.last(t).emit(domain.OpenedEvent())
	if h.audio.acquireCalls() != 2 {
		t.Fatalf("expected a fresh acquisition, got %d", h.audio.acquireCalls())
	}
	if !replacement.streaming() {
		t.Fatalf("expected the new capture handle to stream")
	}
}

func TestSessionControllerStreamFailureDropsCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.capture.streamErr = errors.New("handle stopped")
	replacement := &fakeCapture{}
	h.audio.handles = append(h.audio.handles, replacement)
	if err := h.controller.LoadKey(context.Background()); err != nil {
		t.Fatalf("load key: %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.provider.last(t).emit(domain.OpenedEvent())

	if h.controller.Status().State != domain.SessionStateIdle {
		t.Fatalf("expected idle after stream failure")
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeMicrophone {
		t.Fatalf("expected microphone error, got %+v", errs)
	}
	if h.capture.stopCount() != 1 {
		t.Fatalf("expected dead handle to be stopped")
	}

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	h.provider.last(t).emit(domain.OpenedEvent())
	if h.controller.Status().State != domain.SessionStateListening || !replacement.streaming() {
		t.Fatalf("expected listening on a fresh handle")
	}
}
