package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"livescribe/internal/bootstrap"
	"livescribe/internal/domain"
	"livescribe/internal/ports"
	"livescribe/internal/transcript"
	"livescribe/internal/usecase"
)

const (
	eventStatus     = "livescribe:status"
	eventTranscript = "livescribe:transcript"
	eventError      = "livescribe:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services  bootstrap.Services
	clipboard ports.Clipboard
	bootErr   error

	// diarize mirrors the controller setting for rendering inside sink
	// callbacks, which must not call back into the controller.
	diarize atomic.Bool
}

func NewApp() *App {
	return &App{clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
	a.diarize.Store(services.Config.Session.Diarize)

	go func() {
		_ = services.Controller.LoadKey(ctx)
	}()
}

func (a *App) shutdown(_ context.Context) {
	_ = a.services.Close()
}

// Start opens a transcription session.
func (a *App) Start() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil && !errors.Is(err, usecase.ErrSessionActive) {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// Stop requests a graceful end of the active session.
func (a *App) Stop() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Stop(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// Toggle starts or stops depending on the current state.
func (a *App) Toggle() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.Toggle(a.ctx)
	return a.services.Controller.Status(), err
}

// RetryKey fetches the transcription key again after a failure.
func (a *App) RetryKey() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.LoadKey(a.ctx)
	return a.services.Controller.Status(), err
}

// GetOptions lists the selectable model and language presets.
func (a *App) GetOptions() []domain.TranscriptionOption {
	return domain.TranscriptionOptions()
}

// Selection is the current option and diarization setting.
type Selection struct {
	Option  string `json:"option"`
	Diarize bool   `json:"diarize"`
}

func (a *App) GetSelection() Selection {
	if a.services.Controller == nil {
		return Selection{Option: domain.DefaultOptionKey}
	}
	option, diarize := a.services.Controller.Option()
	return Selection{Option: option.Key, Diarize: diarize}
}

func (a *App) SetOption(key string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SetOption(key)
}

func (a *App) SetDiarization(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.SetDiarization(enabled); err != nil {
		return err
	}
	a.diarize.Store(enabled)
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services.Controller == nil {
		if a.bootErr != nil {
			return domain.Status{
				State:        domain.SessionStateKeyUnavailable,
				Message:      a.bootErr.Error(),
				MessageLevel: domain.MessageError,
			}
		}
		return domain.Status{State: domain.SessionStateKeyPending}
	}
	return a.services.Controller.Status()
}

// GetTranscript returns the rendered transcript.
func (a *App) GetTranscript() transcript.Rendered {
	if a.services.Controller == nil {
		return transcript.Rendered{}
	}
	return a.services.Controller.Rendered()
}

// FixTranscript rewrites the final transcript with the user's prompt.
func (a *App) FixTranscript(prompt string) (usecase.Correction, error) {
	if err := a.requireReady(); err != nil {
		return usecase.Correction{}, err
	}
	return a.services.Corrector.Correct(a.ctx, prompt)
}

// CopyTranscript writes the final transcript, or text when given, to the
// clipboard.
func (a *App) CopyTranscript(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if text == "" {
		text = transcript.PlainText(a.services.Controller.Transcript().Final)
	}
	if text == "" {
		return usecase.ErrEmptyTranscript
	}
	if err := a.clipboard.SetText(a.ctx, text); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits status updates to the frontend.
func (a *App) SessionStateChanged(status domain.Status) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, map[string]any{
		"status": status,
		"label":  stateLabel(status.State),
	})
}

// TranscriptChanged emits the rendered transcript.
func (a *App) TranscriptChanged(final []domain.Word, interim []domain.Word) {
	if a.ctx == nil {
		return
	}
	rendered := transcript.Render(transcript.State{Final: final, Interim: interim}, a.diarize.Load())
	runtime.EventsEmit(a.ctx, eventTranscript, rendered)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateLabel(state domain.SessionState) string {
	switch state {
	case domain.SessionStateKeyPending:
		return "Loading key"
	case domain.SessionStateKeyUnavailable:
		return "Key unavailable"
	case domain.SessionStateIdle:
		return "Start Listening"
	case domain.SessionStateConnecting:
		return "Connecting..."
	case domain.SessionStateListening:
		return "Stop Listening"
	case domain.SessionStateStopping:
		return "Stopping..."
	case domain.SessionStateConnectionError:
		return "Connection error"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeKey:
		return "API key unavailable"
	case domain.ErrorCodeMicrophone:
		return "Microphone access denied or error"
	case domain.ErrorCodeConnection:
		return "Connection error"
	case domain.ErrorCodeCorrection:
		return "Transcript correction failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
