package domain

import "errors"

// SessionState models the live transcription lifecycle.
type SessionState string

const (
	SessionStateKeyPending      SessionState = "key_pending"
	SessionStateKeyUnavailable  SessionState = "key_unavailable"
	SessionStateIdle            SessionState = "idle"
	SessionStateConnecting      SessionState = "connecting"
	SessionStateListening       SessionState = "listening"
	SessionStateStopping        SessionState = "stopping"
	SessionStateConnectionError SessionState = "connection_error"
)

// Active reports whether a connection is owned in this state.
func (s SessionState) Active() bool {
	switch s {
	case SessionStateConnecting, SessionStateListening, SessionStateStopping:
		return true
	default:
		return false
	}
}

// MessageLevel classifies user-facing status messages.
type MessageLevel string

const (
	MessageInfo    MessageLevel = "info"
	MessageSuccess MessageLevel = "success"
	MessageError   MessageLevel = "error"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeKey        ErrorCode = "key"
	ErrorCodeMicrophone ErrorCode = "microphone"
	ErrorCodeConnection ErrorCode = "connection"
	ErrorCodeCorrection ErrorCode = "correction"
	ErrorCodeClipboard  ErrorCode = "clipboard"
)

var (
	ErrKeyNotConfigured  = errors.New("api key is not configured")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// Status summarizes the current runtime status.
type Status struct {
	State        SessionState `json:"state"`
	SessionID    string       `json:"sessionId,omitempty"`
	Active       bool         `json:"active"`
	CanStart     bool         `json:"canStart"`
	Message      string       `json:"message,omitempty"`
	MessageLevel MessageLevel `json:"messageLevel,omitempty"`
}

// SessionConfig selects the backend model and features for one connection.
type SessionConfig struct {
	Model       string `json:"model"`
	Language    string `json:"language"`
	FillerWords bool   `json:"fillerWords"`
	Diarize     bool   `json:"diarize"`
}

// Valid reports whether the config can be used to open a connection.
func (c SessionConfig) Valid() bool {
	return c.Model != "" && c.Language != ""
}
