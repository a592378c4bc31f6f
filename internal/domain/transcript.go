package domain

// Word is one transcribed unit ready for display.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker,omitempty"`
}

// RawWord is a word as decoded from the recognition backend.
type RawWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Confidence     float64 `json:"confidence"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Speaker        *int    `json:"speaker,omitempty"`
}

// EventKind identifies a connection event variant.
type EventKind string

const (
	EventOpened       EventKind = "opened"
	EventTranscript   EventKind = "transcript"
	EventMetadata     EventKind = "metadata"
	EventUtteranceEnd EventKind = "utterance_end"
	EventError        EventKind = "error"
	EventClosed       EventKind = "closed"
)

// ConnectionEvent is the single event type emitted by a transcription connection.
type ConnectionEvent struct {
	Kind    EventKind
	IsFinal bool
	Words   []RawWord
	Message string
}

func OpenedEvent() ConnectionEvent { return ConnectionEvent{Kind: EventOpened} }

func ClosedEvent() ConnectionEvent { return ConnectionEvent{Kind: EventClosed} }

func ErrorEvent(message string) ConnectionEvent {
	return ConnectionEvent{Kind: EventError, Message: message}
}

func TranscriptEvent(isFinal bool, words ...RawWord) ConnectionEvent {
	return ConnectionEvent{Kind: EventTranscript, IsFinal: isFinal, Words: words}
}

// SpeakerID returns a pointer suitable for Word.Speaker.
func SpeakerID(id int) *int {
	return &id
}
