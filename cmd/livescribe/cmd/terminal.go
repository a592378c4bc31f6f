package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"livescribe/internal/domain"
	"livescribe/internal/transcript"
)

// terminalSink prints controller events as plain lines. Final words are
// printed once as they arrive; interim text is shown only in verbose mode.
type terminalSink struct {
	mu       sync.Mutex
	out      io.Writer
	interim  bool
	printed  int
	lastText string
	states   chan domain.Status
}

func newTerminalSink(out io.Writer, interim bool) *terminalSink {
	return &terminalSink{out: out, interim: interim, states: make(chan domain.Status, 16)}
}

func (s *terminalSink) SessionStateChanged(status domain.Status) {
	s.mu.Lock()
	if status.Message != "" {
		fmt.Fprintf(s.out, "[%s] %s\n", status.State, status.Message)
	}
	s.mu.Unlock()

	select {
	case s.states <- status:
	default:
	}
}

func (s *terminalSink) TranscriptChanged(final []domain.Word, interim []domain.Word) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(final) < s.printed {
		s.printed = 0
	}
	if fresh := transcript.PlainText(final[s.printed:]); fresh != "" {
		fmt.Fprintln(s.out, fresh)
	}
	s.printed = len(final)

	if !s.interim {
		return
	}
	text := transcript.PlainText(interim)
	if text != "" && text != s.lastText {
		fmt.Fprintf(s.out, "  ... %s\n", text)
	}
	s.lastText = text
}

func (s *terminalSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "error (%s): %s\n", code, strings.TrimSpace(detail))
}
