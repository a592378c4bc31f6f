// Package transcript merges interim and final recognition results into
// display-ready word sequences.
package transcript

import (
	"strings"

	"livescribe/internal/domain"
)

// State is the reducer output for one session.
type State struct {
	Final   []domain.Word `json:"finalWords"`
	Interim []domain.Word `json:"interimWords"`
}

// Reset returns the empty state used at session start.
func Reset() State {
	return State{}
}

// Reduce applies one connection event. The input state is never mutated:
// callers may keep earlier snapshots.
func Reduce(state State, event domain.ConnectionEvent) State {
	if event.Kind != domain.EventTranscript {
		return state
	}

	words := MapWords(event.Words)
	if !event.IsFinal {
		return State{Final: state.Final, Interim: words}
	}

	final := state.Final
	if len(words) > 0 {
		final = make([]domain.Word, 0, len(state.Final)+len(words))
		final = append(final, state.Final...)
		final = append(final, words...)
	}
	return State{Final: final}
}

// MapWords converts backend words to display words.
func MapWords(raw []domain.RawWord) []domain.Word {
	if len(raw) == 0 {
		return nil
	}
	words := make([]domain.Word, 0, len(raw))
	for _, w := range raw {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		var speaker *int
		if w.Speaker != nil {
			speaker = domain.SpeakerID(*w.Speaker)
		}
		words = append(words, domain.Word{
			Text:       text,
			Confidence: w.Confidence,
			Speaker:    speaker,
		})
	}
	return words
}

// PlainText joins word texts with single spaces.
func PlainText(words []domain.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if text := strings.TrimSpace(w.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
