package transcript

import "livescribe/internal/domain"

// ConfidenceTier buckets a word confidence for styling.
type ConfidenceTier string

const (
	TierHigh    ConfidenceTier = "high"
	TierMedium  ConfidenceTier = "medium"
	TierLow     ConfidenceTier = "low"
	TierVeryLow ConfidenceTier = "very_low"
)

func TierFor(confidence float64) ConfidenceTier {
	switch {
	case confidence > 0.9:
		return TierHigh
	case confidence > 0.7:
		return TierMedium
	case confidence > 0.5:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Segment is one rendered word.
type Segment struct {
	Word        domain.Word    `json:"word"`
	Tier        ConfidenceTier `json:"tier"`
	ShowSpeaker bool           `json:"showSpeaker"`
}

// Rendered is the display form of a State.
type Rendered struct {
	Final   []Segment `json:"final"`
	Interim []Segment `json:"interim"`
}

// Render derives speaker labels and confidence tiers. Labels are tracked
// separately for the final and interim sequences; the first interim label
// is suppressed when it repeats the last final speaker.
func Render(state State, diarize bool) Rendered {
	var lastFinal *int
	if n := len(state.Final); n > 0 {
		lastFinal = state.Final[n-1].Speaker
	}
	return Rendered{
		Final:   renderSequence(state.Final, diarize, nil, false),
		Interim: renderSequence(state.Interim, diarize, lastFinal, true),
	}
}

func renderSequence(words []domain.Word, diarize bool, seam *int, checkSeam bool) []Segment {
	segments := make([]Segment, 0, len(words))
	var last *int
	for i, w := range words {
		show := diarize && w.Speaker != nil && !sameSpeaker(w.Speaker, last)
		if show && i == 0 && checkSeam && sameSpeaker(w.Speaker, seam) {
			show = false
		}
		last = w.Speaker
		segments = append(segments, Segment{
			Word:        w,
			Tier:        TierFor(w.Confidence),
			ShowSpeaker: show,
		})
	}
	return segments
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
