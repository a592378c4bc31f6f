package deepgram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"livescribe/internal/domain"
)

const utteranceEndMS = "3000"

type listenResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Message     string `json:"message"`
	Description string `json:"description"`

	Channel struct {
		Alternatives []struct {
			Transcript string           `json:"transcript"`
			Words      []domain.RawWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeEvent maps one server frame to a connection event. ok is false for
// frames that carry nothing the session consumes.
func decodeEvent(payload []byte) (domain.ConnectionEvent, bool, error) {
	var response listenResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return domain.ConnectionEvent{}, false, err
	}

	switch response.Type {
	case "Results":
		var words []domain.RawWord
		if len(response.Channel.Alternatives) > 0 {
			words = response.Channel.Alternatives[0].Words
		}
		return domain.TranscriptEvent(response.IsFinal, words...), true, nil
	case "Metadata":
		return domain.ConnectionEvent{Kind: domain.EventMetadata}, true, nil
	case "UtteranceEnd":
		return domain.ConnectionEvent{Kind: domain.EventUtteranceEnd}, true, nil
	case "Error":
		message := strings.TrimSpace(response.Message)
		if message == "" {
			message = strings.TrimSpace(response.Description)
		}
		if message == "" {
			message = "deepgram returned an unknown error"
		}
		return domain.ErrorEvent(message), true, nil
	case "":
		return domain.ConnectionEvent{}, false, fmt.Errorf("frame without type")
	default:
		return domain.ConnectionEvent{}, false, nil
	}
}

func buildListenURL(providerCfg Config, session domain.SessionConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := providerCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := providerCfg.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", session.Model)
	query.Set("language", session.Language)
	query.Set("interim_results", "true")
	query.Set("smart_format", "true")
	query.Set("utterance_end_ms", utteranceEndMS)
	if session.FillerWords {
		query.Set("filler_words", "true")
	}
	if session.Diarize {
		query.Set("diarize", "true")
	}
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
