package deepgram

import (
	"strings"

	"rollcall/internal/domain"
)

type alternative struct {
	Transcript string `json:"transcript"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(m.Results.Channels) > 0 && len(m.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(m.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

// event converts a Results message. A speech_final result with no words is
// still reported so the consumer can close the utterance.
func (m listenMessage) event() (domain.TranscriptEvent, bool) {
	text := m.transcript()
	if text == "" && !m.SpeechFinal {
		return domain.TranscriptEvent{}, false
	}

	event := domain.TranscriptEvent{Text: text, IsSpeechFinal: m.SpeechFinal, Kind: domain.TranscriptKindPartial}
	if m.IsFinal || m.SpeechFinal {
		event.Kind = domain.TranscriptKindFinal
	}
	return event, true
}
