package usecase

import (
	"strings"

	"rollcall/internal/domain"
)

// utteranceAssembler joins final segments until the provider marks the end
// of speech. It is owned by a single event loop.
type utteranceAssembler struct {
	segments []string
}

// Add records a final segment and returns the finished utterance once the
// event closes it.
func (a *utteranceAssembler) Add(event domain.TranscriptEvent) (string, bool) {
	if event.Kind != domain.TranscriptKindFinal {
		return "", false
	}
	if text := strings.TrimSpace(event.Text); text != "" {
		a.segments = append(a.segments, text)
	}
	if !event.IsSpeechFinal {
		return "", false
	}
	return a.Flush()
}

// Pending is what the view should show while interim text is arriving.
func (a *utteranceAssembler) Pending(interim string) string {
	parts := append(append([]string(nil), a.segments...), strings.TrimSpace(interim))
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Flush returns any accumulated text and starts a new utterance.
func (a *utteranceAssembler) Flush() (string, bool) {
	text := strings.TrimSpace(strings.Join(a.segments, " "))
	a.segments = a.segments[:0]
	return text, text != ""
}
