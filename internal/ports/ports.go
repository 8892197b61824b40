package ports

import (
	"context"
	"io"

	"github.com/google/jsonschema-go/jsonschema"

	"rollcall/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session. Stop releases the microphone.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioClip is a finalized recording ready for transcription.
type AudioClip struct {
	Data     []byte
	MIMEType string
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// ClipTranscriber turns one recorded clip into text. An empty string with a
// nil error means nothing intelligible was said.
type ClipTranscriber interface {
	TranscribeClip(ctx context.Context, clip AudioClip) (string, error)
}

// Message is one turn sent to a completion provider.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a single non-streaming completion call.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int

	// ResponseSchema, when set, asks the provider for JSON matching it.
	// Providers that cannot enforce the schema fall back to prompt-only JSON.
	ResponseSchema *jsonschema.Schema
}

// CompletionResponse carries the model's text output.
type CompletionResponse struct {
	Content string
}

// CompletionProvider is the abstraction over hosted language models.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Normalizer rewrites a recognized utterance before it is parsed.
type Normalizer interface {
	Apply(text string) (string, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(text string)
	AttendeesChanged(attendees []domain.Attendee)
	SessionError(code domain.ErrorCode, detail string)
}
