package domain

import (
	"errors"
	"time"
)

// SessionState models the capture/review/export lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateListening    SessionState = "listening"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateProcessing   SessionState = "processing"
	SessionStateReview       SessionState = "review"
	SessionStateSubmitting   SessionState = "submitting"
	SessionStateCompleted    SessionState = "completed"
	SessionStateError        SessionState = "error"
)

// Busy reports whether an external call or capture is in flight.
func (s SessionState) Busy() bool {
	switch s {
	case SessionStateListening, SessionStateTranscribing, SessionStateProcessing, SessionStateSubmitting:
		return true
	default:
		return false
	}
}

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady             SessionStateReason = "ready"
	SessionReasonListening         SessionStateReason = "listening"
	SessionReasonCaptureStopped    SessionStateReason = "capture_stopped"
	SessionReasonCaptureLost       SessionStateReason = "capture_lost"
	SessionReasonPermissionDenied  SessionStateReason = "permission_denied"
	SessionReasonTranscribing      SessionStateReason = "transcribing"
	SessionReasonNoTranscript      SessionStateReason = "no_transcript"
	SessionReasonProcessing        SessionStateReason = "processing"
	SessionReasonCorrectionApplied SessionStateReason = "correction_applied"
	SessionReasonCorrectionSkipped SessionStateReason = "correction_skipped"
	SessionReasonContinueCapture   SessionStateReason = "continue_capture"
	SessionReasonSubmitting        SessionStateReason = "submitting"
	SessionReasonExportFailed      SessionStateReason = "export_failed"
	SessionReasonExported          SessionStateReason = "exported"
	SessionReasonReset             SessionStateReason = "reset"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodePermission    ErrorCode = "permission"
	ErrorCodeUnsupported   ErrorCode = "unsupported"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeCorrection    ErrorCode = "correction"
	ErrorCodeExport        ErrorCode = "export"
)

var (
	// ErrPermissionDenied is returned when the operating system refuses
	// microphone access. It is never treated as transient.
	ErrPermissionDenied = errors.New("microphone access denied")

	// ErrCaptureUnsupported is returned when no capture tool or input format
	// is available on this platform.
	ErrCaptureUnsupported = errors.New("audio capture is not supported on this system")

	// ErrMissingCredential is returned when an external service has no API key.
	ErrMissingCredential = errors.New("api credential is not configured")
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Attendee is one captured person entry.
type Attendee struct {
	ID             string    `json:"id"`
	RawInput       string    `json:"rawInput"`
	FormattedName  string    `json:"formattedName"`
	FormattedPhone string    `json:"formattedPhone,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	Attendees int          `json:"attendees"`
	Message   string       `json:"message,omitempty"`
}
