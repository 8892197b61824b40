package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"rollcall/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonReady:             "Ready",
		domain.SessionReasonListening:         "Listening...",
		domain.SessionReasonCaptureStopped:    "Capture stopped",
		domain.SessionReasonCaptureLost:       "Microphone connection lost",
		domain.SessionReasonPermissionDenied:  "Microphone access denied",
		domain.SessionReasonTranscribing:      "Transcribing...",
		domain.SessionReasonNoTranscript:      "No speech recognized",
		domain.SessionReasonProcessing:        "Processing attendees...",
		domain.SessionReasonCorrectionApplied: "Names processed. Please review.",
		domain.SessionReasonCorrectionSkipped: "Correction unavailable; showing entries as captured",
		domain.SessionReasonContinueCapture:   "Continue capturing",
		domain.SessionReasonSubmitting:        "Exporting...",
		domain.SessionReasonExportFailed:      "Export failed",
		domain.SessionReasonExported:          "Export complete",
		domain.SessionReasonReset:             "Session reset",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodePermission:    "Microphone permission denied",
		domain.ErrorCodeUnsupported:   "Audio capture is not supported here",
		domain.ErrorCodeAudioStop:     "Audio stop issue",
		domain.ErrorCodeAudioStream:   "Audio streaming issue",
		domain.ErrorCodeTranscription: "Transcription error",
		domain.ErrorCodeCorrection:    "Correction unavailable",
		domain.ErrorCodeExport:        "Export failed",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.Finish(); !errors.Is(err, bootErr) {
		t.Fatalf("bound methods must surface the boot error, got %v", err)
	}
	if err := app.RemoveAttendee("a"); !errors.Is(err, bootErr) {
		t.Fatalf("bound methods must surface the boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.SessionStateIdle || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}
	if attendees := app.GetAttendees(); attendees == nil || len(attendees) != 0 {
		t.Fatalf("expected empty non-nil attendee list, got %#v", attendees)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.SessionStateError || status.Active || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestEventSinkEmitsPayloads(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{ctx: context.Background(), emit: rec.emit}

	app.SessionStateChanged(domain.SessionStateReview, domain.SessionReasonCorrectionApplied)
	app.PartialTranscript("Amy Coo")
	app.AttendeesChanged(nil)
	app.SessionError(domain.ErrorCodeExport, "disk full")

	events := rec.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	session, ok := events[0].data.(map[string]string)
	if events[0].name != eventSession || !ok || session["state"] != "review" || session["message"] != "Names processed. Please review." {
		t.Fatalf("unexpected session event: %+v", events[0])
	}
	partial, ok := events[1].data.(map[string]string)
	if events[1].name != eventPartial || !ok || partial["text"] != "Amy Coo" {
		t.Fatalf("unexpected partial event: %+v", events[1])
	}
	attendees, ok := events[2].data.([]domain.Attendee)
	if events[2].name != eventAttendees || !ok || attendees == nil {
		t.Fatalf("attendee event must carry a non-nil list: %+v", events[2])
	}
	errEvent, ok := events[3].data.(map[string]string)
	if events[3].name != eventError || !ok || errEvent["code"] != "export" || errEvent["detail"] != "disk full" {
		t.Fatalf("unexpected error event: %+v", events[3])
	}
}

func TestEventSinkIgnoresEventsBeforeStartup(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{emit: rec.emit}
	app.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
	app.SessionError(domain.ErrorCodeStartup, "boom")

	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events without a runtime context, got %d", len(events))
	}
}

type emittedEvent struct {
	name string
	data any
}

type emitRecorder struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (r *emitRecorder) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload any
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emittedEvent{name: name, data: payload})
}

func (r *emitRecorder) snapshot() []emittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emittedEvent(nil), r.events...)
}

func TestFrontendOffersResetOutsideDoneScreen(t *testing.T) {
	t.Parallel()

	raw, err := assets.ReadFile("frontend/dist/index.html")
	if err != nil {
		t.Fatalf("read embedded page: %v", err)
	}
	page := string(raw)

	reset := strings.Index(page, `id="reset"`)
	done := strings.Index(page, `<section id="done"`)
	if reset < 0 || done < 0 || reset > done {
		t.Fatalf("expected a reset button ahead of the done screen (reset=%d done=%d)", reset, done)
	}

	handler := strings.Index(page, `$("reset").onclick`)
	if handler < 0 || !strings.Contains(page[handler:], "api.Reset()") {
		t.Fatalf("reset button is not wired to Reset")
	}
	if !strings.Contains(page, `$("reset").disabled = !canReset(`) {
		t.Fatalf("reset button enablement is not driven by canReset")
	}

	start := strings.Index(page, "function canReset(")
	if start < 0 {
		t.Fatalf("canReset not found")
	}
	body := page[start:]
	body = body[:strings.Index(body, "}")]
	for _, busy := range []string{`"listening"`, `"processing"`, "n > 0"} {
		if !strings.Contains(body, busy) {
			t.Fatalf("canReset does not check %s: %s", busy, body)
		}
	}
}
