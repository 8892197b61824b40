package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"rollcall/internal/bootstrap"
	"rollcall/internal/config"
	"rollcall/internal/domain"
	"rollcall/internal/export"
	"rollcall/internal/usecase"
)

const (
	eventSession   = "rollcall:session"
	eventPartial   = "rollcall:partial"
	eventAttendees = "rollcall:attendees"
	eventError     = "rollcall:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error

	// emit is runtime.EventsEmit outside tests.
	emit func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		a.SessionStateChanged(domain.SessionStateError, "")
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

// shutdown releases the microphone if the window closes mid-capture.
func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Reset()
	}
}

// ToggleCapture starts or stops capture, as the microphone button does.
func (a *App) ToggleCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.ToggleCapture(a.ctx)
	return a.controller.Status(), err
}

// StartCapture begins capturing attendees.
func (a *App) StartCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.StartCapture(a.ctx)
	return a.controller.Status(), err
}

// StopCapture releases the microphone.
func (a *App) StopCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.StopCapture(a.ctx)
	if errors.Is(err, usecase.ErrNoActiveCapture) {
		err = nil
	}
	return a.controller.Status(), err
}

// Finish corrects the captured list and opens review.
func (a *App) Finish() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	_, err := a.controller.Finish(a.ctx)
	return a.controller.Status(), err
}

// ContinueCapture leaves review to capture more attendees.
func (a *App) ContinueCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.ContinueCapture()
	return a.controller.Status(), err
}

// Export asks where to save the CSV and writes it. An empty path means the
// dialog was cancelled.
func (a *App) Export() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:            "Export attendance",
		DefaultDirectory: a.cfg.Export.Directory,
		DefaultFilename:  export.Filename(time.Now()),
		Filters:          []runtime.FileFilter{{DisplayName: "CSV files (*.csv)", Pattern: "*.csv"}},
	})
	if err != nil {
		return "", fmt.Errorf("save dialog: %w", err)
	}
	if path == "" {
		return "", nil
	}
	return a.controller.Export(a.ctx, path)
}

func (a *App) EditAttendee(id string, name string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Edit(id, name)
}

func (a *App) EditAttendeePhone(id string, phone string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.EditPhone(id, phone)
}

func (a *App) RemoveAttendee(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Remove(id)
}

// Reset clears the session from any state.
func (a *App) Reset() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.Reset()
	return a.controller.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetAttendees returns the current list.
func (a *App) GetAttendees() []domain.Attendee {
	if a.controller == nil {
		return []domain.Attendee{}
	}
	return a.controller.Attendees()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"captureMode":      a.cfg.Capture.Mode,
		"llmProvider":      a.cfg.LLM.Provider,
		"llmModel":         a.cfg.LLM.Model,
		"exportLayout":     a.cfg.Export.Layout,
		"rulesFile":        a.cfg.Normalize.RulesFile,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
	if a.cfg.Capture.Mode == string(usecase.CaptureModeClip) {
		info["transcriber"] = a.cfg.Capture.ClipProvider
	} else {
		info["transcriber"] = "deepgram"
		info["model"] = a.cfg.Deepgram.Model
		info["language"] = a.cfg.Deepgram.Language
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// PartialTranscript emits live partial transcript text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventPartial, map[string]string{"text": text})
}

// AttendeesChanged emits the whole list after every change.
func (a *App) AttendeesChanged(attendees []domain.Attendee) {
	if a.ctx == nil {
		return
	}
	if attendees == nil {
		attendees = []domain.Attendee{}
	}
	a.emit(a.ctx, eventAttendees, attendees)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonListening:
		return "Listening..."
	case domain.SessionReasonCaptureStopped:
		return "Capture stopped"
	case domain.SessionReasonCaptureLost:
		return "Microphone connection lost"
	case domain.SessionReasonPermissionDenied:
		return "Microphone access denied"
	case domain.SessionReasonTranscribing:
		return "Transcribing..."
	case domain.SessionReasonNoTranscript:
		return "No speech recognized"
	case domain.SessionReasonProcessing:
		return "Processing attendees..."
	case domain.SessionReasonCorrectionApplied:
		return "Names processed. Please review."
	case domain.SessionReasonCorrectionSkipped:
		return "Correction unavailable; showing entries as captured"
	case domain.SessionReasonContinueCapture:
		return "Continue capturing"
	case domain.SessionReasonSubmitting:
		return "Exporting..."
	case domain.SessionReasonExportFailed:
		return "Export failed"
	case domain.SessionReasonExported:
		return "Export complete"
	case domain.SessionReasonReset:
		return "Session reset"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Microphone permission denied"
	case domain.ErrorCodeUnsupported:
		return "Audio capture is not supported here"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeCorrection:
		return "Correction unavailable"
	case domain.ErrorCodeExport:
		return "Export failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
