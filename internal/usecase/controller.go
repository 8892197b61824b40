package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rollcall/internal/attendee"
	"rollcall/internal/correct"
	"rollcall/internal/domain"
	"rollcall/internal/export"
	"rollcall/internal/observe"
	"rollcall/internal/ports"
)

var (
	ErrInvalidTransition = errors.New("operation not allowed in the current state")
	ErrNoAttendees       = errors.New("no attendees captured")
	ErrAttendeeNotFound  = errors.New("attendee not found")
	ErrNoActiveCapture   = errors.New("no active capture")
)

// CaptureMode selects how utterances are recognized.
type CaptureMode string

const (
	// CaptureModeStream transcribes live and records one entry per utterance.
	CaptureModeStream CaptureMode = "stream"
	// CaptureModeClip records until stopped and transcribes once.
	CaptureModeClip CaptureMode = "clip"
)

func ParseCaptureMode(value string) (CaptureMode, error) {
	switch CaptureMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", CaptureModeStream:
		return CaptureModeStream, nil
	case CaptureModeClip:
		return CaptureModeClip, nil
	default:
		return "", fmt.Errorf("unknown capture mode %q", value)
	}
}

// Config controls capture and session behavior.
type Config struct {
	Mode              CaptureMode
	Audio             ports.AudioConfig
	Streaming         ports.StreamingConfig
	ChunkSize         int
	RestartDelay      time.Duration
	MaxRestarts       int // 0 gives up on the first unexpected end
	CloseTimeout      time.Duration
	TranscribeTimeout time.Duration
	CompletionDelay   time.Duration
	ExportLayout      export.Layout
}

// Corrector cleans the whole attendee list in one pass. The result list is
// always usable, even when correction was skipped.
type Corrector interface {
	Correct(ctx context.Context, attendees []domain.Attendee) correct.Result
}

// ClipEncoder packs raw PCM into a clip the transcriber accepts.
type ClipEncoder func(pcm []byte, sampleRate, channels int) (ports.AudioClip, error)

// Dependencies are the collaborators of a SessionController. Streaming is
// required in stream mode; Clips and EncodeClip in clip mode.
type Dependencies struct {
	Audio            ports.AudioCapture
	Streaming        ports.TranscriptionProvider
	Clips            ports.ClipTranscriber
	ClipProviderName string
	EncodeClip       ClipEncoder
	Normalizer       ports.Normalizer
	Corrector        Corrector
	Events           ports.EventSink
	Logger           *slog.Logger
	Metrics          *observe.Metrics
	Now              func() time.Time
}

type capture interface {
	Stop() error
}

// SessionController owns the attendee list and the capture, review and
// export lifecycle. Events are emitted with the controller lock held, so
// sinks must not call back into the controller.
type SessionController struct {
	deps     Dependencies
	cfg      Config
	logger   *slog.Logger
	store    *attendee.Store
	recorder Recorder

	mu         sync.Mutex
	state      domain.SessionState
	reason     domain.SessionStateReason
	generation uint64
	starting   bool
	startLost  error
	capture    capture
	cancelWork context.CancelFunc
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if cfg.Mode == "" {
		cfg.Mode = CaptureModeStream
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 4 * time.Second
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}
	if cfg.RestartDelay < 0 {
		cfg.RestartDelay = 0
	}
	if cfg.ExportLayout == "" {
		cfg.ExportLayout = export.LayoutContact
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClipProviderName == "" {
		deps.ClipProviderName = "clip"
	}

	store := attendee.NewStore()
	return &SessionController{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		store:  store,
		recorder: NewRecorder(deps.Normalizer, store, deps.Logger, deps.Metrics),
		state:  domain.SessionStateIdle,
		reason: domain.SessionReasonReady,
	}
}

// Mode reports the configured capture strategy.
func (c *SessionController) Mode() CaptureMode {
	return c.cfg.Mode
}

// StartCapture acquires the microphone and begins recognizing utterances.
// ctx bounds the whole capture, not just the start call.
func (c *SessionController) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.SessionStateIdle || c.starting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("start capture while %s: %w", state, ErrInvalidTransition)
	}
	c.generation++
	gen := c.generation
	c.starting = true
	c.startLost = nil
	c.mu.Unlock()

	started, err := c.startCapture(ctx, &generationSink{c: c, gen: gen})
	return c.completeStart(gen, started, err)
}

// completeStart publishes the outcome of a capture start. A capture that
// died before it was published is released and reported like any other loss.
func (c *SessionController) completeStart(gen uint64, started capture, err error) error {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if started != nil {
			_ = started.Stop()
		}
		return fmt.Errorf("capture start interrupted by reset: %w", ErrInvalidTransition)
	}
	c.starting = false
	lostErr := c.startLost
	c.startLost = nil

	if err != nil {
		defer c.mu.Unlock()
		c.reportStartErrorLocked(err)
		return err
	}
	if lostErr != nil {
		c.lostLocked(lostErr)
		c.mu.Unlock()
		_ = started.Stop()
		return fmt.Errorf("capture ended during start: %w", lostErr)
	}
	defer c.mu.Unlock()

	c.capture = started
	c.setStateLocked(domain.SessionStateListening, domain.SessionReasonListening)
	c.logger.Info("capture started", "mode", c.cfg.Mode)
	return nil
}

func (c *SessionController) startCapture(ctx context.Context, sink *generationSink) (capture, error) {
	switch c.cfg.Mode {
	case CaptureModeClip:
		if c.deps.Clips == nil || c.deps.EncodeClip == nil {
			return nil, errors.New("clip transcription is not configured")
		}
		return startClipCapture(ctx, c.deps.Audio, c.cfg, c.logger)
	default:
		if c.deps.Streaming == nil {
			return nil, fmt.Errorf("%w: streaming transcription is not configured", errStreamStart)
		}
		return startStreamCapture(ctx, c.deps.Audio, c.deps.Streaming, c.cfg, sink, c.logger, c.deps.Metrics)
	}
}

func (c *SessionController) reportStartErrorLocked(err error) {
	c.logger.Warn("capture failed to start", "error", err)
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonPermissionDenied)
		c.deps.Events.SessionError(domain.ErrorCodePermission, err.Error())
	case errors.Is(err, domain.ErrCaptureUnsupported):
		c.deps.Events.SessionError(domain.ErrorCodeUnsupported, err.Error())
	case errors.Is(err, errStreamStart), errors.Is(err, domain.ErrMissingCredential):
		c.deps.Events.SessionError(domain.ErrorCodeTranscription, err.Error())
	default:
		c.deps.Events.SessionError(domain.ErrorCodeStartup, err.Error())
	}
}

// StopCapture releases the microphone. In clip mode it then transcribes
// the recording and returns once the entry, if any, has been appended.
func (c *SessionController) StopCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.SessionStateListening {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("stop capture while %s: %w", state, ErrInvalidTransition)
	}
	active := c.capture
	if active == nil {
		c.mu.Unlock()
		return ErrNoActiveCapture
	}
	c.capture = nil
	gen := c.generation
	c.mu.Unlock()

	if err := active.Stop(); err != nil {
		c.logger.Warn("failed to stop audio capture cleanly", "error", err)
		c.deps.Events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}

	clip, ok := active.(*clipCapture)
	if !ok {
		c.transition(gen, domain.SessionStateIdle, domain.SessionReasonCaptureStopped)
		return nil
	}
	return c.transcribeClip(ctx, gen, clip.PCM())
}

// ToggleCapture starts capture from Idle and stops it while Listening.
func (c *SessionController) ToggleCapture(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case domain.SessionStateIdle:
		return c.StartCapture(ctx)
	case domain.SessionStateListening:
		return c.StopCapture(ctx)
	default:
		return fmt.Errorf("toggle capture while %s: %w", state, ErrInvalidTransition)
	}
}

func (c *SessionController) transcribeClip(ctx context.Context, gen uint64, pcm []byte) error {
	workCtx, cancel, ok := c.beginWork(ctx, gen, domain.SessionStateTranscribing, domain.SessionReasonTranscribing)
	if !ok {
		return nil
	}
	defer cancel()

	text, err := c.transcribe(workCtx, pcm)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}

	reason := domain.SessionReasonNoTranscript
	if err != nil {
		c.logger.Warn("clip transcription failed; nothing recorded", "error", err)
	} else if _, recorded := c.recorder.Record(text, string(CaptureModeClip), c.deps.Now()); recorded {
		c.deps.Events.AttendeesChanged(c.store.Snapshot())
		reason = domain.SessionReasonCaptureStopped
	} else {
		c.logger.Info("clip transcription was empty; nothing recorded")
	}
	c.setStateLocked(domain.SessionStateIdle, reason)
	return nil
}

func (c *SessionController) transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	clip, err := c.deps.EncodeClip(pcm, c.cfg.Audio.SampleRate, c.cfg.Audio.Channels)
	if err != nil {
		return "", fmt.Errorf("encode clip: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.deps.Clips.TranscribeClip(ctx, clip)
	c.deps.Metrics.RecordProviderCall(ctx, c.deps.ClipProviderName, "transcribe", start, err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Finish runs the batch correction over the captured list and moves to
// Review. An empty list is rejected without calling the corrector.
func (c *SessionController) Finish(ctx context.Context) (correct.Outcome, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateIdle || c.starting {
		state := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("finish while %s: %w", state, ErrInvalidTransition)
	}
	if c.store.Len() == 0 {
		c.mu.Unlock()
		return "", ErrNoAttendees
	}
	gen := c.generation
	snapshot := c.store.Snapshot()
	c.mu.Unlock()

	workCtx, cancel, ok := c.beginWork(ctx, gen, domain.SessionStateProcessing, domain.SessionReasonProcessing)
	if !ok {
		return "", fmt.Errorf("finish interrupted: %w", ErrInvalidTransition)
	}
	defer cancel()

	result := c.deps.Corrector.Correct(workCtx, snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return result.Outcome, nil
	}

	c.store.Replace(result.Attendees)
	c.deps.Events.AttendeesChanged(c.store.Snapshot())
	reason := domain.SessionReasonCorrectionApplied
	if !result.Outcome.Applied() {
		reason = domain.SessionReasonCorrectionSkipped
		detail := string(result.Outcome)
		if result.Err != nil {
			detail = result.Err.Error()
		}
		c.deps.Events.SessionError(domain.ErrorCodeCorrection, detail)
	}
	c.setStateLocked(domain.SessionStateReview, reason)
	return result.Outcome, nil
}

// ContinueCapture leaves Review to capture more attendees.
func (c *SessionController) ContinueCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionStateReview {
		return fmt.Errorf("continue capture while %s: %w", c.state, ErrInvalidTransition)
	}
	c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonContinueCapture)
	return nil
}

// Export writes the reviewed list to path and, after the completion delay,
// moves to Completed. An empty path uses the dated default filename in the
// working directory; a directory path gets the default filename appended.
func (c *SessionController) Export(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateReview {
		state := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("export while %s: %w", state, ErrInvalidTransition)
	}
	gen := c.generation
	attendees := c.store.Snapshot()
	c.mu.Unlock()

	path = c.exportPath(path)
	workCtx, cancel, ok := c.beginWork(ctx, gen, domain.SessionStateSubmitting, domain.SessionReasonSubmitting)
	if !ok {
		return "", fmt.Errorf("export interrupted: %w", ErrInvalidTransition)
	}
	defer cancel()

	err := export.WriteFile(path, c.cfg.ExportLayout, attendees)
	c.deps.Metrics.RecordExport(workCtx, err)
	if err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.setStateLocked(domain.SessionStateReview, domain.SessionReasonExportFailed)
			c.deps.Events.SessionError(domain.ErrorCodeExport, err.Error())
		}
		c.mu.Unlock()
		return "", fmt.Errorf("export attendees: %w", err)
	}
	c.logger.Info("attendees exported", "path", path, "count", len(attendees), "layout", c.cfg.ExportLayout)

	if c.cfg.CompletionDelay > 0 {
		timer := time.NewTimer(c.cfg.CompletionDelay)
		select {
		case <-timer.C:
		case <-workCtx.Done():
			timer.Stop()
		}
	}
	c.transition(gen, domain.SessionStateCompleted, domain.SessionReasonExported)
	return path, nil
}

func (c *SessionController) exportPath(path string) string {
	path = strings.TrimSpace(path)
	name := export.Filename(c.deps.Now())
	if path == "" {
		return name
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, name)
	}
	return path
}

// Edit renames an attendee. The new name also replaces the raw input.
func (c *SessionController) Edit(id string, name string) error {
	return c.mutate(id, func() error { return c.store.Edit(id, name) })
}

// EditPhone replaces an attendee's phone. An empty phone clears it.
func (c *SessionController) EditPhone(id string, phone string) error {
	return c.mutate(id, func() error { return c.store.EditPhone(id, phone) })
}

func (c *SessionController) Remove(id string) error {
	return c.mutate(id, func() error { return c.store.Remove(id) })
}

func (c *SessionController) mutate(id string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case domain.SessionStateIdle, domain.SessionStateListening, domain.SessionStateReview:
	default:
		return fmt.Errorf("edit while %s: %w", c.state, ErrInvalidTransition)
	}

	if err := fn(); err != nil {
		if errors.Is(err, attendee.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAttendeeNotFound, id)
		}
		return err
	}
	c.deps.Events.AttendeesChanged(c.store.Snapshot())
	return nil
}

// Reset stops any capture, discards in-flight results, clears the list
// and returns to Idle. It is allowed from every state and returns after
// the microphone has been released.
func (c *SessionController) Reset() {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	active := c.capture
	c.capture = nil
	c.starting = false
	if c.cancelWork != nil {
		c.cancelWork()
		c.cancelWork = nil
	}
	c.mu.Unlock()

	if active != nil {
		if err := active.Stop(); err != nil {
			c.logger.Warn("failed to stop audio capture during reset", "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.store.Clear()
	c.deps.Events.AttendeesChanged([]domain.Attendee{})
	c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonReset)
	c.logger.Info("session reset")
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		State:     c.state,
		Active:    c.state.Busy(),
		Attendees: c.store.Len(),
		Message:   string(c.reason),
	}
}

// Attendees returns a snapshot of the current list.
func (c *SessionController) Attendees() []domain.Attendee {
	return c.store.Snapshot()
}

// beginWork enters a busy state for an external call. The returned context
// is cancelled by Reset.
func (c *SessionController) beginWork(
	ctx context.Context,
	gen uint64,
	state domain.SessionState,
	reason domain.SessionStateReason,
) (context.Context, context.CancelFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil, nil, false
	}
	workCtx, cancel := context.WithCancel(ctx)
	c.cancelWork = cancel
	c.setStateLocked(state, reason)
	return workCtx, cancel, true
}

func (c *SessionController) transition(gen uint64, state domain.SessionState, reason domain.SessionStateReason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.setStateLocked(state, reason)
	return true
}

func (c *SessionController) setStateLocked(state domain.SessionState, reason domain.SessionStateReason) {
	c.state = state
	c.reason = reason
	c.deps.Events.SessionStateChanged(state, reason)
}

// generationSink routes capture output into the controller for one
// session generation and drops it once the session has been reset.
type generationSink struct {
	c   *SessionController
	gen uint64
}

func (s *generationSink) partial(text string) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.gen != s.c.generation {
		return
	}
	s.c.deps.Events.PartialTranscript(text)
}

func (s *generationSink) utterance(text string) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.gen != c.generation {
		return
	}
	if _, ok := c.recorder.Record(text, string(CaptureModeStream), c.deps.Now()); ok {
		c.deps.Events.AttendeesChanged(c.store.Snapshot())
	}
}

func (s *generationSink) lost(err error) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.gen != c.generation {
		return
	}
	if c.starting {
		c.startLost = err
		return
	}
	if c.capture == nil {
		return
	}
	c.capture = nil
	c.lostLocked(err)
}

func (c *SessionController) lostLocked(err error) {
	c.logger.Warn("capture lost", "error", err)

	if errors.Is(err, domain.ErrPermissionDenied) {
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonPermissionDenied)
		c.deps.Events.SessionError(domain.ErrorCodePermission, err.Error())
		return
	}
	c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonCaptureLost)
	c.deps.Events.SessionError(domain.ErrorCodeAudioStream, err.Error())
}
