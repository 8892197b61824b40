package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rollcall/internal/domain"
	"rollcall/internal/observe"
	"rollcall/internal/ports"
)

var (
	errStreamStart  = errors.New("transcription stream failed to start")
	errCaptureEnded = errors.New("capture ended unexpectedly")
)

// captureSink receives capture output. Implementations drop output that
// belongs to a session that has since been reset.
type captureSink interface {
	partial(text string)
	utterance(text string)
	lost(err error)
}

type streamPair struct {
	audio  ports.AudioSession
	stream ports.StreamingSession
}

func (p *streamPair) close() {
	_ = p.audio.Stop()
	_ = p.stream.Close()
}

// streamCapture keeps a microphone and a streaming recognition session
// running until Stop, reopening both when either ends on its own.
type streamCapture struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	sink     captureSink
	logger   *slog.Logger
	metrics  *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	current  *streamPair
	stopping bool
}

func startStreamCapture(
	ctx context.Context,
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg Config,
	sink captureSink,
	logger *slog.Logger,
	metrics *observe.Metrics,
) (*streamCapture, error) {
	captureCtx, cancel := context.WithCancel(ctx)
	sc := &streamCapture{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		ctx:      captureCtx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	pair, err := sc.open()
	if err != nil {
		cancel()
		return nil, err
	}
	sc.current = pair

	go sc.supervise(pair)
	return sc, nil
}

// open starts the provider session before the microphone so no audio is
// captured without somewhere to send it.
func (sc *streamCapture) open() (*streamPair, error) {
	stream, err := sc.provider.StartStreaming(sc.ctx, sc.cfg.Streaming)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStreamStart, err)
	}

	audio, err := sc.audio.Start(sc.ctx, sc.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return &streamPair{audio: audio, stream: stream}, nil
}

// Stop releases the microphone, lets the provider flush its last segment
// and waits for the final utterance to be delivered.
func (sc *streamCapture) Stop() error {
	sc.mu.Lock()
	if sc.stopping {
		sc.mu.Unlock()
		<-sc.done
		return nil
	}
	sc.stopping = true
	close(sc.stopCh)
	pair := sc.current
	sc.mu.Unlock()

	var stopErr error
	if pair != nil {
		stopErr = pair.audio.Stop()
	}

	timer := time.NewTimer(sc.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case <-sc.done:
	case <-timer.C:
		sc.logger.Warn("transcription stream did not close in time; dropping it")
		if pair != nil {
			_ = pair.stream.Close()
		}
		sc.cancel()
		<-sc.done
	}
	return stopErr
}

func (sc *streamCapture) isStopping() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stopping
}

// adopt makes pair current unless Stop already ran.
func (sc *streamCapture) adopt(pair *streamPair) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.stopping {
		return false
	}
	sc.current = pair
	return true
}

func (sc *streamCapture) supervise(pair *streamPair) {
	defer close(sc.done)
	defer sc.cancel()

	failures := 0
	for {
		heard, err := sc.run(pair)
		if sc.isStopping() {
			return
		}

		if heard {
			failures = 0
		} else {
			failures++
		}
		if errors.Is(err, domain.ErrPermissionDenied) {
			sc.sink.lost(err)
			return
		}
		if failures >= sc.cfg.MaxRestarts {
			sc.sink.lost(sc.giveUp(failures, err))
			return
		}

		sc.logger.Warn("capture ended while listening; restarting", "error", err, "failures", failures)
		if pair = sc.reopen(&failures); pair == nil {
			return
		}
	}
}

// reopen retries open after the restart delay until it succeeds, Stop is
// called or the failure budget is spent.
func (sc *streamCapture) reopen(failures *int) *streamPair {
	for {
		select {
		case <-sc.stopCh:
			return nil
		case <-time.After(sc.cfg.RestartDelay):
		}

		pair, err := sc.open()
		if err == nil {
			if !sc.adopt(pair) {
				pair.close()
				return nil
			}
			sc.metrics.RecordRestart(sc.ctx, "ok")
			sc.logger.Info("capture restarted")
			return pair
		}

		sc.metrics.RecordRestart(sc.ctx, "error")
		if sc.isStopping() {
			return nil
		}
		*failures++
		if errors.Is(err, domain.ErrPermissionDenied) {
			sc.sink.lost(err)
			return nil
		}
		if *failures >= sc.cfg.MaxRestarts {
			sc.sink.lost(sc.giveUp(*failures, err))
			return nil
		}
		sc.logger.Warn("capture restart failed", "error", err, "failures", *failures)
	}
}

func (sc *streamCapture) giveUp(failures int, err error) error {
	if err == nil {
		err = errCaptureEnded
	}
	return fmt.Errorf("capture stopped after %d failed attempts: %w", failures, err)
}

// run drives one microphone/provider pair until the provider closes its
// event stream. heard reports whether the provider produced anything.
func (sc *streamCapture) run(pair *streamPair) (heard bool, err error) {
	pumpDone := make(chan error, 1)
	go func() {
		pumpErr := pumpAudio(pair.audio, pair.stream.SendAudio, sc.cfg.ChunkSize)
		_ = pair.stream.CloseSend()
		pumpDone <- pumpErr
	}()

	var assembler utteranceAssembler
	for event := range pair.stream.Events() {
		heard = true
		if event.Kind == domain.TranscriptKindPartial {
			if text := assembler.Pending(event.Text); text != "" {
				sc.sink.partial(text)
			}
			continue
		}
		if text, ok := assembler.Add(event); ok {
			sc.sink.utterance(text)
		}
	}
	if text, ok := assembler.Flush(); ok {
		sc.sink.utterance(text)
	}

	streamErr := waitForStream(pair.stream, sc.cfg.CloseTimeout)
	_ = pair.audio.Stop()
	pumpErr := <-pumpDone

	return heard, errors.Join(streamErr, pumpErr)
}
