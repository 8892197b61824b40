package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"rollcall/internal/ports"
)

// clipCapture buffers raw PCM from one microphone session for a single
// transcription call after Stop.
type clipCapture struct {
	session ports.AudioSession
	logger  *slog.Logger

	mu  sync.Mutex
	pcm bytes.Buffer

	done    chan struct{}
	pumpErr error
}

func startClipCapture(ctx context.Context, audio ports.AudioCapture, cfg Config, logger *slog.Logger) (*clipCapture, error) {
	session, err := audio.Start(ctx, cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	cc := &clipCapture{session: session, logger: logger, done: make(chan struct{})}
	go func() {
		defer close(cc.done)
		cc.pumpErr = pumpAudio(session, cc.append, cfg.ChunkSize)
	}()
	return cc, nil
}

func (cc *clipCapture) append(chunk []byte) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, err := cc.pcm.Write(chunk)
	return err
}

// Stop releases the microphone and waits until buffering has finished.
func (cc *clipCapture) Stop() error {
	err := cc.session.Stop()
	<-cc.done
	if cc.pumpErr != nil {
		cc.logger.Warn("clip recording ended with an error; keeping captured audio", "error", cc.pumpErr)
	}
	return err
}

// PCM returns a copy of everything captured so far.
func (cc *clipCapture) PCM() []byte {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return bytes.Clone(cc.pcm.Bytes())
}
