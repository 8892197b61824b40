package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"rollcall/internal/ports"
)

// pumpAudio copies capture output to send in chunkSize pieces until the
// capture ends. A closed or exhausted capture is a clean end.
func pumpAudio(audio io.Reader, send func([]byte) error, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := send(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
