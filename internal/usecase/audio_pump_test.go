package usecase

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"rollcall/internal/domain"
)

func TestPumpAudioCopiesUntilEOF(t *testing.T) {
	t.Parallel()

	var got bytes.Buffer
	err := pumpAudio(bytes.NewReader(bytes.Repeat([]byte("a"), 1000)), func(chunk []byte) error {
		if len(chunk) > 256 {
			t.Fatalf("chunk larger than requested: %d", len(chunk))
		}
		got.Write(chunk)
		return nil
	}, 256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 1000 {
		t.Fatalf("expected 1000 bytes, got %d", got.Len())
	}
}

func TestPumpAudioReportsSendError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("abc"))
	err := pumpAudio(audio, func([]byte) error { return errors.New("send failed") }, 256)
	if err == nil || err.Error() != "failed to stream audio: send failed" {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestPumpAudioReportsReadError(t *testing.T) {
	t.Parallel()

	err := pumpAudio(&errorAudioSession{err: errors.New("read failed")}, func([]byte) error { return nil }, 256)
	if err == nil || err.Error() != "audio capture error: read failed" {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestPumpAudioTreatsClosedPipeAsEnd(t *testing.T) {
	t.Parallel()

	if err := pumpAudio(&errorAudioSession{err: os.ErrClosed}, func([]byte) error { return nil }, 256); err != nil {
		t.Fatalf("expected clean end, got %v", err)
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}
