package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/domain"
)

var errSessionClosed = errors.New("deepgram session closed")

type liveSession struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events  chan domain.TranscriptEvent
	audio   chan []byte
	closing chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	writeMu       sync.Mutex
	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func startSession(ctx context.Context, conn *websocket.Conn, keepAlive time.Duration) *liveSession {
	s := &liveSession{
		conn:      conn,
		keepAlive: keepAlive,
		events:    make(chan domain.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s
}

func (s *liveSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSessionClosed
	}
}

func (s *liveSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *liveSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *liveSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *liveSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	select {
	case <-s.closing:
		// Errors caused by a local Close are not session failures.
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveSession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				return
			}
			ticker.Reset(s.keepAlive)
		case <-ticker.C:
			if err := s.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				s.setErr(fmt.Errorf("failed to send keepalive: %w", err))
				return
			}
		case <-s.closing:
			return
		}
	}
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		case strings.EqualFold(msg.Type, "UtteranceEnd"):
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, IsSpeechFinal: true})
			continue
		}

		event, ok := msg.event()
		if !ok {
			continue
		}
		s.emit(event)
	}
}

// emit blocks until the consumer takes the event so final segments are
// never dropped; a local Close unblocks it.
func (s *liveSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.closing:
	}
}
