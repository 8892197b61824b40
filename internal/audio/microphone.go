// Package audio captures microphone PCM through an ffmpeg subprocess and
// packages recordings as WAV clips.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

const (
	defaultSampleRate   = 16000
	defaultStartupGrace = 250 * time.Millisecond
	stopGrace           = 1200 * time.Millisecond
)

// Microphone starts ffmpeg capture sessions. Only one session should be held
// at a time; the caller owns the lease until Stop.
type Microphone struct {
	command      string
	startupGrace time.Duration
}

func NewMicrophone(command string) *Microphone {
	if command == "" {
		command = "ffmpeg"
	}
	return &Microphone{command: command, startupGrace: defaultStartupGrace}
}

// Command returns the capture executable.
func (m *Microphone) Command() string {
	return m.command
}

// Probe reports whether the capture executable can be found.
func (m *Microphone) Probe() (string, error) {
	path, err := exec.LookPath(m.command)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found", domain.ErrCaptureUnsupported, m.command)
	}
	return path, nil
}

// DefaultInput returns the ffmpeg input format and device for goos.
func DefaultInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	format, device := DefaultInput(runtime.GOOS)
	if cfg.InputFormat == "" {
		cfg.InputFormat = format
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = device
	}

	cmd := exec.CommandContext(ctx, m.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCaptureUnsupported, err)
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyStartErr(err, stderr.String())
	case <-time.After(m.startupGrace):
	}

	return &captureSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// classifyStartErr maps an early ffmpeg exit to the capture sentinels when
// its diagnostics say why.
func classifyStartErr(err error, diagnostics string) error {
	diagnostics = strings.TrimSpace(diagnostics)
	lower := strings.ToLower(diagnostics)

	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "not authorized"):
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, diagnostics)
	case strings.Contains(lower, "unknown input format"):
		return fmt.Errorf("%w: %s", domain.ErrCaptureUnsupported, diagnostics)
	case err != nil:
		return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, diagnostics)
	default:
		return errors.New("ffmpeg exited before capture started")
	}
}

type captureSession struct {
	stdout io.ReadCloser
	stderr *lockedBuffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg, escalating to kill after a grace period, and
// releases the device. It is idempotent.
func (s *captureSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = ignoreExitStatus(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = ignoreExitStatus(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil {
			if diag := strings.TrimSpace(s.stderr.String()); diag != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, diag)
			}
		}
	})
	return s.stopErr
}

func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer collects ffmpeg's stderr while the process is still writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
