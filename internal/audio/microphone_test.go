package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

func TestMicrophoneStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	mic := NewMicrophone(script)

	session, err := mic.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestMicrophoneStartClassifiesEarlyExit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stderr string
		want   error
	}{
		{name: "permission", stderr: "default: Permission denied", want: domain.ErrPermissionDenied},
		{name: "macos privacy", stderr: "Operation not permitted", want: domain.ErrPermissionDenied},
		{name: "unknown format", stderr: "Unknown input format: 'pulse'", want: domain.ErrCaptureUnsupported},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho \""+tc.stderr+"\" 1>&2\nexit 1\n")
			_, err := NewMicrophone(script).Start(context.Background(), ports.AudioConfig{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMicrophoneStartGenericEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewMicrophone(script).Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrCaptureUnsupported) {
		t.Fatalf("generic failure misclassified: %v", err)
	}
}

func TestMicrophoneMissingCommandIsUnsupported(t *testing.T) {
	t.Parallel()

	mic := NewMicrophone(filepath.Join(t.TempDir(), "no-ffmpeg"))
	if _, err := mic.Start(context.Background(), ports.AudioConfig{}); !errors.Is(err, domain.ErrCaptureUnsupported) {
		t.Fatalf("expected ErrCaptureUnsupported, got %v", err)
	}
	if _, err := mic.Probe(); !errors.Is(err, domain.ErrCaptureUnsupported) {
		t.Fatalf("expected probe to fail with ErrCaptureUnsupported, got %v", err)
	}
}

func TestDefaultInput(t *testing.T) {
	t.Parallel()

	for goos, want := range map[string]string{"linux": "pulse", "darwin": "avfoundation", "windows": "dshow"} {
		if format, device := DefaultInput(goos); format != want || device == "" {
			t.Fatalf("DefaultInput(%q) = %q, %q", goos, format, device)
		}
	}
}

func TestIgnoreExitStatus(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := ignoreExitStatus(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	other := errors.New("pipe broken")
	if got := ignoreExitStatus(other); got != other {
		t.Fatalf("expected other errors to pass through, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
