package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rollcall/internal/config"
	"rollcall/internal/domain"
	"rollcall/internal/ports"
	"rollcall/internal/usecase"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ROLLCALL_CONFIG", "")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Corrector == nil || services.Microphone == nil {
		t.Fatalf("expected assembled services: %+v", services)
	}
	if services.Controller.Mode() != usecase.CaptureModeStream {
		t.Fatalf("unexpected mode %s", services.Controller.Mode())
	}
	if status := services.Controller.Status(); status.State != domain.SessionStateIdle {
		t.Fatalf("unexpected initial status: %+v", status)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("ROLLCALL_CONFIG", "")
	t.Setenv("ROLLCALL_RULES_FILE", rules)

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildFailsOnUnknownLLMProvider(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ROLLCALL_CONFIG", "")
	t.Setenv("ROLLCALL_LLM_PROVIDER", "skynet")

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected build error due to unknown provider")
	}
}

func TestCompletionProviderReportsMissingCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	for _, cfg := range []config.LLMConfig{
		{Provider: "gemini"},
		{Provider: "openai"},
		{Provider: "groq", Model: "llama-3.1-8b-instant"},
	} {
		factory, err := CompletionProvider(cfg)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", cfg.Provider, err)
		}
		if _, err := factory(); !errors.Is(err, domain.ErrMissingCredential) {
			t.Fatalf("%s: expected ErrMissingCredential, got %v", cfg.Provider, err)
		}
	}
}

func TestCompletionProviderResolvesKeyAtCallTime(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	factory, err := CompletionProvider(config.LLMConfig{Provider: "openai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := factory(); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected missing credential before the key is set, got %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "late-key")
	if provider, err := factory(); err != nil || provider == nil {
		t.Fatalf("expected provider once the key is set, got %v", err)
	}
}

func TestCompletionProviderRequiresModelForGenericBackends(t *testing.T) {
	if _, err := CompletionProvider(config.LLMConfig{Provider: "mistral"}); err == nil {
		t.Fatalf("expected model requirement error")
	}
	if _, err := CompletionProvider(config.LLMConfig{Provider: "ollama", Model: "llama3.2"}); err != nil {
		t.Fatalf("local backend should not need a key: %v", err)
	}
}

func TestClipTranscriberWithoutKeyFailsAtCallTime(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	transcriber := ClipTranscriber(config.Config{
		LLM:     config.LLMConfig{Provider: "gemini"},
		Capture: config.CaptureConfig{ClipProvider: "gemini"},
	})
	_, err := transcriber.TranscribeClip(context.Background(), ports.AudioClip{Data: []byte("RIFF"), MIMEType: "audio/wav"})
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(_ domain.SessionState, _ domain.SessionStateReason) {}
func (noopEventSink) PartialTranscript(_ string)                                             {}
func (noopEventSink) AttendeesChanged(_ []domain.Attendee)                                   {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)                              {}
