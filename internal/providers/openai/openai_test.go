package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests map[string][]byte
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	if f.requests == nil {
		f.requests = map[string][]byte{}
	}
	f.requests[r.URL.Path] = body
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"items\": []}"}}]
}`))
	case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
		_, _ = w.Write([]byte(`{"text": " Amy Cooper 5551234567 "}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, api *fakeAPI) *Provider {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestCompleteWrapsArraySchema(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	p := newTestProvider(t, api)

	resp, err := p.Complete(context.Background(), ports.CompletionRequest{
		SystemPrompt:   "fix names",
		Messages:       []ports.Message{{Role: "user", Content: "1. amy"}},
		ResponseSchema: &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "object"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != `{"items": []}` {
		t.Fatalf("unexpected content: %q", resp.Content)
	}

	api.mu.Lock()
	raw := api.requests["/v1/chat/completions"]
	api.mu.Unlock()

	var body struct {
		Model          string `json:"model"`
		Messages       []any  `json:"messages"`
		ResponseFormat struct {
			Type       string `json:"type"`
			JSONSchema struct {
				Schema struct {
					Type       string         `json:"type"`
					Properties map[string]any `json:"properties"`
				} `json:"schema"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("request body not JSON: %v\n%s", err, raw)
	}
	if body.Model != DefaultModel || len(body.Messages) != 2 {
		t.Fatalf("unexpected request: %s", raw)
	}
	if body.ResponseFormat.Type != "json_schema" || body.ResponseFormat.JSONSchema.Schema.Type != "object" {
		t.Fatalf("expected object json_schema response format: %s", raw)
	}
	if _, ok := body.ResponseFormat.JSONSchema.Schema.Properties[wrappedField]; !ok {
		t.Fatalf("array schema not wrapped: %s", raw)
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, &fakeAPI{status: http.StatusInternalServerError})
	_, err := p.Complete(context.Background(), ports.CompletionRequest{
		Messages: []ports.Message{{Role: "user", Content: "x"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestTranscribeClipUsesWhisper(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	p := newTestProvider(t, api)

	text, err := p.TranscribeClip(context.Background(), ports.AudioClip{Data: []byte("RIFFdata"), MIMEType: "audio/wav"})
	if err != nil {
		t.Fatalf("TranscribeClip failed: %v", err)
	}
	if text != "Amy Cooper 5551234567" {
		t.Fatalf("unexpected transcript: %q", text)
	}

	api.mu.Lock()
	raw := string(api.requests["/v1/audio/transcriptions"])
	api.mu.Unlock()
	if !strings.Contains(raw, "whisper-1") || !strings.Contains(raw, `filename="clip.wav"`) {
		t.Fatalf("unexpected multipart body:\n%s", raw)
	}
}

func TestConvertMessageRoles(t *testing.T) {
	t.Parallel()

	for _, role := range []string{"system", "user", "assistant", ""} {
		if _, err := convertMessage(ports.Message{Role: role, Content: "x"}); err != nil {
			t.Fatalf("role %q: %v", role, err)
		}
	}
	if _, err := convertMessage(ports.Message{Role: "tool"}); err == nil {
		t.Fatalf("expected error for unsupported role")
	}
}
