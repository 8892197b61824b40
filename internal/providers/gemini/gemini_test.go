package gemini

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
	"google.golang.org/genai"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

type recordingServer struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	reply  string
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": s.reply}},
			},
			"finishReason": "STOP",
		}},
	})
}

func newTestProvider(t *testing.T, reply string) (*Provider, *recordingServer) {
	t.Helper()

	rec := &recordingServer{reply: reply}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	p, err := New(context.Background(), "test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, rec
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), " ", "")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestCompleteSendsSchemaAndReturnsText(t *testing.T) {
	t.Parallel()

	p, rec := newTestProvider(t, `[{"correctedName":"Amy"}]`)

	schema := &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"correctedName": {Type: "string"}},
		},
	}
	resp, err := p.Complete(context.Background(), ports.CompletionRequest{
		SystemPrompt:   "fix names",
		Messages:       []ports.Message{{Role: "user", Content: "1. amy"}},
		Temperature:    0.1,
		ResponseSchema: schema,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != `[{"correctedName":"Amy"}]` {
		t.Fatalf("unexpected content: %q", resp.Content)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.paths) != 1 || !strings.HasSuffix(rec.paths[0], DefaultModel+":generateContent") {
		t.Fatalf("unexpected request paths: %v", rec.paths)
	}
	gen, _ := rec.bodies[0]["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" {
		t.Fatalf("expected JSON response MIME type, got %v", gen)
	}
	if _, ok := rec.bodies[0]["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in request")
	}
}

func TestTranscribeClipSendsInlineAudio(t *testing.T) {
	t.Parallel()

	p, rec := newTestProvider(t, "  Amy Cooper 555 123 4567\n")

	text, err := p.TranscribeClip(context.Background(), ports.AudioClip{Data: []byte("RIFF"), MIMEType: "audio/wav"})
	if err != nil {
		t.Fatalf("TranscribeClip failed: %v", err)
	}
	if text != "Amy Cooper 555 123 4567" {
		t.Fatalf("unexpected transcript: %q", text)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	raw, _ := json.Marshal(rec.bodies[0])
	if !strings.Contains(string(raw), "audio/wav") || !strings.Contains(string(raw), "Transcribe the speech") {
		t.Fatalf("request missing inline audio or prompt: %s", raw)
	}
}

func TestTranscribeEmptyClipSkipsCall(t *testing.T) {
	t.Parallel()

	p, rec := newTestProvider(t, "unused")
	text, err := p.TranscribeClip(context.Background(), ports.AudioClip{})
	if err != nil || text != "" {
		t.Fatalf("expected empty result, got %q, %v", text, err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.paths) != 0 {
		t.Fatalf("expected no requests, got %d", len(rec.paths))
	}
}

func TestConvertSchema(t *testing.T) {
	t.Parallel()

	got := convertSchema(&jsonschema.Schema{
		Types: []string{"null", "array"},
		Items: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"name"},
			Properties: map[string]*jsonschema.Schema{
				"name":  {Type: "string"},
				"count": {Type: "integer"},
			},
		},
	})

	if got.Type != genai.TypeArray {
		t.Fatalf("expected array, got %q", got.Type)
	}
	if got.Items == nil || got.Items.Type != genai.TypeObject {
		t.Fatalf("expected object items, got %+v", got.Items)
	}
	if got.Items.Properties["count"].Type != genai.TypeInteger {
		t.Fatalf("unexpected property type: %+v", got.Items.Properties["count"])
	}
	if len(got.Items.Required) != 1 || got.Items.Required[0] != "name" {
		t.Fatalf("required not carried: %v", got.Items.Required)
	}
	if convertSchema(nil) != nil {
		t.Fatalf("nil schema should convert to nil")
	}
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Amy"},
			{Text: " Cooper"},
		}},
	}}}
	if got := responseText(resp); got != "Amy Cooper" {
		t.Fatalf("unexpected text: %q", got)
	}
	if responseText(nil) != "" {
		t.Fatalf("nil response should yield empty text")
	}
}
