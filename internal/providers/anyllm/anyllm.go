// Package anyllm adapts github.com/mozilla-ai/any-llm-go backends to
// ports.CompletionProvider, covering hosted and local models that have no
// dedicated provider package here.
package anyllm

import (
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Backends lists the accepted backend names.
var Backends = []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}

// Local reports whether backend runs without an API key.
func Local(backend string) bool {
	switch strings.ToLower(backend) {
	case "ollama", "llamacpp", "llamafile":
		return true
	default:
		return false
	}
}

// Provider implements ports.CompletionProvider.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a provider for backend. apiKey may be empty for local backends.
func New(backend, model, apiKey, baseURL string) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}

	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}

	b, err := createBackend(backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backend, err)
	}
	return &Provider{backend: b, model: model}, nil
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: %s", name, strings.Join(Backends, ", "))
	}
}
