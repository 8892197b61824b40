// Package gemini implements completion and clip transcription on the Gemini
// API through google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

const (
	DefaultModel = "gemini-2.5-flash"

	transcribePrompt = "Transcribe the speech in this audio exactly as spoken. " +
		"The speaker is providing a name and a phone number. Return only the text transcript."
)

// Provider implements ports.CompletionProvider and ports.ClipTranscriber.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL string
}

// Option configures a Provider.
type Option func(*config)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", domain.ErrMissingCredential)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements ports.CompletionProvider. A response schema is sent as
// a Gemini schema with a JSON response MIME type.
func (p *Provider) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.SystemPrompt)}}
	}
	if req.Temperature != 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convertSchema(req.ResponseSchema)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == "assistant" || m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(m.Content)}, role))
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: no messages")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return &ports.CompletionResponse{Content: responseText(resp)}, nil
}

// TranscribeClip implements ports.ClipTranscriber by sending the clip inline
// with a transcription instruction.
func (p *Provider) TranscribeClip(ctx context.Context, clip ports.AudioClip) (string, error) {
	if len(clip.Data) == 0 {
		return "", nil
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(clip.Data, clip.MIMEType),
		genai.NewPartFromText(transcribePrompt),
	}, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: transcribe clip: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func convertSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	gs := &genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Items:       convertSchema(schema.Items),
		Required:    schema.Required,
	}
	for _, v := range schema.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprintf("%v", v))
	}
	if len(schema.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for k, prop := range schema.Properties {
			gs.Properties[k] = convertSchema(prop)
		}
	}

	schemaType := schema.Type
	if schemaType == "" {
		// jsonschema.For emits ["null", "array"] for nil-able slices.
		for _, t := range schema.Types {
			if t != "null" {
				schemaType = t
				break
			}
		}
	}
	switch schemaType {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return gs
}
