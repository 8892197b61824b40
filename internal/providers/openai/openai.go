// Package openai implements completion and Whisper clip transcription on the
// OpenAI API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/google/jsonschema-go/jsonschema"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

const DefaultModel = "gpt-4o-mini"

// wrappedField names the property an array schema is nested under, since
// structured outputs require an object at the top level.
const wrappedField = "items"

// Provider implements ports.CompletionProvider and ports.ClipTranscriber.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	maxRetries int
}

// Option configures a Provider.
type Option func(*config)

func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithMaxRetries overrides the SDK's retry count. External calls are not
// retried by default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: %w", domain.ErrMissingCredential)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements ports.CompletionProvider.
func (p *Provider) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}
	return &ports.CompletionResponse{Content: resp.Choices[0].Message.Content}, nil
}

// TranscribeClip implements ports.ClipTranscriber with Whisper.
func (p *Provider) TranscribeClip(ctx context.Context, clip ports.AudioClip) (string, error) {
	if len(clip.Data) == 0 {
		return "", nil
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(clip.Data), clipFilename(clip.MIMEType), clip.MIMEType),
		Model: oai.AudioModelWhisper1,
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcribe clip: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *Provider) buildParams(req ports.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.ResponseSchema != nil {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: objectSchema(req.ResponseSchema),
				},
			},
		}
	}
	return params, nil
}

// objectSchema nests a non-object schema under a single required property.
func objectSchema(schema *jsonschema.Schema) *jsonschema.Schema {
	if schema.Type == "object" {
		return schema
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties: map[string]*jsonschema.Schema{wrappedField: schema},
		Required:   []string{wrappedField},
	}
}

func convertMessage(m ports.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user", "":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(m.Content)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}

func clipFilename(mimeType string) string {
	ext := "wav"
	switch strings.ToLower(mimeType) {
	case "audio/webm":
		ext = "webm"
	case "audio/mpeg", "audio/mp3":
		ext = "mp3"
	case "audio/ogg":
		ext = "ogg"
	}
	return "clip." + ext
}
