package anyllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"rollcall/internal/ports"
)

// Complete implements ports.CompletionProvider. Backends here cannot enforce
// a schema, so it is appended to the system prompt instead.
func (p *Provider) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anyllm: build params: %w", err)
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: empty choices in response")
	}
	return &ports.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}, nil
}

func (p *Provider) buildParams(req ports.CompletionRequest) (anyllmlib.CompletionParams, error) {
	system := req.SystemPrompt
	if req.ResponseSchema != nil {
		schema, err := json.Marshal(req.ResponseSchema)
		if err != nil {
			return anyllmlib.CompletionParams{}, fmt.Errorf("marshal response schema: %w", err)
		}
		system += "\n\nRespond with ONLY JSON matching this schema (no markdown, no prose):\n" + string(schema)
	}

	var messages []anyllmlib.Message
	if system != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, anyllmlib.Message{Role: role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params, nil
}
