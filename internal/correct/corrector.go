// Package correct cleans up the captured attendee list with one language
// model call. Any failure leaves the list exactly as captured.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"rollcall/internal/domain"
	"rollcall/internal/observe"
	"rollcall/internal/ports"
)

const (
	defaultTemperature = 0.1
	defaultTimeout     = 60 * time.Second
)

const systemPrompt = `You clean up a list of attendee entries captured by speech recognition.
Each entry may contain a person's name, optionally followed by a phone number.

For every entry, in the same order:
- Separate the name from the phone number.
- Fix capitalization and spelling of the name.
- Format a phone number as XXX-XXX-XXXX when present. If no phone number is present, return an empty string.
- Copy the entry text unchanged into "original".

Return exactly one JSON array item per entry, in input order, and nothing else.`

// Outcome reports how a correction run ended.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeEmptyList     Outcome = "empty_list"
	OutcomeNoCredential  Outcome = "no_credential"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeEmptyResponse Outcome = "empty_response"
	OutcomeUnparseable   Outcome = "unparseable"
)

// Applied reports whether the model output was used.
func (o Outcome) Applied() bool {
	return o == OutcomeApplied
}

// Result is the corrected list plus how it was produced. Attendees is always
// safe to use: on any failure it is a copy of the input.
type Result struct {
	Attendees []domain.Attendee
	Outcome   Outcome
	Err       error
}

// ProviderFunc resolves the completion provider for one call. It returns
// domain.ErrMissingCredential when no API key is configured.
type ProviderFunc func() (ports.CompletionProvider, error)

// Option configures a Corrector.
type Option func(*Corrector)

func WithTimeout(d time.Duration) Option {
	return func(c *Corrector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTemperature(temp float64) Option {
	return func(c *Corrector) { c.temperature = temp }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Corrector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *Corrector) { c.metrics = m }
}

// WithProviderName labels latency metrics.
func WithProviderName(name string) Option {
	return func(c *Corrector) { c.providerName = name }
}

// Corrector runs batch corrections. It is safe for concurrent use.
type Corrector struct {
	provider     ProviderFunc
	timeout      time.Duration
	temperature  float64
	logger       *slog.Logger
	metrics      *observe.Metrics
	providerName string
	schema       *jsonschema.Schema
}

func New(provider ProviderFunc, opts ...Option) *Corrector {
	c := &Corrector{
		provider:     provider,
		timeout:      defaultTimeout,
		temperature:  defaultTemperature,
		logger:       slog.Default(),
		providerName: "llm",
		schema:       responseSchema(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Correct sends every entry's raw input in one request and maps the answers
// back by position. It never returns a shorter or reordered list.
func (c *Corrector) Correct(ctx context.Context, attendees []domain.Attendee) Result {
	original := append([]domain.Attendee(nil), attendees...)
	if len(original) == 0 {
		return c.finish(ctx, Result{Attendees: original, Outcome: OutcomeEmptyList})
	}

	provider, err := c.provider()
	if err != nil {
		outcome := OutcomeProviderError
		if errors.Is(err, domain.ErrMissingCredential) {
			outcome = OutcomeNoCredential
		}
		return c.finish(ctx, Result{Attendees: original, Outcome: outcome, Err: err})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Complete(callCtx, ports.CompletionRequest{
		SystemPrompt:   systemPrompt,
		Messages:       []ports.Message{{Role: "user", Content: buildUserMessage(original)}},
		Temperature:    c.temperature,
		ResponseSchema: c.schema,
	})
	c.metrics.RecordProviderCall(ctx, c.providerName, "completion", start, err)
	if err != nil {
		return c.finish(ctx, Result{
			Attendees: original,
			Outcome:   OutcomeProviderError,
			Err:       fmt.Errorf("correction request: %w", err),
		})
	}

	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Content)
	}
	if content == "" {
		return c.finish(ctx, Result{Attendees: original, Outcome: OutcomeEmptyResponse})
	}

	corrections, err := parseCorrections(content)
	if errors.Is(err, errNoCorrections) {
		return c.finish(ctx, Result{Attendees: original, Outcome: OutcomeEmptyResponse})
	}
	if err != nil {
		return c.finish(ctx, Result{
			Attendees: original,
			Outcome:   OutcomeUnparseable,
			Err:       fmt.Errorf("parse correction response: %w", err),
		})
	}
	if len(corrections) != len(original) {
		c.logger.Warn("correction count does not match entries",
			"entries", len(original), "corrections", len(corrections))
	}

	return c.finish(ctx, Result{Attendees: applyCorrections(original, corrections), Outcome: OutcomeApplied})
}

func (c *Corrector) finish(ctx context.Context, result Result) Result {
	c.metrics.RecordCorrection(ctx, string(result.Outcome))
	switch {
	case result.Outcome.Applied():
		c.logger.Info("correction applied", "entries", len(result.Attendees))
	case result.Err != nil:
		c.logger.Warn("correction skipped", "outcome", result.Outcome, "err", result.Err)
	default:
		c.logger.Info("correction skipped", "outcome", result.Outcome)
	}
	return result
}

func buildUserMessage(attendees []domain.Attendee) string {
	var sb strings.Builder
	sb.WriteString("Entries:\n")
	for i, a := range attendees {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(a.RawInput, "\n", " "))
	}
	return sb.String()
}

// applyCorrections maps correction i onto attendee i. Extra corrections are
// ignored and entries without one keep their values. A blank corrected name
// keeps the current name.
func applyCorrections(attendees []domain.Attendee, corrections []entryCorrection) []domain.Attendee {
	out := make([]domain.Attendee, len(attendees))
	for i, a := range attendees {
		if i < len(corrections) {
			if name := strings.TrimSpace(corrections[i].CorrectedName); name != "" {
				a.FormattedName = name
			}
			a.FormattedPhone = strings.TrimSpace(corrections[i].CorrectedPhone)
		}
		if strings.TrimSpace(a.FormattedName) == "" {
			a.FormattedName = a.RawInput
		}
		out[i] = a
	}
	return out
}
