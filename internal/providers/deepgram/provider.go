// Package deepgram streams microphone audio to Deepgram's live /listen
// websocket and turns its messages into transcript events.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/domain"
	"rollcall/internal/ports"
)

const (
	defaultBaseURL   = "https://api.deepgram.com/v1"
	defaultModel     = "nova-2"
	defaultKeepAlive = 5 * time.Second
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool

	// Endpointing is the silence, in milliseconds, after which Deepgram marks
	// speech_final. Zero leaves the server default.
	Endpointing int
	// UtteranceEndMS enables UtteranceEnd messages after this many
	// milliseconds without words. Requires interim results.
	UtteranceEndMS int
	// Keywords boost recognition of expected names.
	Keywords []string
	// KeepAlive is how often a KeepAlive frame is sent while no audio flows.
	KeepAlive time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("deepgram: %w", domain.ErrMissingCredential)
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram rejected the API key (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	return startSession(ctx, conn, p.cfg.KeepAlive), nil
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	listenURL, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	if listenURL.Scheme != "ws" && listenURL.Scheme != "wss" {
		return "", errors.New("invalid Deepgram API base URL: scheme must be http(s) or ws(s)")
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	if providerCfg.Endpointing > 0 {
		query.Set("endpointing", strconv.Itoa(providerCfg.Endpointing))
	}
	if providerCfg.UtteranceEndMS > 0 && streamCfg.InterimResults {
		query.Set("utterance_end_ms", strconv.Itoa(providerCfg.UtteranceEndMS))
	}
	for _, keyword := range providerCfg.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			query.Add("keywords", keyword)
		}
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
