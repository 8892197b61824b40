// Package bootstrap assembles the runtime graph from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"rollcall/internal/audio"
	"rollcall/internal/config"
	"rollcall/internal/correct"
	"rollcall/internal/domain"
	"rollcall/internal/export"
	"rollcall/internal/normalize"
	"rollcall/internal/observe"
	"rollcall/internal/ports"
	"rollcall/internal/providers/anyllm"
	"rollcall/internal/providers/deepgram"
	"rollcall/internal/providers/gemini"
	"rollcall/internal/providers/openai"
	"rollcall/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Corrector  *correct.Corrector
	Normalizer *normalize.Normalizer
	Microphone *audio.Microphone
	Config     config.Config
	Logger     *slog.Logger
}

type options struct {
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Option customizes Build.
type Option func(*options)

// WithLogger replaces the logger built from the configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records instruments on m. Without it metrics are not recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, opts ...Option) (Services, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger := o.logger
	if logger == nil {
		logger = observe.NewLogger(os.Stderr, cfg.Log.Level)
	}

	normalizer, err := normalize.New(
		normalize.WithRulesFile(cfg.Normalize.RulesFile),
		normalize.WithRules(cfg.Normalize.Rules...),
		normalize.WithLoopLimit(cfg.Normalize.IterationLimit),
		normalize.WithMinDigitRun(cfg.Normalize.MinDigitRun),
	)
	if err != nil {
		return Services{}, err
	}

	providerFunc, err := CompletionProvider(cfg.LLM)
	if err != nil {
		return Services{}, err
	}
	corrector := correct.New(providerFunc,
		correct.WithTimeout(cfg.LLM.Timeout()),
		correct.WithTemperature(cfg.LLM.Temperature),
		correct.WithLogger(logger),
		correct.WithMetrics(o.metrics),
		correct.WithProviderName(cfg.LLM.Provider),
	)

	mode, err := usecase.ParseCaptureMode(cfg.Capture.Mode)
	if err != nil {
		return Services{}, err
	}
	layout, err := export.ParseLayout(cfg.Export.Layout)
	if err != nil {
		return Services{}, err
	}

	microphone := audio.NewMicrophone(cfg.Audio.RecorderCommand)
	controller := usecase.NewSessionController(
		usecase.Dependencies{
			Audio: microphone,
			Streaming: deepgram.NewProvider(deepgram.Config{
				APIKey:         cfg.Deepgram.APIKey,
				APIBaseURL:     cfg.Deepgram.APIBaseURL,
				Model:          cfg.Deepgram.Model,
				Language:       cfg.Deepgram.Language,
				SmartFormat:    cfg.Deepgram.SmartFormat,
				Endpointing:    cfg.Deepgram.EndpointingMS,
				UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
				Keywords:       cfg.Deepgram.Keywords,
				KeepAlive:      cfg.Deepgram.KeepAlive(),
			}),
			Clips:            ClipTranscriber(cfg),
			ClipProviderName: cfg.Capture.ClipProvider,
			EncodeClip:       audio.EncodeWAV,
			Normalizer:       normalizer,
			Corrector:        corrector,
			Events:           eventSink,
			Logger:           logger,
			Metrics:          o.metrics,
		},
		usecase.Config{
			Mode: mode,
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:         cfg.Audio.ChunkSize,
			RestartDelay:      cfg.Capture.RestartDelay(),
			MaxRestarts:       cfg.Capture.MaxRestarts,
			CloseTimeout:      cfg.Capture.StreamingGrace(),
			TranscribeTimeout: cfg.Capture.TranscribeTimeout(),
			CompletionDelay:   cfg.Session.CompletionDelay(),
			ExportLayout:      layout,
		},
	)

	logger.Debug("runtime assembled",
		"config", cfg.Path, "mode", mode, "llm", cfg.LLM.Provider, "clip", cfg.Capture.ClipProvider)

	return Services{
		Controller: controller,
		Corrector:  corrector,
		Normalizer: normalizer,
		Microphone: microphone,
		Config:     cfg,
		Logger:     logger,
	}, nil
}

// CompletionProvider returns a factory that builds the configured
// completion backend with the key current at call time.
func CompletionProvider(cfg config.LLMConfig) (correct.ProviderFunc, error) {
	switch cfg.Provider {
	case "gemini":
		return func() (ports.CompletionProvider, error) {
			var opts []gemini.Option
			if cfg.BaseURL != "" {
				opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
			}
			return gemini.New(context.Background(), cfg.ResolveAPIKey(), cfg.Model, opts...)
		}, nil
	case "openai":
		return func() (ports.CompletionProvider, error) {
			var opts []openai.Option
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			return openai.New(cfg.ResolveAPIKey(), cfg.Model, opts...)
		}, nil
	}

	if !slices.Contains(anyllm.Backends, cfg.Provider) {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm.model is required for provider %q", cfg.Provider)
	}
	return func() (ports.CompletionProvider, error) {
		key := cfg.ResolveAPIKey()
		if key == "" && !anyllm.Local(cfg.Provider) {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, domain.ErrMissingCredential)
		}
		return anyllm.New(cfg.Provider, cfg.Model, key, cfg.BaseURL)
	}, nil
}

// ClipTranscriber resolves the clip provider per call so a missing key
// only fails the transcription, not startup.
func ClipTranscriber(cfg config.Config) ports.ClipTranscriber {
	return clipTranscriberFunc(func(ctx context.Context, clip ports.AudioClip) (string, error) {
		key := cfg.ResolveClipKey()
		var (
			transcriber ports.ClipTranscriber
			err         error
		)
		switch cfg.Capture.ClipProvider {
		case "openai":
			transcriber, err = openai.New(key, cfg.Capture.ClipModel)
		default:
			transcriber, err = gemini.New(ctx, key, cfg.Capture.ClipModel)
		}
		if err != nil {
			return "", err
		}
		return transcriber.TranscribeClip(ctx, clip)
	})
}

type clipTranscriberFunc func(ctx context.Context, clip ports.AudioClip) (string, error)

func (f clipTranscriberFunc) TranscribeClip(ctx context.Context, clip ports.AudioClip) (string, error) {
	return f(ctx, clip)
}
