// Package config resolves runtime configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rollcall/internal/audio"
	"rollcall/internal/export"
)

// Config stores runtime configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Audio     AudioConfig     `yaml:"audio"`
	Capture   CaptureConfig   `yaml:"capture"`
	Normalize NormalizeConfig `yaml:"normalize"`
	LLM       LLMConfig       `yaml:"llm"`
	Export    ExportConfig    `yaml:"export"`
	Session   SessionConfig   `yaml:"session"`

	// Path is the config file that was read, if any.
	Path string `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DeepgramConfig struct {
	APIKey           string   `yaml:"api_key"`
	APIBaseURL       string   `yaml:"api_base"`
	Model            string   `yaml:"model"`
	Language         string   `yaml:"language"`
	SmartFormat      bool     `yaml:"smart_format"`
	EndpointingMS    int      `yaml:"endpointing_ms"`
	UtteranceEndMS   int      `yaml:"utterance_end_ms"`
	Keywords         []string `yaml:"keywords"`
	KeepAliveSeconds int      `yaml:"keepalive_seconds"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkSize       int    `yaml:"chunk_size"`
}

type CaptureConfig struct {
	Mode                string `yaml:"mode"`
	RestartDelayMS      int    `yaml:"restart_delay_ms"`
	MaxRestarts         int    `yaml:"max_restarts"` // 0 disables automatic restart
	StreamingGraceMS    int    `yaml:"streaming_grace_ms"`
	ClipProvider        string `yaml:"clip_provider"`
	ClipModel           string `yaml:"clip_model"`
	TranscribeTimeoutMS int    `yaml:"transcribe_timeout_ms"`
}

type NormalizeConfig struct {
	RulesFile      string   `yaml:"rules_file"`
	Rules          []string `yaml:"rules"`
	IterationLimit int      `yaml:"iteration_limit"`
	MinDigitRun    int      `yaml:"min_digit_run"`
}

// LLMConfig selects the batch correction backend. APIKey is only for
// setups that keep the key in the file; otherwise APIKeyEnv names the
// variable read at call time.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	Temperature float64 `yaml:"temperature"`
}

type ExportConfig struct {
	Layout    string `yaml:"layout"`
	Directory string `yaml:"directory"`
}

type SessionConfig struct {
	CompletionDelayMS int `yaml:"completion_delay_ms"`
}

// Default returns the configuration used when nothing is overridden.
func Default(home string) Config {
	format, device := audio.DefaultInput(runtime.GOOS)
	return Config{
		Log: LogConfig{Level: "info"},
		Deepgram: DeepgramConfig{
			APIBaseURL:       "https://api.deepgram.com/v1",
			Model:            "nova-2",
			SmartFormat:      true,
			EndpointingMS:    300,
			UtteranceEndMS:   1000,
			KeepAliveSeconds: 5,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     format,
			InputDevice:     device,
			SampleRate:      16000,
			Channels:        1,
			ChunkSize:       4096,
		},
		Capture: CaptureConfig{
			Mode:                "stream",
			RestartDelayMS:      1000,
			MaxRestarts:         5,
			StreamingGraceMS:    4000,
			ClipProvider:        "gemini",
			TranscribeTimeoutMS: 60000,
		},
		Normalize: NormalizeConfig{
			RulesFile:      filepath.Join(home, ".config", "rollcall", "substitutions.rules"),
			IterationLimit: 30,
			MinDigitRun:    3,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			TimeoutMS:   60000,
			Temperature: 0.1,
		},
		Export: ExportConfig{
			Layout: string(export.LayoutContact),
		},
		Session: SessionConfig{
			CompletionDelayMS: 1000,
		},
	}
}

// Load resolves configuration from defaults, the config file named by
// ROLLCALL_CONFIG (or ~/.config/rollcall/config.yaml when present) and
// environment variables.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Default(home)

	path := strings.TrimSpace(os.Getenv("ROLLCALL_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ".config", "rollcall", "config.yaml")
	}
	if err := cfg.mergeFile(path, explicit); err != nil {
		return Config{}, err
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) applyEnv() {
	c.Log.Level = envOrDefault("ROLLCALL_LOG_LEVEL", c.Log.Level)

	c.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", c.Deepgram.APIBaseURL)
	c.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", c.Deepgram.Model)
	c.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", c.Deepgram.Language)
	c.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", c.Deepgram.SmartFormat)
	if keywords := strings.TrimSpace(os.Getenv("DEEPGRAM_KEYWORDS")); keywords != "" {
		c.Deepgram.Keywords = splitList(keywords)
	}

	c.Audio.RecorderCommand = envOrDefault("ROLLCALL_FFMPEG_COMMAND", c.Audio.RecorderCommand)
	c.Audio.InputFormat = envOrDefault("ROLLCALL_AUDIO_INPUT_FORMAT", c.Audio.InputFormat)
	c.Audio.InputDevice = envOrDefault("ROLLCALL_AUDIO_INPUT_DEVICE", c.Audio.InputDevice)
	c.Audio.SampleRate = envOrDefaultInt("ROLLCALL_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = envOrDefaultInt("ROLLCALL_CHANNELS", c.Audio.Channels)
	c.Audio.ChunkSize = envOrDefaultInt("ROLLCALL_AUDIO_CHUNK_SIZE", c.Audio.ChunkSize)

	c.Capture.Mode = envOrDefault("ROLLCALL_CAPTURE_MODE", c.Capture.Mode)
	c.Capture.RestartDelayMS = envOrDefaultInt("ROLLCALL_RESTART_DELAY_MS", c.Capture.RestartDelayMS)
	c.Capture.MaxRestarts = envOrDefaultInt("ROLLCALL_MAX_RESTARTS", c.Capture.MaxRestarts)
	c.Capture.StreamingGraceMS = envOrDefaultInt("ROLLCALL_STREAMING_GRACE_MS", c.Capture.StreamingGraceMS)
	c.Capture.ClipProvider = envOrDefault("ROLLCALL_CLIP_PROVIDER", c.Capture.ClipProvider)
	c.Capture.ClipModel = envOrDefault("ROLLCALL_CLIP_MODEL", c.Capture.ClipModel)

	c.Normalize.RulesFile = envOrDefault("ROLLCALL_RULES_FILE", c.Normalize.RulesFile)
	c.Normalize.MinDigitRun = envOrDefaultInt("ROLLCALL_MIN_DIGIT_RUN", c.Normalize.MinDigitRun)

	c.LLM.Provider = envOrDefault("ROLLCALL_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = envOrDefault("ROLLCALL_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = envOrDefault("ROLLCALL_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKeyEnv = envOrDefault("ROLLCALL_LLM_API_KEY_ENV", c.LLM.APIKeyEnv)
	c.LLM.TimeoutMS = envOrDefaultInt("ROLLCALL_LLM_TIMEOUT_MS", c.LLM.TimeoutMS)

	c.Export.Layout = envOrDefault("ROLLCALL_EXPORT_LAYOUT", c.Export.Layout)
	c.Export.Directory = envOrDefault("ROLLCALL_EXPORT_DIR", c.Export.Directory)

	c.Session.CompletionDelayMS = envOrDefaultInt("ROLLCALL_COMPLETION_DELAY_MS", c.Session.CompletionDelayMS)
}

// validate rejects unknown enum values and repairs out-of-range numbers.
func (c *Config) validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	c.Capture.Mode = strings.ToLower(strings.TrimSpace(c.Capture.Mode))
	switch c.Capture.Mode {
	case "stream", "clip":
	default:
		return fmt.Errorf("unknown capture mode %q", c.Capture.Mode)
	}

	c.Capture.ClipProvider = strings.ToLower(strings.TrimSpace(c.Capture.ClipProvider))
	switch c.Capture.ClipProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown clip provider %q", c.Capture.ClipProvider)
	}

	if _, err := export.ParseLayout(c.Export.Layout); err != nil {
		return err
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		return errors.New("llm provider cannot be empty")
	}

	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.ChunkSize < 256 {
		c.Audio.ChunkSize = 4096
	}
	if c.Normalize.IterationLimit <= 0 {
		c.Normalize.IterationLimit = 30
	}
	if c.Capture.MaxRestarts < 0 {
		c.Capture.MaxRestarts = 0
	}
	if c.Capture.RestartDelayMS < 0 {
		c.Capture.RestartDelayMS = 1000
	}
	if c.Capture.StreamingGraceMS <= 0 {
		c.Capture.StreamingGraceMS = 4000
	}
	if c.Capture.TranscribeTimeoutMS <= 0 {
		c.Capture.TranscribeTimeoutMS = 60000
	}
	if c.LLM.TimeoutMS <= 0 {
		c.LLM.TimeoutMS = 60000
	}
	if c.Session.CompletionDelayMS < 0 {
		c.Session.CompletionDelayMS = 0
	}
	return nil
}

// KeyEnv returns the environment variable holding the LLM API key.
func (c LLMConfig) KeyEnv() string {
	if env := strings.TrimSpace(c.APIKeyEnv); env != "" {
		return env
	}
	return DefaultKeyEnv(c.Provider)
}

// ResolveAPIKey reads the LLM API key. It is called per request so a key
// exported after startup is picked up.
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv(c.KeyEnv()))
}

// DefaultKeyEnv maps a provider name to its conventional key variable.
func DefaultKeyEnv(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI_API_KEY"
	case "llamacpp", "llamafile", "ollama":
		return ""
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// ResolveClipKey reads the key for the clip transcription provider. Gemini
// clips share the LLM key when the LLM also runs on Gemini.
func (c Config) ResolveClipKey() string {
	if c.Capture.ClipProvider == c.LLM.Provider {
		return c.LLM.ResolveAPIKey()
	}
	return strings.TrimSpace(os.Getenv(DefaultKeyEnv(c.Capture.ClipProvider)))
}

func (c CaptureConfig) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelayMS) * time.Millisecond
}

func (c CaptureConfig) StreamingGrace() time.Duration {
	return time.Duration(c.StreamingGraceMS) * time.Millisecond
}

func (c CaptureConfig) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutMS) * time.Millisecond
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c SessionConfig) CompletionDelay() time.Duration {
	return time.Duration(c.CompletionDelayMS) * time.Millisecond
}

func (c DeepgramConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
