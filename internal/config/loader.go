package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the LLM backend tags with built-in constructors.
// Used by [Validate] to warn about likely typos; unknown names are still
// allowed because custom backends may register at runtime.
var ValidBackendNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// localBackends require a base_url because they talk to a self-hosted server.
var localBackends = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are ignored so that newer config files
// keep working with older binaries.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found; recoverable oddities
// are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.App.LogLevel != "" && !cfg.App.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("app.log_level %q is invalid; valid values: debug, info, warn, error", cfg.App.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.PrerollSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.preroll_s must not be negative, got %v", cfg.Audio.PrerollSeconds))
	}
	if cfg.Audio.VADThreshold < 0 || cfg.Audio.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.vad_threshold %v is out of range [0, 1]", cfg.Audio.VADThreshold))
	}
	if cfg.Audio.WakeWordSensitivity < 0 || cfg.Audio.WakeWordSensitivity > 1 {
		errs = append(errs, fmt.Errorf("audio.wake_word_sensitivity %v is out of range [0, 1]", cfg.Audio.WakeWordSensitivity))
	}
	if cfg.Audio.MaxUtteranceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.max_utterance_s must be positive, got %v", cfg.Audio.MaxUtteranceSeconds))
	}
	if cfg.Audio.WakeWordEnabled && cfg.Audio.WakeWordAccessKey == "" {
		slog.Warn("audio.wake_word_enabled is set without wake_word_access_key; falling back to hotkey-only triggering")
	}

	// LLM
	if cfg.LLM.Backend == "" {
		errs = append(errs, fmt.Errorf("llm.backend is required"))
	} else {
		errs = append(errs, validateBackend(cfg, cfg.LLM.Backend, "llm.backend")...)
	}
	if cfg.LLM.FallbackBackend != "" {
		if cfg.LLM.FallbackBackend == cfg.LLM.Backend {
			errs = append(errs, fmt.Errorf("llm.fallback_backend must differ from llm.backend"))
		} else {
			errs = append(errs, validateBackend(cfg, cfg.LLM.FallbackBackend, "llm.fallback_backend")...)
		}
	}
	if cfg.ErrorHandling.Fallback.UseCloudAPIOnLocalFailure && cfg.LLM.FallbackBackend == "" {
		slog.Warn("error_handling.fallback.use_cloud_api_on_local_failure is set but llm.fallback_backend is empty; failover disabled")
	}
	if !cfg.ErrorHandling.Fallback.UseCloudAPIOnLocalFailure && cfg.LLM.FallbackBackend != "" {
		slog.Warn("llm.fallback_backend is set but error_handling.fallback.use_cloud_api_on_local_failure is false; failover disabled")
	}

	// TTS
	if cfg.TTS.Engine != "" {
		if e, ok := cfg.TTS.Engines[cfg.TTS.Engine]; ok {
			if e.Rate != 0 && (e.Rate < 90 || e.Rate > 400) {
				slog.Warn("tts rate outside [90, 400] will be clamped", "engine", cfg.TTS.Engine, "rate", e.Rate)
			}
			if e.Volume < 0 || e.Volume > 1 {
				slog.Warn("tts volume outside [0, 1] will be clamped", "engine", cfg.TTS.Engine, "volume", e.Volume)
			}
		}
	}

	// Conversation
	if cfg.Conversation.MaxHistoryTurns <= 0 {
		errs = append(errs, fmt.Errorf("conversation.max_history_turns must be positive, got %d", cfg.Conversation.MaxHistoryTurns))
	}
	if cfg.Conversation.ContextWindowTokens <= 0 {
		errs = append(errs, fmt.Errorf("conversation.context_window_tokens must be positive, got %d", cfg.Conversation.ContextWindowTokens))
	}
	if cfg.Conversation.MaxToolIterations <= 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tool_iterations must be positive, got %d", cfg.Conversation.MaxToolIterations))
	}

	// Error handling
	if cfg.ErrorHandling.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("error_handling.max_retries must not be negative, got %d", cfg.ErrorHandling.MaxRetries))
	}

	// Tool servers
	seen := make(map[string]int, len(cfg.Tools.Servers))
	for i, srv := range cfg.Tools.Servers {
		prefix := fmt.Sprintf("tools.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case "streamable-http":
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
	}

	return errors.Join(errs...)
}

// validateBackend checks that the named backend has a configuration block
// with the fields its kind requires.
func validateBackend(cfg *Config, name, field string) []error {
	var errs []error

	entry, ok := cfg.LLM.Backends[name]
	if !ok {
		errs = append(errs, fmt.Errorf("%s %q has no llm.%s configuration block", field, name, name))
		return errs
	}
	if entry.Model == "" {
		errs = append(errs, fmt.Errorf("llm.%s.model is required", name))
	}
	if slices.Contains(localBackends, name) && entry.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.%s.base_url is required for local backends", name))
	}
	if !slices.Contains(ValidBackendNames, name) {
		slog.Warn("unknown llm backend, may be a typo or a runtime-registered backend",
			"name", name,
			"known", ValidBackendNames,
		)
	}
	return errs
}
