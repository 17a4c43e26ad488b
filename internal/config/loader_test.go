package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auricle-ai/auricle/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(watcherValidYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Backend != "ollama" {
		t.Errorf("llm.backend: got %q, want ollama", cfg.LLM.Backend)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/auricle.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadFromReader_MalformedYAML(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("llm: [not: valid"))
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "missing backend",
			mutate:  func(c *config.Config) { c.LLM.Backend = "" },
			wantSub: "llm.backend is required",
		},
		{
			name:    "backend without config block",
			mutate:  func(c *config.Config) { c.LLM.Backend = "anthropic" },
			wantSub: "no llm.anthropic configuration block",
		},
		{
			name: "backend without model",
			mutate: func(c *config.Config) {
				e := c.LLM.Backends["ollama"]
				e.Model = ""
				c.LLM.Backends["ollama"] = e
			},
			wantSub: "llm.ollama.model is required",
		},
		{
			name: "local backend without base_url",
			mutate: func(c *config.Config) {
				e := c.LLM.Backends["ollama"]
				e.BaseURL = ""
				c.LLM.Backends["ollama"] = e
			},
			wantSub: "llm.ollama.base_url is required",
		},
		{
			name:    "fallback same as primary",
			mutate:  func(c *config.Config) { c.LLM.FallbackBackend = "ollama" },
			wantSub: "llm.fallback_backend must differ",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.App.LogLevel = "bananas" },
			wantSub: "app.log_level",
		},
		{
			name:    "zero sample rate",
			mutate:  func(c *config.Config) { c.Audio.SampleRate = 0 },
			wantSub: "audio.sample_rate",
		},
		{
			name:    "stereo capture",
			mutate:  func(c *config.Config) { c.Audio.Channels = 2 },
			wantSub: "audio.channels must be 1",
		},
		{
			name:    "vad threshold out of range",
			mutate:  func(c *config.Config) { c.Audio.VADThreshold = 1.5 },
			wantSub: "audio.vad_threshold",
		},
		{
			name:    "sensitivity out of range",
			mutate:  func(c *config.Config) { c.Audio.WakeWordSensitivity = -0.1 },
			wantSub: "audio.wake_word_sensitivity",
		},
		{
			name:    "zero max utterance",
			mutate:  func(c *config.Config) { c.Audio.MaxUtteranceSeconds = 0 },
			wantSub: "audio.max_utterance_s",
		},
		{
			name:    "zero history turns",
			mutate:  func(c *config.Config) { c.Conversation.MaxHistoryTurns = 0 },
			wantSub: "conversation.max_history_turns",
		},
		{
			name:    "zero context window",
			mutate:  func(c *config.Config) { c.Conversation.ContextWindowTokens = 0 },
			wantSub: "conversation.context_window_tokens",
		},
		{
			name:    "zero tool iterations",
			mutate:  func(c *config.Config) { c.Conversation.MaxToolIterations = 0 },
			wantSub: "conversation.max_tool_iterations",
		},
		{
			name:    "negative retries",
			mutate:  func(c *config.Config) { c.ErrorHandling.MaxRetries = -1 },
			wantSub: "error_handling.max_retries",
		},
		{
			name: "tool server without name",
			mutate: func(c *config.Config) {
				c.Tools.Servers = []config.MCPServerConfig{{Transport: "stdio", Command: "/bin/true"}}
			},
			wantSub: "tools.servers[0].name is required",
		},
		{
			name: "stdio server without command",
			mutate: func(c *config.Config) {
				c.Tools.Servers = []config.MCPServerConfig{{Name: "files", Transport: "stdio"}}
			},
			wantSub: "command is required",
		},
		{
			name: "http server without url",
			mutate: func(c *config.Config) {
				c.Tools.Servers = []config.MCPServerConfig{{Name: "web", Transport: "streamable-http"}}
			},
			wantSub: "url is required",
		},
		{
			name: "unknown transport",
			mutate: func(c *config.Config) {
				c.Tools.Servers = []config.MCPServerConfig{{Name: "x", Transport: "websocket", URL: "wss://x"}}
			},
			wantSub: "transport",
		},
		{
			name: "duplicate server names",
			mutate: func(c *config.Config) {
				c.Tools.Servers = []config.MCPServerConfig{
					{Name: "files", Transport: "stdio", Command: "/bin/a"},
					{Name: "files", Transport: "stdio", Command: "/bin/b"},
				}
			},
			wantSub: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error should mention %q, got: %v", tt.wantSub, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Audio.SampleRate = 0
	cfg.Audio.Channels = 2
	cfg.LLM.Backend = ""

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, sub := range []string{"audio.sample_rate", "audio.channels", "llm.backend"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error should mention %q, got: %v", sub, err)
		}
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	if err := config.Validate(validConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_UnknownBackendNameAllowed(t *testing.T) {
	t.Parallel()
	// Backends outside the built-in list may be registered at runtime, so
	// validation only warns about them.
	cfg := validConfig()
	cfg.LLM.Backend = "homegrown"
	cfg.LLM.Backends["homegrown"] = config.LLMBackendConfig{Model: "my-model"}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unknown backend name should only warn, got error: %v", err)
	}
}

// validConfig returns Default() plus the minimum required LLM block.
func validConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Backend = "ollama"
	cfg.LLM.Backends = map[string]config.LLMBackendConfig{
		"ollama": {BaseURL: "http://localhost:11434", Model: "llama3.2"},
	}
	return cfg
}
