// Package config provides the configuration schema, loader, and LLM provider
// registry for the Auricle voice assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; unknown keys are ignored.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Audio         AudioConfig         `yaml:"audio"`
	STT           STTConfig           `yaml:"stt"`
	LLM           LLMConfig           `yaml:"llm"`
	TTS           TTSConfig           `yaml:"tts"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Performance   PerformanceConfig   `yaml:"performance"`
	ErrorHandling ErrorHandlingConfig `yaml:"error_handling"`
	InlineAI      InlineAIConfig      `yaml:"inline_ai"`
	Tools         ToolsConfig         `yaml:"tools"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	// LogLevel controls verbosity. Defaults to info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogDir, when set, mirrors logs to a file in this directory in addition
	// to stderr.
	LogDir string `yaml:"log_dir"`
}

// AudioConfig holds capture and wake/VAD settings.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the captured channel count. Only 1 is supported.
	Channels int `yaml:"channels"`

	// PrerollSeconds is how much pre-wake audio is retained.
	PrerollSeconds float64 `yaml:"preroll_s"`

	// DeviceName selects the capture device by name. Empty or "default"
	// uses the system default.
	DeviceName string `yaml:"device_name"`

	// DeviceIndex selects the capture device by index when DeviceName is
	// empty. -1 uses the default device.
	DeviceIndex int `yaml:"device_index"`

	// VADThreshold is the normalized RMS energy above which a frame counts
	// as speech, in [0, 1].
	VADThreshold float64 `yaml:"vad_threshold"`

	// MinSpeechMs is the minimum speech duration to accept an utterance.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MinSilenceMs is the trailing silence that ends an utterance.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// MaxUtteranceSeconds force-ends capture regardless of silence.
	MaxUtteranceSeconds float64 `yaml:"max_utterance_s"`

	// WakeWordEnabled turns on the wake word detector.
	WakeWordEnabled bool `yaml:"wake_word_enabled"`

	// WakeWordAccessKey authenticates against the wake word engine.
	WakeWordAccessKey string `yaml:"wake_word_access_key"`

	// WakeWordModelPath points at a custom wake word model file.
	WakeWordModelPath string `yaml:"wake_word_model_path"`

	// WakeWordSensitivity is the detector sensitivity in [0, 1].
	WakeWordSensitivity float64 `yaml:"wake_word_sensitivity"`

	// HotkeyEnabled enables manual triggering.
	HotkeyEnabled bool `yaml:"hotkey_enabled"`
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	// BinaryPath is the whisper-cli style binary invoked per utterance.
	BinaryPath string `yaml:"binary_path"`

	// ModelID is the model file path passed to the binary.
	ModelID string `yaml:"model_id"`

	// Language is the BCP-47 language code. Defaults to "en".
	Language string `yaml:"language"`

	// Threads caps the binary's thread count. 0 lets the binary decide.
	Threads int `yaml:"threads"`

	// EnableCache turns on content-addressed transcription caching.
	EnableCache bool `yaml:"enable_cache"`

	// CacheDir is the cache directory. Defaults under the user cache dir.
	CacheDir string `yaml:"cache_dir"`

	// EnableVAD trims leading and trailing silence before transcription.
	EnableVAD bool `yaml:"enable_vad"`
}

// LLMConfig selects the active backend and holds per-backend settings.
type LLMConfig struct {
	// Backend names the active entry in Backends (e.g. "openai", "ollama").
	Backend string `yaml:"backend"`

	// FallbackBackend names the entry used when retries against the primary
	// are exhausted. Empty disables failover.
	FallbackBackend string `yaml:"fallback_backend"`

	// Backends holds one configuration block per backend tag.
	Backends map[string]LLMBackendConfig `yaml:",inline"`
}

// LLMBackendConfig is the per-backend configuration block.
type LLMBackendConfig struct {
	// BaseURL is the API endpoint. Required for local backends.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier. Always required.
	Model string `yaml:"model"`

	// TimeoutSeconds bounds a single completion request. 0 means the
	// pipeline default of 120 s.
	TimeoutSeconds int `yaml:"timeout"`

	// MaxTokens caps the completion length. 0 lets the backend decide.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the default sampling temperature. Nil lets the backend
	// decide.
	Temperature *float64 `yaml:"temperature"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// TTSConfig selects the speech engine and its parameters.
type TTSConfig struct {
	// Engine selects the synthesis engine. Defaults to "say".
	Engine string `yaml:"engine"`

	// Engines holds one configuration block per engine name.
	Engines map[string]TTSEngineConfig `yaml:",inline"`
}

// TTSEngineConfig is the per-engine configuration block.
type TTSEngineConfig struct {
	// Voice selects the synthesis voice. Empty uses the system default.
	Voice string `yaml:"voice"`

	// Rate is the speech rate in words per minute, clamped to [90, 400].
	Rate int `yaml:"rate"`

	// Volume is the playback volume, clamped to [0, 1].
	Volume float64 `yaml:"volume"`
}

// ConversationConfig tunes the conversation store and tool loop.
type ConversationConfig struct {
	// MaxHistoryTurns bounds retained exchanges; the store keeps at most
	// twice this many non-system messages.
	MaxHistoryTurns int `yaml:"max_history_turns"`

	// ContextWindowTokens is the estimated token budget for the history.
	ContextWindowTokens int `yaml:"context_window_tokens"`

	// SystemPrompt seeds every conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// SessionTimeoutMinutes resets an idle conversation.
	SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`

	// MaxToolIterations caps LLM calls in the tool loop.
	MaxToolIterations int `yaml:"max_tool_iterations"`
}

// PerformanceConfig tunes metrics collection.
type PerformanceConfig struct {
	// EnableMetrics turns on the OpenTelemetry instrument mirror.
	EnableMetrics bool `yaml:"enable_metrics"`

	// MetricsLogIntervalSeconds is the period of the metrics summary log
	// line. 0 disables the summary loop.
	MetricsLogIntervalSeconds int `yaml:"metrics_log_interval_seconds"`

	// Cache toggles response caching layers.
	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig toggles caching.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ErrorHandlingConfig tunes failure behaviour.
type ErrorHandlingConfig struct {
	// RetryOnFailure enables LLM retries.
	RetryOnFailure bool `yaml:"retry_on_failure"`

	// MaxRetries bounds LLM retry attempts. Defaults to 3.
	MaxRetries int `yaml:"max_retries"`

	// SpeakErrors announces failures through TTS.
	SpeakErrors bool `yaml:"speak_errors"`

	// ErrorPhrases overrides the default spoken phrases by kind.
	ErrorPhrases map[string]string `yaml:"error_phrases"`

	// Fallback configures provider failover.
	Fallback FallbackConfig `yaml:"fallback"`
}

// FallbackConfig configures LLM provider failover.
type FallbackConfig struct {
	// UseCloudAPIOnLocalFailure switches to llm.fallback_backend when the
	// local backend keeps failing.
	UseCloudAPIOnLocalFailure bool `yaml:"use_cloud_api_on_local_failure"`
}

// FallbackEnabled reports whether provider failover should be built: the
// flag must be on and a fallback backend named.
func (c *Config) FallbackEnabled() bool {
	return c.ErrorHandling.Fallback.UseCloudAPIOnLocalFailure && c.LLM.FallbackBackend != ""
}

// InlineAIConfig tunes the inline text transforms.
type InlineAIConfig struct {
	// MaxTokens caps inline completion lengths. 0 lets the backend decide.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature overrides the per-operation defaults when > 0.
	Temperature float64 `yaml:"temperature"`

	// Compose holds compose-specific settings.
	Compose ComposeConfig `yaml:"compose"`

	// Formatting holds formatting-specific settings.
	Formatting FormattingConfig `yaml:"formatting"`

	// Proofread holds proofread-specific settings.
	Proofread ProofreadConfig `yaml:"proofread"`
}

// ComposeConfig tunes the compose operation.
type ComposeConfig struct {
	MaxLength int `yaml:"max_length"`
}

// FormattingConfig tunes the format operation.
type FormattingConfig struct {
	SummaryLength  int `yaml:"summary_length"`
	KeyPointsCount int `yaml:"key_points_count"`
}

// ProofreadConfig tunes the proofread operation.
type ProofreadConfig struct {
	ShowChanges bool `yaml:"show_changes"`
}

// ToolsConfig lists the MCP servers to connect to.
type ToolsConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport is "stdio" or "streamable-http".
	Transport string `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio".
	Command string `yaml:"command"`

	// URL is the MCP endpoint address for streamable-http transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the
	// subprocess for stdio transport. May be nil.
	Env map[string]string `yaml:"env"`
}

// Default returns a Config populated with the documented defaults. Loading
// decodes YAML on top of this value, so absent options keep their defaults.
func Default() *Config {
	return &Config{
		App: AppConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			SampleRate:          16000,
			Channels:            1,
			PrerollSeconds:      3,
			DeviceIndex:         -1,
			VADThreshold:        0.02,
			MinSpeechMs:         300,
			MinSilenceMs:        800,
			MaxUtteranceSeconds: 30,
			WakeWordSensitivity: 0.5,
			HotkeyEnabled:       true,
		},
		STT: STTConfig{
			Language: "en",
		},
		TTS: TTSConfig{Engine: "say"},
		Conversation: ConversationConfig{
			MaxHistoryTurns:       10,
			ContextWindowTokens:   4096,
			SessionTimeoutMinutes: 30,
			MaxToolIterations:     5,
		},
		Performance: PerformanceConfig{
			MetricsLogIntervalSeconds: 60,
		},
		ErrorHandling: ErrorHandlingConfig{
			RetryOnFailure: true,
			MaxRetries:     3,
		},
		InlineAI: InlineAIConfig{
			Formatting: FormattingConfig{SummaryLength: 3},
			Proofread:  ProofreadConfig{ShowChanges: true},
		},
	}
}
