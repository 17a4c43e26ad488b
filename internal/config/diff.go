package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (audio device, STT binary, LLM backend, tool servers) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Speech output parameters of the active TTS engine.
	TTSChanged bool
	NewVoice   string
	NewRate    int
	NewVolume  float64

	// Wake word detection sensitivity.
	SensitivityChanged bool
	NewSensitivity     float64

	// System prompt for new conversation turns.
	SystemPromptChanged bool
	NewSystemPrompt     string
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TTSChanged || d.SensitivityChanged || d.SystemPromptChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.App.LogLevel != new.App.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.App.LogLevel
	}

	// Compare the active engine's parameters. Switching the engine itself
	// is not hot-reloadable, so only diff when the engine name is stable.
	if old.TTS.Engine == new.TTS.Engine {
		oldEngine := old.TTS.Engines[old.TTS.Engine]
		newEngine := new.TTS.Engines[new.TTS.Engine]
		if oldEngine != newEngine {
			d.TTSChanged = true
			d.NewVoice = newEngine.Voice
			d.NewRate = newEngine.Rate
			d.NewVolume = newEngine.Volume
		}
	}

	if old.Audio.WakeWordSensitivity != new.Audio.WakeWordSensitivity {
		d.SensitivityChanged = true
		d.NewSensitivity = new.Audio.WakeWordSensitivity
	}

	if old.Conversation.SystemPrompt != new.Conversation.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Conversation.SystemPrompt
	}

	return d
}
