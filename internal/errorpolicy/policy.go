// Package errorpolicy decides how the pipeline reacts to stage failures.
//
// Every failure is mapped to an [Action]; the orchestrator executes the
// action mechanically (retry with backoff, switch to the fallback provider,
// skip the stage, abort the request, or ask the user). When spoken error
// feedback is enabled the policy also supplies the phrase to synthesise.
package errorpolicy

import (
	"time"

	"github.com/auricle-ai/auricle/internal/resilience"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Action is a policy decision for a stage failure.
type Action int

const (
	// ActionRetry re-runs the failed stage after the backoff delay.
	ActionRetry Action = iota

	// ActionFallback switches to the configured fallback provider.
	ActionFallback

	// ActionSkip continues the pipeline without the failed stage's output.
	ActionSkip

	// ActionAbort fails the current request.
	ActionAbort

	// ActionAskUser aborts and asks the user to intervene (e.g. grant
	// microphone permission).
	ActionAskUser
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionSkip:
		return "skip"
	case ActionAbort:
		return "abort"
	case ActionAskUser:
		return "ask_user"
	default:
		return "unknown"
	}
}

// Stage identifies where in the pipeline a failure occurred.
type Stage string

const (
	StageSTT     Stage = "stt"
	StageLLM     Stage = "llm"
	StageTool    Stage = "tool"
	StageTTS     Stage = "tts"
	StageAudio   Stage = "audio"
	StageNetwork Stage = "network"
	StageUnknown Stage = "unknown"
)

// Phrase keys. Each has a built-in default; config may override any of them.
const (
	PhraseSTT             = "stt"
	PhraseLLM             = "llm"
	PhraseAudioPermission = "audio_permission"
	PhraseNetwork         = "network"
	PhraseGeneric         = "generic"
)

// defaultPhrases are the spoken error messages used when config does not
// override them.
var defaultPhrases = map[string]string{
	PhraseSTT:             "Sorry, I didn't catch that.",
	PhraseLLM:             "Sorry, I'm having trouble thinking right now.",
	PhraseAudioPermission: "I can't access the microphone. Please check the audio permissions.",
	PhraseNetwork:         "I'm having trouble connecting. Please check the network.",
	PhraseGeneric:         "Sorry, something went wrong.",
}

// Config tunes the policy.
type Config struct {
	// MaxRetries bounds LLM retry attempts. Defaults to 3.
	MaxRetries int

	// HasFallback reports whether a fallback LLM provider is configured.
	HasFallback bool

	// SpeakErrors enables spoken error phrases.
	SpeakErrors bool

	// Phrases overrides individual default phrases by key.
	Phrases map[string]string
}

// Policy maps stage failures to actions. Create instances with New; the zero
// value works but uses a zero retry budget.
type Policy struct {
	cfg Config
}

// New creates a Policy, applying defaults to cfg.
func New(cfg Config) *Policy {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Policy{cfg: cfg}
}

// LLMRetry is the backoff schedule for transient LLM failures.
func (p *Policy) LLMRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: p.cfg.MaxRetries,
		Initial:     time.Second,
		Base:        2,
		Max:         10 * time.Second,
	}
}

// Decide returns the action for a failure of stage. attempt is 1-based and
// counts completed tries of the stage, so the first failure arrives with
// attempt == 1.
func (p *Policy) Decide(stage Stage, err error, attempt int) Action {
	switch stage {
	case StageSTT:
		// A failed transcription yields nothing for the LLM to act on.
		return ActionAbort

	case StageLLM:
		kind := llm.KindOf(err)
		if !kind.Retryable() {
			return ActionAbort
		}
		if attempt < p.cfg.MaxRetries {
			return ActionRetry
		}
		if p.cfg.HasFallback {
			return ActionFallback
		}
		return ActionAbort

	case StageTool, StageTTS:
		return ActionSkip

	case StageAudio:
		return ActionAskUser

	case StageNetwork:
		return ActionAbort

	default:
		return ActionAbort
	}
}

// Phrase returns the spoken message for a stage failure, or "" when spoken
// errors are disabled.
func (p *Policy) Phrase(stage Stage, err error) string {
	if !p.cfg.SpeakErrors {
		return ""
	}
	return p.phrase(phraseKey(stage, err))
}

// SpeakErrors reports whether error phrases should be synthesised.
func (p *Policy) SpeakErrors() bool { return p.cfg.SpeakErrors }

func phraseKey(stage Stage, err error) string {
	switch stage {
	case StageSTT:
		return PhraseSTT
	case StageLLM:
		if llm.KindOf(err) == llm.KindConnection {
			return PhraseNetwork
		}
		return PhraseLLM
	case StageAudio:
		return PhraseAudioPermission
	case StageNetwork:
		return PhraseNetwork
	default:
		return PhraseGeneric
	}
}

func (p *Policy) phrase(key string) string {
	if msg, ok := p.cfg.Phrases[key]; ok && msg != "" {
		return msg
	}
	return defaultPhrases[key]
}
