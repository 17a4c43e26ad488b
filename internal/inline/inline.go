// Package inline provides synchronous text-transform services: rewrite,
// proofread, summarize, format and compose.
//
// These operations call the LLM provider directly and never touch the
// conversation store; they serve the control protocol's text commands and
// run independently of the audio pipeline.
package inline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Input length bounds in characters. Transform inputs over the bound are
// rejected; compose inputs are truncated instead.
const (
	maxTextLen    = 5000
	maxPromptLen  = 1000
	maxContextLen = 2000
)

// Operation temperatures.
const (
	tempRewrite   = 0.7
	tempProofread = 0.3
	tempSummarize = 0.5
	tempFormat    = 0.5
	tempCompose   = 0.7
)

// Tone names accepted by Rewrite.
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneConcise      = "concise"
)

// Format kinds accepted by Format.
const (
	FormatSummary   = "summary"
	FormatKeyPoints = "key_points"
	FormatList      = "list"
	FormatTable     = "table"
)

// Result is the outcome of one inline operation.
type Result struct {
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	Success      bool           `json:"success"`
	Err          string         `json:"error,omitempty"`
	TokensUsed   int            `json:"tokens_used"`
	ProcessingMs int64          `json:"processing_ms"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Service runs inline transforms against an LLM provider.
type Service struct {
	provider    llm.Provider
	maxTokens   int
	temperature float64
}

// Option configures a Service.
type Option func(*Service)

// WithMaxTokens caps the completion length of every inline operation.
// Values <= 0 leave the provider default in place.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithTemperature overrides the per-operation temperatures with a single
// configured value. Values <= 0 keep the per-operation defaults.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// NewService creates a Service backed by provider.
func NewService(provider llm.Provider, opts ...Option) *Service {
	s := &Service{provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rewrite rephrases text in the requested tone.
func (s *Service) Rewrite(ctx context.Context, text, tone string) *Result {
	start := time.Now()
	res := &Result{Input: text, Metadata: map[string]any{"tone": tone}}

	if err := validateText(text, maxTextLen); err != nil {
		return res.fail(err, start)
	}
	switch tone {
	case ToneProfessional, ToneFriendly, ToneConcise:
	default:
		return res.fail(fmt.Errorf("unknown tone %q", tone), start)
	}

	prompt := fmt.Sprintf(
		"Rewrite the following text in a %s tone. Return only the rewritten text.\n\n%s",
		tone, text)
	output, tokens, err := s.complete(ctx, prompt, tempRewrite)
	if err != nil {
		return res.fail(err, start)
	}
	return res.ok(output, tokens, start)
}

// Summarize condenses text into at most maxSentences sentences. Short
// inputs always get the one-sentence variant.
func (s *Service) Summarize(ctx context.Context, text string, maxSentences int) *Result {
	start := time.Now()
	res := &Result{Input: text, Metadata: map[string]any{"max_sentences": maxSentences}}

	if err := validateText(text, maxTextLen); err != nil {
		return res.fail(err, start)
	}
	if maxSentences < 1 {
		return res.fail(fmt.Errorf("max_sentences must be at least 1"), start)
	}
	if len(text) < 200 {
		maxSentences = 1
	}

	var prompt string
	if maxSentences == 1 {
		prompt = fmt.Sprintf("Summarize the following text in 1 sentence. Return only the summary.\n\n%s", text)
	} else {
		prompt = fmt.Sprintf("Summarize the following text in %d sentences. Return only the summary.\n\n%s", maxSentences, text)
	}
	output, tokens, err := s.complete(ctx, prompt, tempSummarize)
	if err != nil {
		return res.fail(err, start)
	}
	return res.ok(output, tokens, start)
}

// FormatOptions carries the kind-specific parameters for Format.
type FormatOptions struct {
	// MaxPoints caps the bullet count for key_points. 0 means no cap.
	MaxPoints int

	// Columns names the table columns for the table kind. Empty lets the
	// model choose.
	Columns []string
}

// Format restructures text as markdown of the requested kind.
func (s *Service) Format(ctx context.Context, text, kind string, opts FormatOptions) *Result {
	start := time.Now()
	res := &Result{Input: text, Metadata: map[string]any{"kind": kind}}

	if err := validateText(text, maxTextLen); err != nil {
		return res.fail(err, start)
	}

	var prompt string
	switch kind {
	case FormatSummary:
		prompt = fmt.Sprintf("Rewrite the following text as a concise markdown summary paragraph. Return only markdown.\n\n%s", text)
	case FormatKeyPoints:
		limit := "the key points"
		if opts.MaxPoints > 0 {
			limit = fmt.Sprintf("at most %d key points", opts.MaxPoints)
		}
		prompt = fmt.Sprintf("Extract %s from the following text as a markdown bullet list. Return only markdown.\n\n%s", limit, text)
	case FormatList:
		prompt = fmt.Sprintf("Restructure the following text as a markdown numbered list. Return only markdown.\n\n%s", text)
	case FormatTable:
		columns := "appropriate columns"
		if len(opts.Columns) > 0 {
			columns = "the columns " + strings.Join(opts.Columns, ", ")
		}
		prompt = fmt.Sprintf("Restructure the following text as a markdown table with %s. Return only markdown.\n\n%s", columns, text)
	default:
		return res.fail(fmt.Errorf("unknown format kind %q", kind), start)
	}

	output, tokens, err := s.complete(ctx, prompt, tempFormat)
	if err != nil {
		return res.fail(err, start)
	}
	return res.ok(output, tokens, start)
}

// Compose generates new content from a prompt and optional context. Inputs
// over the bounds are truncated rather than rejected. temperature <= 0
// selects the default.
func (s *Service) Compose(ctx context.Context, prompt, contextText string, maxLength int, temperature float64) *Result {
	start := time.Now()
	res := &Result{Input: prompt, Metadata: map[string]any{}}

	if strings.TrimSpace(prompt) == "" {
		return res.fail(fmt.Errorf("prompt must not be empty"), start)
	}
	if len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
		res.Metadata["prompt_truncated"] = true
	}
	if len(contextText) > maxContextLen {
		contextText = contextText[:maxContextLen]
		res.Metadata["context_truncated"] = true
	}
	if temperature <= 0 {
		temperature = s.temperature
	}
	if temperature <= 0 {
		temperature = tempCompose
	}
	res.Metadata["temperature"] = temperature

	var sb strings.Builder
	sb.WriteString("Based on the following prompt")
	if contextText != "" {
		sb.WriteString(" and context")
	}
	sb.WriteString(", generate content.")
	if maxLength > 0 {
		fmt.Fprintf(&sb, " Keep it under %d characters.", maxLength)
	}
	fmt.Fprintf(&sb, "\n\nPrompt: %s", prompt)
	if contextText != "" {
		fmt.Fprintf(&sb, "\n\nContext: %s", contextText)
	}

	output, tokens, err := s.completeAt(ctx, sb.String(), temperature)
	if err != nil {
		return res.fail(err, start)
	}
	return res.ok(output, tokens, start)
}

// complete issues a single-message completion and returns the trimmed
// output. A configured service temperature takes precedence over the
// per-operation default.
func (s *Service) complete(ctx context.Context, prompt string, temperature float64) (string, int, error) {
	if s.temperature > 0 {
		temperature = s.temperature
	}
	return s.completeAt(ctx, prompt, temperature)
}

// completeAt issues the completion at exactly the given temperature.
func (s *Service) completeAt(ctx context.Context, prompt string, temperature float64) (string, int, error) {
	result, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    llm.UserMessage(prompt),
		Temperature: &temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(result.Content), result.Usage.TotalTokens, nil
}

func validateText(text string, bound int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text must not be empty")
	}
	if len(text) > bound {
		return fmt.Errorf("text exceeds the %d character limit", bound)
	}
	return nil
}

func (r *Result) ok(output string, tokens int, start time.Time) *Result {
	r.Output = output
	r.Success = true
	r.TokensUsed = tokens
	r.ProcessingMs = time.Since(start).Milliseconds()
	return r
}

func (r *Result) fail(err error, start time.Time) *Result {
	r.Err = err.Error()
	r.ProcessingMs = time.Since(start).Milliseconds()
	return r
}
