// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., an OpenAI-compatible
// endpoint, Anthropic, or a local Ollama instance) and exposes a uniform
// interface for the Auricle pipeline to perform completions without coupling to
// any specific SDK. Failures are reported through the typed error taxonomy in
// this package so callers can choose a recovery action by error kind rather
// than by string matching.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamComplete must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/auricle-ai/auricle/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// Tools is the set of function/tool definitions offered to the model.
	// Providers that do not support tool calling ignore this field.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. Nil
	// means use the provider default.
	Temperature *float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, a finish signal, tool calls, or any combination thereof.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped: "stop", "length", "tool_calls", or "error".
	FinishReason string

	// ToolCalls contains complete tool invocations. Streaming backends
	// accumulate fragments internally and emit them only on the final chunk.
	ToolCalls []types.ToolCall
}

// CompletionResult is returned by the non-streaming Complete method.
type CompletionResult struct {
	// Content is the full text of the assistant's reply. Empty when the
	// model responds exclusively with tool calls.
	Content string

	// ModelID identifies the model that produced this result.
	ModelID string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// ToolCalls lists all tool invocations requested by the model. The
	// caller executes them and appends the results to the conversation.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage

	// Metadata holds provider-specific extras (latency hints, fingerprints).
	Metadata map[string]string
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *CompletionResult) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returned errors are classified into this package's taxonomy; call
	// KindOf to branch on them.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// StreamComplete sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors after
	// the stream opens surface as a Chunk with FinishReason "error"; the
	// initial error return is non-nil only for failures that prevent the
	// stream from starting. The returned channel is never nil when error
	// is nil.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Close releases backend resources. The provider is unusable afterwards.
	Close() error
}

// UserMessage wraps a single user prompt as a one-element message slice,
// for callers that issue stateless completions.
func UserMessage(content string) []types.Message {
	return []types.Message{{Role: "user", Content: content}}
}
