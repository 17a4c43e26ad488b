package resilience

import (
	"context"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple LLM backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
//
// Only retryable failures (connection, timeout, rate limit) trigger failover.
// An invalid request fails identically everywhere, so it is returned
// immediately without burning the fallback budget.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails transiently, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResult, error) {
		res, err := p.Complete(ctx, req)
		if err != nil && llm.KindOf(err) == llm.KindInvalidRequest {
			return nil, haltFallback(err)
		}
		return res, err
	})
}

// StreamComplete sends the request to the first healthy provider and returns
// a streaming chunk channel. Only the initial connection attempt is covered
// by failover; once a stream is established, mid-stream errors surface as
// "error" chunks to the caller.
func (f *LLMFallback) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		ch, err := p.StreamComplete(ctx, req)
		if err != nil && llm.KindOf(err) == llm.KindInvalidRequest {
			return nil, haltFallback(err)
		}
		return ch, err
	})
}

// Close closes every backend in the group, returning the first error.
func (f *LLMFallback) Close() error {
	var firstErr error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RetryingProvider wraps an [llm.Provider] so transient failures are retried
// in place with exponential backoff before the error escapes to the caller.
// The schedule matches what local backends need to ride out model load
// stalls: 2s initial delay, doubling, capped at 10s, three attempts total.
type RetryingProvider struct {
	inner llm.Provider
	cfg   RetryConfig
}

// Compile-time interface assertion.
var _ llm.Provider = (*RetryingProvider)(nil)

// DefaultLLMRetry is the provider-internal retry schedule.
var DefaultLLMRetry = RetryConfig{
	MaxAttempts: 3,
	Initial:     2 * time.Second,
	Base:        2,
	Max:         10 * time.Second,
}

// NewRetryingProvider wraps inner with the given retry schedule. A zero cfg
// selects [DefaultLLMRetry].
func NewRetryingProvider(inner llm.Provider, cfg RetryConfig) *RetryingProvider {
	if cfg == (RetryConfig{}) {
		cfg = DefaultLLMRetry
	}
	return &RetryingProvider{inner: inner, cfg: cfg}
}

// Complete retries transient failures per the configured schedule.
func (r *RetryingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return RetryWithResult(ctx, r.cfg, llmRetryable, func() (*llm.CompletionResult, error) {
		return r.inner.Complete(ctx, req)
	})
}

// StreamComplete retries failures to open the stream; established streams
// are never re-driven.
func (r *RetryingProvider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return RetryWithResult(ctx, r.cfg, llmRetryable, func() (<-chan llm.Chunk, error) {
		return r.inner.StreamComplete(ctx, req)
	})
}

// Close closes the wrapped provider.
func (r *RetryingProvider) Close() error { return r.inner.Close() }

func llmRetryable(err error) bool {
	return llm.KindOf(err).Retryable()
}
