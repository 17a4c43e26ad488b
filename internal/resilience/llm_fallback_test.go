package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResults: []*llm.CompletionResult{{Content: "hello from primary"}},
	}
	secondary := &llmmock.Provider{
		CompleteResults: []*llm.CompletionResult{{Content: "hello from secondary"}},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Fatalf("content = %q, want 'hello from primary'", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.CompleteCalls))
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErrs: []error{llm.NewError(llm.KindConnection, "primary", errors.New("down"))},
	}
	secondary := &llmmock.Provider{
		CompleteResults: []*llm.CompletionResult{{Content: "hello from secondary"}},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Fatalf("content = %q, want 'hello from secondary'", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErrs: []error{errors.New("primary down")}}
	secondary := &llmmock.Provider{CompleteErrs: []error{errors.New("secondary down")}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_InvalidRequestDoesNotFailover(t *testing.T) {
	invalid := llm.NewError(llm.KindInvalidRequest, "primary", errors.New("bad tools"))
	primary := &llmmock.Provider{CompleteErrs: []error{invalid}}
	secondary := &llmmock.Provider{
		CompleteResults: []*llm.CompletionResult{{Content: "should not be reached"}},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatal("invalid request leaked to the fallback provider")
	}
}

func TestLLMFallback_StreamComplete_Failover(t *testing.T) {
	primary := &llmmock.Provider{
		StreamErr: llm.NewError(llm.KindConnection, "primary", errors.New("stream failed")),
	}
	secondary := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "chunk1"}, {Text: "chunk2", FinishReason: "stop"}},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamComplete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []llm.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != "chunk1" {
		t.Fatalf("chunk[0].Text = %q, want chunk1", chunks[0].Text)
	}
}

func TestLLMFallback_Close(t *testing.T) {
	primary := &llmmock.Provider{}
	secondary := &llmmock.Provider{}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if err := fb.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.CloseCallCount != 1 || secondary.CloseCallCount != 1 {
		t.Error("Close did not reach every backend")
	}
}

func TestRetryingProvider_RetriesTransient(t *testing.T) {
	inner := &llmmock.Provider{
		CompleteResults: []*llm.CompletionResult{nil, {Content: "second try"}},
		CompleteErrs: []error{
			llm.NewError(llm.KindConnection, "ollama", errors.New("refused")),
		},
	}
	p := NewRetryingProvider(inner, RetryConfig{
		MaxAttempts: 3,
		Initial:     time.Millisecond,
		Base:        2,
		Max:         5 * time.Millisecond,
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "second try" {
		t.Fatalf("content = %q, want 'second try'", resp.Content)
	}
	if len(inner.CompleteCalls) != 2 {
		t.Fatalf("inner called %d times, want 2", len(inner.CompleteCalls))
	}
}

func TestRetryingProvider_NoRetryOnInvalidRequest(t *testing.T) {
	inner := &llmmock.Provider{
		CompleteErrs: []error{
			llm.NewError(llm.KindInvalidRequest, "openai", errors.New("bad request")),
		},
	}
	p := NewRetryingProvider(inner, RetryConfig{
		MaxAttempts: 3,
		Initial:     time.Millisecond,
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if len(inner.CompleteCalls) != 1 {
		t.Fatalf("inner called %d times, want 1 (no retries)", len(inner.CompleteCalls))
	}
}
