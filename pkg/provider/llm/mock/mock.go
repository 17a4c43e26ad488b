// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResults: []*llm.CompletionResult{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamComplete.
type StreamCall struct {
	// Ctx is the context passed to StreamComplete.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamComplete.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero-value response fields cause methods to return zero values and nil
// errors. Set the Err fields to inject failures.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteResults are returned by successive Complete calls in order.
	// The final entry repeats once the script is exhausted. An empty slice
	// with a nil CompleteErrs script returns nil, nil.
	CompleteResults []*llm.CompletionResult

	// CompleteErrs are returned by successive Complete calls in order,
	// paired positionally with CompleteResults. A shorter slice means nil
	// errors for the remaining calls.
	CompleteErrs []error

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamComplete. All chunks are sent before the channel
	// is closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamComplete
	// instead of starting a channel.
	StreamErr error

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// StreamCalls records every invocation of StreamComplete in order.
	StreamCalls []StreamCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Complete records the call and returns the next scripted result/error pair.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	var err error
	if n < len(p.CompleteErrs) {
		err = p.CompleteErrs[n]
	}
	var res *llm.CompletionResult
	if len(p.CompleteResults) > 0 {
		if n >= len(p.CompleteResults) {
			n = len(p.CompleteResults) - 1
		}
		res = p.CompleteResults[n]
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StreamComplete records the call and returns a channel that emits StreamChunks.
// If StreamErr is set, it returns nil, StreamErr without opening a channel.
func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Close records the call and returns CloseErr.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
