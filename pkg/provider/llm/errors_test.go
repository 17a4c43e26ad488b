package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"typed connection", NewError(KindConnection, "test", errors.New("refused")), KindConnection},
		{"typed rate limit", NewError(KindRateLimit, "test", errors.New("429")), KindRateLimit},
		{"wrapped typed", fmt.Errorf("outer: %w", NewError(KindTimeout, "test", errors.New("t"))), KindTimeout},
		{"plain error", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := NewError(KindRateLimit, "openai", errors.New("429 too many requests"))
	if !errors.Is(err, ErrRateLimit) {
		t.Error("rate limit error does not match ErrRateLimit")
	}
	if errors.Is(err, ErrConnection) {
		t.Error("rate limit error matches ErrConnection")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindConnection, "ollama", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause is not reachable via errors.Is")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindConnection},
		{"429 text", errors.New("HTTP 429 Too Many Requests"), KindRateLimit},
		{"quota text", errors.New("insufficient quota remaining"), KindRateLimit},
		{"400 text", errors.New("HTTP 400 Bad Request"), KindInvalidRequest},
		{"model not found", errors.New("model not found"), KindInvalidRequest},
		{"no such host", errors.New("dial tcp: lookup api: no such host"), KindConnection},
		{"unknown", errors.New("weird"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(Classify("test", tt.err)); got != tt.want {
				t.Errorf("Classify kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	orig := NewError(KindInvalidRequest, "openai", errors.New("bad tools"))
	if got := Classify("other", orig); got != error(orig) {
		t.Error("already-classified error was re-wrapped")
	}
	if Classify("test", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestKindRetryable(t *testing.T) {
	for kind, want := range map[ErrorKind]bool{
		KindConnection:     true,
		KindTimeout:        true,
		KindRateLimit:      true,
		KindInvalidRequest: false,
		KindUnknown:        false,
	} {
		if got := kind.Retryable(); got != want {
			t.Errorf("%v.Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestDecodeToolCall(t *testing.T) {
	tc := DecodeToolCall(toolCall(`{"path": "/tmp/x", "count": 3}`))
	if tc.Parsed == nil {
		t.Fatal("valid JSON arguments left Parsed nil")
	}
	if tc.Parsed["path"] != "/tmp/x" {
		t.Errorf("Parsed[path] = %v", tc.Parsed["path"])
	}

	if got := DecodeToolCall(toolCall("")); got.Parsed == nil || len(got.Parsed) != 0 {
		t.Error("empty arguments should decode to empty map")
	}
	if got := DecodeToolCall(toolCall("{broken")); got.Parsed != nil {
		t.Error("malformed arguments should leave Parsed nil")
	}
}
