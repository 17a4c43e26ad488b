// Package stt turns captured utterance audio into text.
//
// The package-level contract is [Transcriber]; the shipped implementation,
// [ProcessTranscriber], shells out to a whisper-cli style binary on a
// temporary WAV file. Results are content-addressed through an optional
// [Cache] so that re-processing identical audio (common in tests and during
// development against recorded fixtures) skips the subprocess entirely.
package stt

import (
	"context"

	"github.com/auricle-ai/auricle/pkg/types"
)

// Result is the outcome of a transcription.
type Result struct {
	// Text is the cleaned transcript. Empty when the audio contained no
	// recognisable speech.
	Text string `json:"text"`

	// Language is the BCP-47 code of the detected or configured language.
	Language string `json:"language,omitempty"`

	// Confidence is the engine's overall confidence in [0,1], or 0 when the
	// engine does not report one.
	Confidence float64 `json:"confidence,omitempty"`

	// DurationMs is how long the transcription took, excluding cache lookup.
	DurationMs int64 `json:"duration_ms"`

	// ModelID identifies the model that produced the transcript.
	ModelID string `json:"model_id,omitempty"`

	// CacheHit reports whether the result was served from the cache.
	CacheHit bool `json:"-"`
}

// Transcriber converts an audio chunk into text.
type Transcriber interface {
	// Transcribe converts the chunk to text. Audio that contains no speech
	// yields an empty-text Result, not an error.
	Transcribe(ctx context.Context, chunk types.AudioChunk) (*Result, error)

	// Close releases any engine resources.
	Close() error
}

// AsyncResult carries the outcome of an asynchronous transcription.
type AsyncResult struct {
	Result *Result
	Err    error
}

// TranscribeAsync runs t.Transcribe in a goroutine and delivers the outcome
// on the returned channel. The channel is buffered; the result can be
// collected at any time without blocking the worker.
func TranscribeAsync(ctx context.Context, t Transcriber, chunk types.AudioChunk) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		res, err := t.Transcribe(ctx, chunk)
		out <- AsyncResult{Result: res, Err: err}
	}()
	return out
}
