// Package types defines the shared types used across all Auricle packages.
//
// These types form the lingua franca between the audio pipeline, the speech
// and language providers, and the orchestrator. They are intentionally
// minimal: each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// AudioChunk represents a run of PCM samples flowing through the pipeline.
// Chunks are the atomic unit of audio transport, captured from the input
// device and scanned by the wake-word and VAD adapters before STT.
type AudioChunk struct {
	// Samples is mono 16-bit signed PCM.
	Samples []int16

	// SampleRate in Hz (16000 for the speech pipeline).
	SampleRate int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// DurationSeconds returns the chunk length in seconds at its sample rate.
func (c AudioChunk) DurationSeconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string

	// Name is the tool name on "tool" messages.
	Name string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string as produced by the model.
	Arguments string

	// Parsed is the decoded form of Arguments. Nil when Arguments is not
	// valid JSON; callers must treat that as an invalid tool call.
	Parsed map[string]any
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Energy is the RMS energy of the frame (0.0–1.0 over normalized samples).
	Energy float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)
