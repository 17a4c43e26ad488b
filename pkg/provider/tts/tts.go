// Package tts defines the text-to-speech contract and its process-backed
// implementation.
//
// [Speaker] is deliberately small: the pipeline only ever speaks one
// utterance at a time, needs to preempt playback on interrupt, and adjusts
// voice parameters between utterances. [SaySpeaker] implements the contract
// over the macOS `say` binary; [mock.Speaker] serves tests.
package tts

import "context"

// Rate bounds in words per minute. Values outside are clamped, not rejected.
const (
	MinRate = 90
	MaxRate = 400
)

// Speaker synthesises and plays speech.
type Speaker interface {
	// Speak synthesises text. When wait is true it returns only after
	// playback completes (or ctx is cancelled, which stops playback). When
	// wait is false it returns as soon as playback has started. Speech is
	// serialised: calling Speak while already speaking stops the current
	// utterance first.
	Speak(ctx context.Context, text string, wait bool) error

	// Stop preempts any in-flight playback. Safe to call when idle.
	Stop() error

	// IsSpeaking reports whether playback is in progress.
	IsSpeaking() bool

	// SetVoice selects the synthesis voice. Empty means the system default.
	SetVoice(voice string)

	// SetRate sets the speech rate in words per minute, clamped to
	// [MinRate, MaxRate].
	SetRate(wpm int)

	// SetVolume sets the playback volume, clamped to [0, 1].
	SetVolume(volume float64)

	// Close stops playback and releases resources.
	Close() error
}

// ClampRate clamps a words-per-minute value to [MinRate, MaxRate].
func ClampRate(wpm int) int {
	if wpm < MinRate {
		return MinRate
	}
	if wpm > MaxRate {
		return MaxRate
	}
	return wpm
}

// ClampVolume clamps a volume value to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
