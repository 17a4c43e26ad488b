package audio

import (
	"log/slog"
)

// WakeDetector scans fixed-size audio frames for a wake word. Implementations
// wrap an external keyword-spotting engine; the pipeline only depends on this
// contract so a failed engine can be swapped for [NoopDetector] without
// touching the capture loop.
type WakeDetector interface {
	// ProcessFrame analyses one frame of mono 16-bit PCM and reports whether
	// the wake word was detected in it. The frame length must equal
	// FrameSamples.
	ProcessFrame(frame []int16) (bool, error)

	// UpdateSensitivity adjusts detection sensitivity in [0.0, 1.0].
	UpdateSensitivity(sensitivity float64) error

	// FrameSamples is the exact frame length the detector expects.
	FrameSamples() int

	// SampleRate is the sample rate the detector expects, in Hz.
	SampleRate() int

	// Close releases engine resources. The detector is unusable afterwards.
	Close() error
}

// Compile-time assertion that NoopDetector implements WakeDetector.
var _ WakeDetector = (*NoopDetector)(nil)

// NoopDetector is the hotkey-only fallback: it never detects a wake word and
// accepts any frame size. Installed when no wake engine is configured or when
// the configured engine fails to construct.
type NoopDetector struct {
	frameSamples int
	sampleRate   int
}

// NewNoopDetector creates a no-op detector advertising the given frame
// geometry so the pipeline's frame slicing stays uniform.
func NewNoopDetector(frameSamples, sampleRate int) *NoopDetector {
	return &NoopDetector{frameSamples: frameSamples, sampleRate: sampleRate}
}

// ProcessFrame never detects anything.
func (d *NoopDetector) ProcessFrame(_ []int16) (bool, error) { return false, nil }

// UpdateSensitivity is accepted and ignored.
func (d *NoopDetector) UpdateSensitivity(_ float64) error { return nil }

// FrameSamples returns the advertised frame length.
func (d *NoopDetector) FrameSamples() int { return d.frameSamples }

// SampleRate returns the advertised sample rate.
func (d *NoopDetector) SampleRate() int { return d.sampleRate }

// Close is a no-op.
func (d *NoopDetector) Close() error { return nil }

// FallbackDetector wraps a WakeDetector constructor result: on error it logs
// a warning and substitutes a NoopDetector so the assistant still starts in
// hotkey-only mode.
func FallbackDetector(det WakeDetector, err error, frameSamples, sampleRate int) WakeDetector {
	if err != nil || det == nil {
		if err != nil {
			slog.Warn("wake-word engine unavailable, continuing in hotkey-only mode", "error", err)
		}
		return NewNoopDetector(frameSamples, sampleRate)
	}
	return det
}
