package audio

import (
	"time"

	"github.com/auricle-ai/auricle/pkg/audiofmt"
)

// VAD decides whether audio frames contain speech and tracks end-of-utterance
// silence. Implementations are stateful and not safe for concurrent use; the
// capture loop owns exactly one instance.
type VAD interface {
	// IsSpeech classifies a single frame and returns the frame's energy
	// measure alongside the decision.
	IsSpeech(frame []int16) (bool, float64)

	// UtteranceEnded feeds a frame into the end-of-utterance tracker and
	// reports true exactly once per utterance: on the first frame at which
	// accumulated trailing silence reaches minSilence after speech was heard.
	UtteranceEnded(frame []int16, minSilence time.Duration) bool

	// Reset clears all utterance state, ready for the next capture.
	Reset()
}

// Compile-time assertion that EnergyVAD implements VAD.
var _ VAD = (*EnergyVAD)(nil)

// DefaultEnergyThreshold is the normalized RMS level above which a frame
// counts as speech. 0.02 sits comfortably above room noise on consumer
// microphones while catching quiet speech.
const DefaultEnergyThreshold = 0.02

// EnergyVAD is the built-in energy detector: a frame is speech when its
// normalized RMS exceeds a fixed threshold. Silence is accumulated in sample
// counts rather than wall-clock time, so behaviour is deterministic for a
// given audio stream.
type EnergyVAD struct {
	threshold  float64
	sampleRate int

	hadSpeech      bool
	silenceSamples int
	ended          bool
}

// NewEnergyVAD creates an energy VAD. A non-positive threshold selects
// [DefaultEnergyThreshold].
func NewEnergyVAD(threshold float64, sampleRate int) *EnergyVAD {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyVAD{threshold: threshold, sampleRate: sampleRate}
}

// IsSpeech reports whether the frame's normalized RMS exceeds the threshold.
func (v *EnergyVAD) IsSpeech(frame []int16) (bool, float64) {
	rms := audiofmt.RMS(frame)
	return rms > v.threshold, rms
}

// UtteranceEnded accumulates trailing silence after speech and fires once per
// utterance. Speech frames reset the silence run and re-arm the detector, so
// a new burst of speech after an emitted end starts a fresh utterance.
func (v *EnergyVAD) UtteranceEnded(frame []int16, minSilence time.Duration) bool {
	speech, _ := v.IsSpeech(frame)
	if speech {
		v.hadSpeech = true
		v.silenceSamples = 0
		v.ended = false
		return false
	}
	if !v.hadSpeech || v.ended {
		return false
	}
	v.silenceSamples += len(frame)
	if v.silenceDuration() >= minSilence {
		v.ended = true
		return true
	}
	return false
}

// Reset clears all utterance state.
func (v *EnergyVAD) Reset() {
	v.hadSpeech = false
	v.silenceSamples = 0
	v.ended = false
}

// Threshold returns the configured energy threshold.
func (v *EnergyVAD) Threshold() float64 { return v.threshold }

func (v *EnergyVAD) silenceDuration() time.Duration {
	if v.sampleRate <= 0 {
		return 0
	}
	return time.Duration(v.silenceSamples) * time.Second / time.Duration(v.sampleRate)
}
