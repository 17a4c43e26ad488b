package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State enumerates the pipeline's two operating modes.
type State int

const (
	// StateMonitoring: audio flows into the pre-roll ring while the wake
	// detector scans each frame.
	StateMonitoring State = iota

	// StateCapturing: audio accumulates in the utterance buffer until the
	// VAD reports end of utterance or the capture limit is hit.
	StateCapturing
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateMonitoring:
		return "monitoring"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// TriggerSource identifies what moved the pipeline into capture mode.
type TriggerSource int

const (
	// TriggerWake: the wake-word detector fired.
	TriggerWake TriggerSource = iota

	// TriggerHotkey: an explicit user trigger (hotkey or protocol command).
	TriggerHotkey
)

// String returns the wire name of the trigger source.
func (t TriggerSource) String() string {
	if t == TriggerHotkey {
		return "hotkey"
	}
	return "wake_word"
}

// Event is the union of pipeline outputs delivered on [Pipeline.Events].
type Event interface{ isEvent() }

// WakeEvent signals the transition from monitoring to capturing. Preroll is
// a snapshot of the ring at trigger time, in chronological order.
type WakeEvent struct {
	Source  TriggerSource
	Preroll []int16
	At      time.Time
}

// UtteranceEvent carries one completed utterance. Samples holds only audio
// captured after the trigger, trailing silence included; the pre-roll window
// travels on the preceding [WakeEvent].
type UtteranceEvent struct {
	Source     TriggerSource
	Samples    []int16
	SampleRate int
	Duration   time.Duration
}

// ErrorEvent reports a non-fatal pipeline fault.
type ErrorEvent struct {
	Err error
}

func (WakeEvent) isEvent()      {}
func (UtteranceEvent) isEvent() {}
func (ErrorEvent) isEvent()     {}

// PipelineConfig collects the tunables of the capture pipeline.
type PipelineConfig struct {
	// SampleRate of the incoming audio in Hz.
	SampleRate int

	// PrerollSeconds is the size of the rolling pre-trigger window.
	PrerollSeconds float64

	// MinSilence is the trailing-silence duration that ends an utterance.
	MinSilence time.Duration

	// MaxUtterance caps a single capture; the utterance is emitted as-is
	// when exceeded.
	MaxUtterance time.Duration

	// MinSpeech is the least voiced audio a capture must contain to be
	// emitted; shorter ones are discarded as trigger noise. Zero disables
	// the check.
	MinSpeech time.Duration

	// FrameSamples is the analysis frame length for wake and VAD scanning.
	// Zero selects the wake detector's preferred length.
	FrameSamples int
}

// Pipeline is the monitor/capture state machine. Feed it raw device chunks
// through ProcessChunk (safe to call from the audio thread) and consume
// [Event]s from Events. TriggerHotkey forces capture mode and always wins
// over a wake-word detection in the same frame.
type Pipeline struct {
	cfg    PipelineConfig
	wake   WakeDetector
	vad    VAD
	ring   *Ring
	events chan Event

	hotkey atomic.Bool

	mu            sync.Mutex
	state         State
	source        TriggerSource
	utterance     []int16
	speechSamples int
	pending       []int16 // partial frame carried between chunks

	wakeErrLogged atomic.Bool
}

// NewPipeline assembles a pipeline from its collaborators. wake and vad must
// be non-nil; use [NewNoopDetector] for hotkey-only operation.
func NewPipeline(cfg PipelineConfig, wake WakeDetector, vad VAD) *Pipeline {
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = wake.FrameSamples()
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = 512
	}
	return &Pipeline{
		cfg:    cfg,
		wake:   wake,
		vad:    vad,
		ring:   NewRing(cfg.PrerollSeconds, cfg.SampleRate),
		events: make(chan Event, 8),
	}
}

// Events returns the pipeline's output channel. Events are dropped with a
// warning when the consumer falls behind.
func (p *Pipeline) Events() <-chan Event { return p.events }

// State returns the current operating mode.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TriggerHotkey requests an immediate state change: in monitoring mode the
// next processed frame starts a capture; in capture mode it ends the current
// utterance early.
func (p *Pipeline) TriggerHotkey() {
	p.hotkey.Store(true)
}

// Reset returns the pipeline to monitoring mode and discards all buffered
// audio, including the pre-roll window.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateMonitoring
	p.utterance = nil
	p.speechSamples = 0
	p.pending = nil
	p.ring.Clear()
	p.vad.Reset()
	p.hotkey.Store(false)
}

// ProcessChunk ingests an arbitrary-length run of samples, slicing it into
// analysis frames. It never blocks.
func (p *Pipeline) ProcessChunk(samples []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, samples...)
	frame := p.cfg.FrameSamples
	for len(p.pending) >= frame {
		p.processFrame(p.pending[:frame])
		p.pending = p.pending[frame:]
	}
}

// processFrame advances the state machine by one frame. Caller holds p.mu.
func (p *Pipeline) processFrame(frame []int16) {
	switch p.state {
	case StateMonitoring:
		p.ring.Write(frame)

		hotkey := p.hotkey.Swap(false)
		detected, err := p.wake.ProcessFrame(frame)
		if err != nil {
			// Downgrade to no-detection; warn once per fault streak.
			if !p.wakeErrLogged.Swap(true) {
				slog.Warn("wake detector error, treating frame as silent", "error", err)
			}
			detected = false
		} else {
			p.wakeErrLogged.Store(false)
		}

		if !hotkey && !detected {
			return
		}
		src := TriggerWake
		if hotkey {
			src = TriggerHotkey
		}
		p.beginCapture(src)

	case StateCapturing:
		p.utterance = append(p.utterance, frame...)
		if speech, _ := p.vad.IsSpeech(frame); speech {
			p.speechSamples += len(frame)
		}

		if p.hotkey.Swap(false) {
			p.endCapture()
			return
		}
		if p.vad.UtteranceEnded(frame, p.cfg.MinSilence) {
			p.endCapture()
			return
		}
		if p.utteranceDuration() >= p.cfg.MaxUtterance {
			slog.Warn("utterance capture limit reached, flushing",
				"limit", p.cfg.MaxUtterance)
			p.endCapture()
		}
	}
}

func (p *Pipeline) beginCapture(src TriggerSource) {
	p.state = StateCapturing
	p.source = src
	p.utterance = p.utterance[:0]
	p.speechSamples = 0
	p.vad.Reset()
	p.emit(WakeEvent{
		Source:  src,
		Preroll: p.ring.ReadAll(),
		At:      time.Now(),
	})
}

func (p *Pipeline) endCapture() {
	if p.cfg.MinSpeech > 0 && p.speechDuration() < p.cfg.MinSpeech {
		slog.Debug("discarding capture below minimum speech duration",
			"speech", p.speechDuration(), "min", p.cfg.MinSpeech)
	} else {
		samples := make([]int16, len(p.utterance))
		copy(samples, p.utterance)
		p.emit(UtteranceEvent{
			Source:     p.source,
			Samples:    samples,
			SampleRate: p.cfg.SampleRate,
			Duration:   p.utteranceDuration(),
		})
	}
	p.state = StateMonitoring
	p.utterance = p.utterance[:0]
	p.speechSamples = 0
	p.ring.Clear()
	p.vad.Reset()
}

func (p *Pipeline) utteranceDuration() time.Duration {
	return time.Duration(len(p.utterance)) * time.Second / time.Duration(p.cfg.SampleRate)
}

func (p *Pipeline) speechDuration() time.Duration {
	return time.Duration(p.speechSamples) * time.Second / time.Duration(p.cfg.SampleRate)
}

// emit delivers an event without blocking the audio thread. Full channel
// means the consumer is stalled; the event is dropped and logged.
func (p *Pipeline) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("event consumer busy, dropping pipeline event",
			"event", eventName(ev))
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case WakeEvent:
		return "wake"
	case UtteranceEvent:
		return "utterance"
	case ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}
