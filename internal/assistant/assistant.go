// Package assistant assembles the capture, transcription, completion, and
// speech components into one lifecycle-managed unit with an observable
// status.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auricle-ai/auricle/internal/audio"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/conversation"
	"github.com/auricle-ai/auricle/internal/errorpolicy"
	"github.com/auricle-ai/auricle/internal/metrics"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/stt"
	"github.com/auricle-ai/auricle/internal/tools"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/types"
)

// Status is the externally observable assistant state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusIdle         Status = "idle"
	StatusListening    Status = "listening"
	StatusProcessing   Status = "processing"
	StatusSpeaking     Status = "speaking"
	StatusError        Status = "error"
	StatusStopped      Status = "stopped"
)

// speakPollInterval is how often the event loop samples the speaker while a
// request is in flight to surface the Speaking status.
const speakPollInterval = 50 * time.Millisecond

// Deps are the externally constructed collaborators. Transcriber, Provider
// and Collector are required. Device may be nil for protocol-only operation
// (no audio capture); Wake defaults to a noop detector and VAD to the
// energy detector from the config thresholds.
type Deps struct {
	Transcriber stt.Transcriber
	Provider    llm.Provider
	Fallback    llm.Provider
	Speaker     tts.Speaker
	Broker      tools.Broker
	Collector   *metrics.Collector
	Device      audio.Device
	Wake        audio.WakeDetector
	VAD         audio.VAD
}

// Assistant owns the full voice pipeline. Construct with [New], then call
// Initialize, Start, and eventually Stop and Cleanup. All exported methods
// are safe for concurrent use.
type Assistant struct {
	cfg  *config.Config
	deps Deps

	store   *conversation.Store
	orch    *pipeline.Orchestrator
	capture *audio.Pipeline

	mu       sync.Mutex
	status   Status
	onStatus func(Status)
	onEvent  func(name string, fields map[string]any)
	started  bool

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loop       *errgroup.Group
}

// New stores the config and dependencies. Nothing is wired until
// Initialize runs.
func New(cfg *config.Config, deps Deps) *Assistant {
	return &Assistant{cfg: cfg, deps: deps, status: StatusInitializing}
}

// Initialize builds the conversation store, error policy, capture pipeline,
// and request orchestrator from the config. It must run before Start.
func (a *Assistant) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.deps.Transcriber == nil || a.deps.Provider == nil || a.deps.Collector == nil {
		return fmt.Errorf("assistant: transcriber, provider and collector are required")
	}

	a.store = conversation.NewStore(conversation.Config{
		MaxTurns:    a.cfg.Conversation.MaxHistoryTurns,
		MaxTokens:   a.cfg.Conversation.ContextWindowTokens,
		IdleTimeout: time.Duration(a.cfg.Conversation.SessionTimeoutMinutes) * time.Minute,
	})
	if a.cfg.Conversation.SystemPrompt != "" {
		a.store.SetSystemPrompt(a.cfg.Conversation.SystemPrompt)
	}

	policy := errorpolicy.New(errorpolicy.Config{
		MaxRetries:  a.cfg.ErrorHandling.MaxRetries,
		HasFallback: a.deps.Fallback != nil,
		SpeakErrors: a.cfg.ErrorHandling.SpeakErrors,
		Phrases:     translatePhrases(a.cfg.ErrorHandling.ErrorPhrases),
	})

	a.orch = pipeline.New(
		a.deps.Transcriber,
		a.deps.Provider,
		a.deps.Fallback,
		a.store,
		a.deps.Broker,
		a.deps.Speaker,
		policy,
		a.deps.Collector,
		pipeline.Config{
			MaxToolIterations: a.cfg.Conversation.MaxToolIterations,
			LLMTimeout:        llmTimeout(a.cfg),
			MaxTokens:         a.cfg.LLM.Backends[a.cfg.LLM.Backend].MaxTokens,
			Temperature:       a.cfg.LLM.Backends[a.cfg.LLM.Backend].Temperature,
		},
	)

	wake := a.deps.Wake
	if wake == nil {
		wake = audio.NewNoopDetector(512, a.cfg.Audio.SampleRate)
	}
	vad := a.deps.VAD
	if vad == nil {
		vad = audio.NewEnergyVAD(a.cfg.Audio.VADThreshold, a.cfg.Audio.SampleRate)
	}
	a.capture = audio.NewPipeline(audio.PipelineConfig{
		SampleRate:     a.cfg.Audio.SampleRate,
		PrerollSeconds: a.cfg.Audio.PrerollSeconds,
		MinSilence:     time.Duration(a.cfg.Audio.MinSilenceMs) * time.Millisecond,
		MinSpeech:      time.Duration(a.cfg.Audio.MinSpeechMs) * time.Millisecond,
		MaxUtterance:   time.Duration(a.cfg.Audio.MaxUtteranceSeconds * float64(time.Second)),
	}, wake, vad)

	a.setStatusLocked(StatusIdle)
	return nil
}

// Start begins audio capture and the event loop.
func (a *Assistant) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch == nil {
		return fmt.Errorf("assistant: not initialized")
	}
	if a.status == StatusStopped {
		return fmt.Errorf("assistant: already stopped")
	}
	if a.started {
		return nil
	}

	a.loopCtx, a.loopCancel = context.WithCancel(context.Background())
	a.loop, a.loopCtx = errgroup.WithContext(a.loopCtx)
	a.loop.Go(func() error {
		a.eventLoop(a.loopCtx)
		return nil
	})

	if a.deps.Device != nil {
		if err := a.deps.Device.Start(a.capture.ProcessChunk); err != nil {
			a.loopCancel()
			a.setStatusLocked(StatusError)
			return fmt.Errorf("assistant: start audio device: %w", err)
		}
	}

	a.started = true
	a.setStatusLocked(StatusListening)
	slog.Info("assistant started",
		"sample_rate", a.cfg.Audio.SampleRate,
		"wake_word", a.cfg.Audio.WakeWordEnabled,
	)
	return nil
}

// Stop halts audio capture and the event loop. The assistant returns to
// Idle and may be started again.
func (a *Assistant) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.loopCancel
	loop := a.loop
	a.mu.Unlock()

	var errs []error
	if a.deps.Device != nil {
		if err := a.deps.Device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("assistant: stop audio device: %w", err))
		}
	}

	// The event loop may be mid-request and taking the status lock, so
	// waiting has to happen outside a.mu.
	cancel()
	if err := loop.Wait(); err != nil {
		errs = append(errs, err)
	}
	a.capture.Reset()

	a.setStatus(StatusIdle)
	return errors.Join(errs...)
}

// Cleanup releases every owned resource in reverse construction order:
// tool broker, speaker, transcriber, providers, then the audio device.
// The assistant cannot be restarted afterwards.
func (a *Assistant) Cleanup() error {
	if err := a.Stop(); err != nil {
		slog.Warn("assistant: stop during cleanup", "err", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	closeAll := []struct {
		name  string
		close func() error
	}{
		{"tool broker", closer(a.deps.Broker)},
		{"speaker", closer(a.deps.Speaker)},
		{"transcriber", closer(a.deps.Transcriber)},
		{"fallback provider", closer(a.deps.Fallback)},
		{"llm provider", closer(a.deps.Provider)},
		{"audio device", closer(a.deps.Device)},
	}
	for _, c := range closeAll {
		if c.close == nil {
			continue
		}
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("assistant: close %s: %w", c.name, err))
		}
	}

	a.setStatusLocked(StatusStopped)
	return errors.Join(errs...)
}

// Interrupt stops speech output and cancels the in-flight request.
func (a *Assistant) Interrupt() {
	if a.orch != nil {
		a.orch.Interrupt()
	}
}

// ClearConversation wipes the history, keeping the system prompt.
func (a *Assistant) ClearConversation() {
	if a.store != nil {
		a.store.Clear()
	}
}

// Status returns the current status name.
func (a *Assistant) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.status)
}

// SetStatusCallback registers cb to run on every status change. The callback
// runs outside the assistant's lock.
func (a *Assistant) SetStatusCallback(cb func(Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStatus = cb
}

// SetEventCallback registers cb for pipeline events (wake_word_detected,
// processing_complete).
func (a *Assistant) SetEventCallback(cb func(name string, fields map[string]any)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEvent = cb
}

// SetSystemPrompt replaces the conversation's system prompt. Applied on
// config hot reload.
func (a *Assistant) SetSystemPrompt(prompt string) {
	if a.store != nil {
		a.store.SetSystemPrompt(prompt)
	}
}

// SetWakeSensitivity forwards a new sensitivity to the wake detector.
func (a *Assistant) SetWakeSensitivity(s float64) {
	if a.deps.Wake == nil {
		return
	}
	if err := a.deps.Wake.UpdateSensitivity(s); err != nil {
		slog.Warn("assistant: update wake sensitivity", "err", err)
	}
}

// MetricsSnapshot returns the collector's current statistics.
func (a *Assistant) MetricsSnapshot() metrics.Snapshot {
	return a.deps.Collector.Snapshot()
}

// ConversationInfo returns the conversation store's current statistics.
func (a *Assistant) ConversationInfo() conversation.Info {
	return a.store.Stats()
}

// TriggerHotkey forces utterance capture as if the hotkey was pressed.
func (a *Assistant) TriggerHotkey() {
	if a.capture != nil {
		a.capture.TriggerHotkey()
	}
}

// ProcessAudio runs samples through the request pipeline directly,
// bypassing wake and VAD. Used by tests and programmatic callers.
func (a *Assistant) ProcessAudio(samples []int16, sampleRate int) *pipeline.Result {
	a.setStatus(StatusProcessing)
	defer func() { a.setStatus(a.restingStatus()) }()
	return a.orch.ProcessAudio(context.Background(), types.AudioChunk{
		Samples:    samples,
		SampleRate: sampleRate,
	})
}

// eventLoop consumes capture events and drives the request pipeline.
func (a *Assistant) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.capture.Events():
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		}
	}
}

func (a *Assistant) handleEvent(ctx context.Context, ev audio.Event) {
	switch e := ev.(type) {
	case audio.WakeEvent:
		a.setStatus(StatusListening)
		a.emit("wake_word_detected", map[string]any{
			"source": e.Source.String(),
		})
	case audio.UtteranceEvent:
		a.runRequest(ctx, e)
	case audio.ErrorEvent:
		slog.Error("assistant: audio pipeline error", "err", e.Err)
	}
}

// runRequest processes one utterance, mirroring the speaker's state into
// the Speaking status while the request is in flight.
func (a *Assistant) runRequest(ctx context.Context, ev audio.UtteranceEvent) {
	a.setStatus(StatusProcessing)

	watchDone := make(chan struct{})
	go a.watchSpeaker(watchDone)

	res := a.orch.HandleEvent(ctx, ev)
	close(watchDone)

	if res != nil {
		a.emit("processing_complete", map[string]any{
			"success":       res.Success,
			"transcription": res.Transcription,
			"response":      res.Response,
			"error":         res.Err,
			"duration_ms":   res.DurationMs,
		})
	}

	a.setStatus(a.restingStatus())
}

// restingStatus is where the state machine settles between requests.
func (a *Assistant) restingStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return StatusListening
	}
	return StatusIdle
}

// watchSpeaker flips the status to Speaking while the TTS engine reports
// active playback, then back to Processing.
func (a *Assistant) watchSpeaker(done <-chan struct{}) {
	if a.deps.Speaker == nil {
		return
	}
	ticker := time.NewTicker(speakPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if a.deps.Speaker.IsSpeaking() {
				a.setStatus(StatusSpeaking)
			} else if a.currentStatus() == StatusSpeaking {
				a.setStatus(StatusProcessing)
			}
		}
	}
}

func (a *Assistant) currentStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Assistant) setStatus(s Status) {
	a.mu.Lock()
	a.setStatusLocked(s)
	a.mu.Unlock()
}

// setStatusLocked applies a transition. Error and Stopped are absorbing.
func (a *Assistant) setStatusLocked(s Status) {
	if a.status == StatusStopped || (a.status == StatusError && s != StatusStopped) {
		return
	}
	if a.status == s {
		return
	}
	a.status = s
	slog.Debug("assistant status", "status", s)
	if a.onStatus != nil {
		cb := a.onStatus
		go cb(s)
	}
}

func (a *Assistant) emit(name string, fields map[string]any) {
	a.mu.Lock()
	cb := a.onEvent
	a.mu.Unlock()
	if cb != nil {
		cb(name, fields)
	}
}

// closer adapts a possibly-nil dependency's Close method.
func closer[T interface{ Close() error }](v T) func() error {
	var zero T
	if any(v) == any(zero) {
		return nil
	}
	return v.Close
}

// llmTimeout reads the active backend's timeout, zero meaning the
// pipeline default.
func llmTimeout(cfg *config.Config) time.Duration {
	entry := cfg.LLM.Backends[cfg.LLM.Backend]
	return time.Duration(entry.TimeoutSeconds) * time.Second
}

// phraseAliases maps config error_phrases keys onto policy phrase keys.
var phraseAliases = map[string]string{
	"stt_failed":       errorpolicy.PhraseSTT,
	"llm_failed":       errorpolicy.PhraseLLM,
	"network_error":    errorpolicy.PhraseNetwork,
	"audio_permission": errorpolicy.PhraseAudioPermission,
	"generic":          errorpolicy.PhraseGeneric,
}

func translatePhrases(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if mapped, ok := phraseAliases[k]; ok {
			k = mapped
		}
		out[k] = v
	}
	return out
}
