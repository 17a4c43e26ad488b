// Package pipeline runs a captured utterance through transcription, the
// language model (with its tool loop), and speech synthesis.
//
// The orchestrator is single-flight: one utterance is processed end-to-end
// before the next is considered. Utterances arriving while a request is in
// flight are dropped or queued according to [Config.BusyPolicy].
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auricle-ai/auricle/internal/audio"
	"github.com/auricle-ai/auricle/internal/conversation"
	"github.com/auricle-ai/auricle/internal/errorpolicy"
	"github.com/auricle-ai/auricle/internal/metrics"
	"github.com/auricle-ai/auricle/internal/stt"
	"github.com/auricle-ai/auricle/internal/tools"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/types"
)

// BusyPolicy selects what happens to an utterance that arrives while a
// request is already in flight.
type BusyPolicy string

const (
	// BusyDrop discards the new utterance with a log line. The default.
	BusyDrop BusyPolicy = "drop"

	// BusyQueue holds at most one pending utterance and processes it when
	// the current request finishes. Further arrivals are dropped.
	BusyQueue BusyPolicy = "queue"
)

// errNoSpeech is the user-facing reason for an empty transcription.
const errNoSpeech = "No speech detected"

// brokerUnavailable is substituted for tool output when no broker is wired.
const brokerUnavailable = "Error: Tool execution not available"

// Config tunes the orchestrator.
type Config struct {
	// MaxToolIterations caps provider calls in the tool loop. Defaults to 5.
	MaxToolIterations int

	// BusyPolicy selects drop or queue behaviour. Defaults to drop.
	BusyPolicy BusyPolicy

	// STTTimeout, LLMTimeout, TTSTimeout bound the respective stages.
	// Defaults: 30 s, 120 s, 60 s.
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// MaxTokens caps completion length per provider call. Zero leaves the
	// provider default in place.
	MaxTokens int

	// Temperature is passed on every provider call. Nil leaves the
	// provider default in place.
	Temperature *float64
}

func (c Config) withDefaults() Config {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 5
	}
	if c.BusyPolicy == "" {
		c.BusyPolicy = BusyDrop
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 30 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 120 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 60 * time.Second
	}
	return c
}

// Result is the outcome of one pipeline request.
type Result struct {
	Success       bool             `json:"success"`
	Transcription string           `json:"transcription,omitempty"`
	Response      string           `json:"response,omitempty"`
	Err           string           `json:"error,omitempty"`
	ToolCallsMade int              `json:"tool_calls_made"`
	DurationMs    int64            `json:"duration_ms"`
	StageMs       map[string]int64 `json:"stage_ms,omitempty"`
}

// Orchestrator drives the STT → LLM → TTS pipeline.
type Orchestrator struct {
	transcriber stt.Transcriber
	provider    llm.Provider
	fallback    llm.Provider // may be nil
	store       *conversation.Store
	broker      tools.Broker // may be nil
	speaker     tts.Speaker  // may be nil
	policy      *errorpolicy.Policy
	collector   *metrics.Collector
	cfg         Config

	busy        atomic.Bool
	interrupted atomic.Bool

	pendingMu sync.Mutex
	pending   *types.AudioChunk
}

// New creates an Orchestrator. transcriber, provider, store, policy and
// collector are required; fallback, broker and speaker may be nil.
func New(
	transcriber stt.Transcriber,
	provider llm.Provider,
	fallback llm.Provider,
	store *conversation.Store,
	broker tools.Broker,
	speaker tts.Speaker,
	policy *errorpolicy.Policy,
	collector *metrics.Collector,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		transcriber: transcriber,
		provider:    provider,
		fallback:    fallback,
		store:       store,
		broker:      broker,
		speaker:     speaker,
		policy:      policy,
		collector:   collector,
		cfg:         cfg.withDefaults(),
	}
}

// HandleEvent routes an audio pipeline event. Utterances run the full
// pipeline; wake and error events are logged only. Returns nil when no
// request was processed.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev audio.Event) *Result {
	switch e := ev.(type) {
	case audio.UtteranceEvent:
		return o.ProcessAudio(ctx, types.AudioChunk{Samples: e.Samples, SampleRate: e.SampleRate})
	case audio.WakeEvent:
		slog.Debug("pipeline: wake", "source", e.Source)
	case audio.ErrorEvent:
		slog.Error("pipeline: audio error", "error", e.Err)
	}
	return nil
}

// ProcessAudio runs one utterance through the pipeline. It returns nil when
// the request was dropped or queued because another is in flight.
func (o *Orchestrator) ProcessAudio(ctx context.Context, chunk types.AudioChunk) *Result {
	if !o.busy.CompareAndSwap(false, true) {
		if o.cfg.BusyPolicy == BusyQueue && o.enqueue(chunk) {
			slog.Info("pipeline: busy, utterance queued")
		} else {
			slog.Warn("pipeline: busy, utterance dropped")
		}
		return nil
	}

	res := o.run(ctx, chunk)

	for {
		next := o.dequeue()
		if next == nil {
			break
		}
		slog.Info("pipeline: processing queued utterance")
		res = o.run(ctx, *next)
	}
	o.busy.Store(false)
	return res
}

// Busy reports whether a request is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Interrupt stops any in-flight TTS playback and marks the current request
// cancelled; the pipeline observes the flag at each stage boundary.
func (o *Orchestrator) Interrupt() {
	o.interrupted.Store(true)
	if o.speaker != nil {
		if err := o.speaker.Stop(); err != nil {
			slog.Warn("pipeline: stop playback", "error", err)
		}
	}
}

func (o *Orchestrator) enqueue(chunk types.AudioChunk) bool {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	if o.pending != nil {
		return false
	}
	o.pending = &chunk
	return true
}

func (o *Orchestrator) dequeue() *types.AudioChunk {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	next := o.pending
	o.pending = nil
	return next
}

// run executes one request end-to-end.
func (o *Orchestrator) run(ctx context.Context, chunk types.AudioChunk) *Result {
	o.interrupted.Store(false)
	start := time.Now()
	res := &Result{StageMs: make(map[string]int64)}

	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		o.collector.RecordRequest(time.Since(start), res.Success)
	}()

	ctx, span := metrics.StartSpan(ctx, "pipeline.request")
	defer span.End()

	// STT stage.
	text, err := o.runSTT(ctx, chunk, res)
	if err != nil {
		o.speakErrorPhrase(errorpolicy.StageSTT, err)
		res.Err = err.Error()
		return res
	}
	if text == "" {
		res.Err = errNoSpeech
		return res
	}
	res.Transcription = text

	if o.interrupted.Load() {
		res.Err = "interrupted"
		return res
	}

	// LLM stage with tool loop.
	content, toolCalls, err := o.runLLM(ctx, text, res)
	if err != nil {
		o.speakErrorPhrase(errorpolicy.StageLLM, err)
		res.Err = err.Error()
		return res
	}
	res.Response = content
	res.ToolCallsMade = toolCalls
	res.Success = true

	if o.interrupted.Load() {
		return res
	}

	// TTS stage. Failures never fail the request.
	o.runTTS(ctx, content, res)
	return res
}

func (o *Orchestrator) runSTT(ctx context.Context, chunk types.AudioChunk, res *Result) (string, error) {
	ctx, span := metrics.StartSpan(ctx, "pipeline.stt")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.STTTimeout)
	defer cancel()

	stageStart := time.Now()
	stop := o.collector.Timer(metrics.StageSTT)
	sttRes, err := o.transcriber.Transcribe(ctx, chunk)
	stop(err)
	res.StageMs[metrics.StageSTT] = time.Since(stageStart).Milliseconds()

	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	if sttRes.CacheHit {
		slog.Debug("pipeline: transcription served from cache")
	}
	return sttRes.Text, nil
}

// runLLM appends the user message and drives the tool loop. It returns the
// final assistant content and the number of tool calls made.
func (o *Orchestrator) runLLM(ctx context.Context, userText string, res *Result) (string, int, error) {
	ctx, span := metrics.StartSpan(ctx, "pipeline.llm")
	defer span.End()

	o.store.AddUserMessage(userText)

	var defs []types.ToolDefinition
	if o.broker != nil {
		defs = o.broker.ListTools(ctx)
	}

	toolCallsMade := 0
	llmStart := time.Now()
	defer func() {
		res.StageMs[metrics.StageLLM] = time.Since(llmStart).Milliseconds()
	}()

	for iteration := 1; iteration <= o.cfg.MaxToolIterations; iteration++ {
		result, err := o.completeWithPolicy(ctx, llm.CompletionRequest{
			Messages:    o.store.Messages(),
			Tools:       defs,
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		})
		if err != nil {
			return "", toolCallsMade, err
		}

		if !result.HasToolCalls() {
			o.store.AddAssistantMessage(result.Content, nil)
			return result.Content, toolCallsMade, nil
		}
		if iteration == o.cfg.MaxToolIterations {
			slog.Warn("pipeline: max tool iterations reached",
				"iterations", iteration, "pending_calls", len(result.ToolCalls))
			o.store.AddAssistantMessage(result.Content, result.ToolCalls)
			return result.Content, toolCallsMade, nil
		}

		o.store.AddAssistantMessage(result.Content, result.ToolCalls)
		for _, tc := range result.ToolCalls {
			output := o.executeTool(ctx, tc)
			o.store.AddToolResult(tc.Name, output, tc.ID)
			toolCallsMade++
		}

		if o.interrupted.Load() {
			return "", toolCallsMade, fmt.Errorf("interrupted")
		}
	}
	// Unreachable: the loop always returns by the cap iteration.
	return "", toolCallsMade, nil
}

// completeWithPolicy calls the provider, retrying and falling back per the
// error policy. Each attempt is timed as an llm stage call.
func (o *Orchestrator) completeWithPolicy(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	retry := o.policy.LLMRetry()

	for attempt := 1; ; attempt++ {
		result, err := o.completeOnce(ctx, o.provider, req)
		if err == nil {
			return result, nil
		}

		switch o.policy.Decide(errorpolicy.StageLLM, err, attempt) {
		case errorpolicy.ActionRetry:
			delay := retry.Delay(attempt)
			slog.Warn("pipeline: llm call failed, backing off",
				"attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case errorpolicy.ActionFallback:
			slog.Warn("pipeline: switching to fallback provider", "error", err)
			result, fbErr := o.completeOnce(ctx, o.fallback, req)
			if fbErr != nil {
				return nil, fmt.Errorf("fallback provider failed: %w", fbErr)
			}
			return result, nil

		default:
			return nil, err
		}
	}
}

func (o *Orchestrator) completeOnce(ctx context.Context, p llm.Provider, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()

	stop := o.collector.Timer(metrics.StageLLM)
	result, err := p.Complete(ctx, req)
	stop(err)
	return result, err
}

// executeTool runs one tool call, timing it under "tool_<name>". Failures
// become the tool's output so the model can adapt.
func (o *Orchestrator) executeTool(ctx context.Context, tc types.ToolCall) string {
	if o.broker == nil {
		return brokerUnavailable
	}

	ctx, span := metrics.StartSpan(ctx, "pipeline.tool."+tc.Name)
	defer span.End()

	stop := o.collector.Timer("tool_" + tc.Name)
	output, err := o.broker.CallTool(ctx, tc.Name, tc.Parsed)
	stop(err)

	if err != nil {
		slog.Warn("pipeline: tool call failed", "tool", tc.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return output
}

func (o *Orchestrator) runTTS(ctx context.Context, content string, res *Result) {
	if o.speaker == nil || content == "" {
		return
	}

	ctx, span := metrics.StartSpan(ctx, "pipeline.tts")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TTSTimeout)
	defer cancel()

	stageStart := time.Now()
	stop := o.collector.Timer(metrics.StageTTS)
	err := o.speaker.Speak(ctx, content, true)
	stop(err)
	res.StageMs[metrics.StageTTS] = time.Since(stageStart).Milliseconds()

	if err != nil {
		// Skip per policy: the response text still reaches the caller.
		slog.Warn("pipeline: speech synthesis failed", "error", err, "text", content)
	}
}

// speakErrorPhrase best-effort announces a stage failure when spoken errors
// are enabled.
func (o *Orchestrator) speakErrorPhrase(stage errorpolicy.Stage, err error) {
	phrase := o.policy.Phrase(stage, err)
	if phrase == "" || o.speaker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.TTSTimeout)
	defer cancel()
	if speakErr := o.speaker.Speak(ctx, phrase, true); speakErr != nil {
		slog.Warn("pipeline: error phrase synthesis failed", "error", speakErr)
	}
}
