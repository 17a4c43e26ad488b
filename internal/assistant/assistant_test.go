package assistant_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/assistant"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/metrics"
	"github.com/auricle-ai/auricle/internal/stt"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
	ttsmock "github.com/auricle-ai/auricle/pkg/provider/tts/mock"
	"github.com/auricle-ai/auricle/pkg/types"
)

// fakeTranscriber returns a fixed transcript for any audio.
type fakeTranscriber struct {
	mu         sync.Mutex
	text       string
	calls      int
	closeCalls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ types.AudioChunk) (*stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &stt.Result{Text: f.text, Language: "en", Confidence: 1}, nil
}

func (f *fakeTranscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// fakeDevice captures the chunk callback so tests can push audio manually.
type fakeDevice struct {
	mu         sync.Mutex
	onChunk    func([]int16)
	startCalls int
	stopCalls  int
	closeCalls int
}

func (d *fakeDevice) Start(onChunk func(samples []int16)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChunk = onChunk
	d.startCalls++
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *fakeDevice) push(samples []int16) {
	d.mu.Lock()
	onChunk := d.onChunk
	d.mu.Unlock()
	if onChunk != nil {
		onChunk(samples)
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.MinSilenceMs = 50
	cfg.Conversation.SystemPrompt = "You are a helpful voice assistant."
	cfg.LLM.Backend = "ollama"
	cfg.LLM.Backends = map[string]config.LLMBackendConfig{
		"ollama": {BaseURL: "http://localhost:11434", Model: "llama3.2"},
	}
	return cfg
}

func newAssistant(t *testing.T, cfg *config.Config, deps assistant.Deps) *assistant.Assistant {
	t.Helper()
	if deps.Transcriber == nil {
		deps.Transcriber = &fakeTranscriber{text: "hello"}
	}
	if deps.Provider == nil {
		deps.Provider = &llmmock.Provider{
			CompleteResults: []*llm.CompletionResult{{Content: "hi there"}},
		}
	}
	if deps.Collector == nil {
		deps.Collector = metrics.NewCollector(nil)
	}
	a := assistant.New(cfg, deps)
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func loudSamples(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 8000
		} else {
			s[i] = -8000
		}
	}
	return s
}

func TestLifecycleStatuses(t *testing.T) {
	t.Parallel()
	device := &fakeDevice{}
	speaker := &ttsmock.Speaker{}
	transcriber := &fakeTranscriber{text: "hello"}
	a := newAssistant(t, testConfig(), assistant.Deps{
		Device:      device,
		Speaker:     speaker,
		Transcriber: transcriber,
	})

	if got := a.Status(); got != string(assistant.StatusIdle) {
		t.Fatalf("after Initialize: status %q, want idle", got)
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.Status(); got != string(assistant.StatusListening) {
		t.Errorf("after Start: status %q, want listening", got)
	}
	if device.startCalls != 1 {
		t.Errorf("device.Start calls: got %d, want 1", device.startCalls)
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.Status(); got != string(assistant.StatusIdle) {
		t.Errorf("after Stop: status %q, want idle", got)
	}
	if device.stopCalls != 1 {
		t.Errorf("device.Stop calls: got %d, want 1", device.stopCalls)
	}

	if err := a.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := a.Status(); got != string(assistant.StatusStopped) {
		t.Errorf("after Cleanup: status %q, want stopped", got)
	}
	if device.closeCalls != 1 || speaker.CloseCalls != 1 || transcriber.closeCalls != 1 {
		t.Errorf("close calls: device=%d speaker=%d transcriber=%d, want 1 each",
			device.closeCalls, speaker.CloseCalls, transcriber.closeCalls)
	}

	// Stopped is absorbing.
	if err := a.Start(); err == nil {
		t.Error("Start after Cleanup should fail")
	}
	if got := a.Status(); got != string(assistant.StatusStopped) {
		t.Errorf("status after failed restart: got %q, want stopped", got)
	}
}

func TestStartWithoutInitialize(t *testing.T) {
	t.Parallel()
	a := assistant.New(testConfig(), assistant.Deps{})
	if err := a.Start(); err == nil {
		t.Fatal("Start before Initialize should fail")
	}
}

func TestProcessAudioEndToEnd(t *testing.T) {
	t.Parallel()
	speaker := &ttsmock.Speaker{}
	a := newAssistant(t, testConfig(), assistant.Deps{Speaker: speaker})

	res := a.ProcessAudio(loudSamples(16000), 16000)
	if res == nil || !res.Success {
		t.Fatalf("ProcessAudio: got %+v, want success", res)
	}
	if res.Transcription != "hello" {
		t.Errorf("transcription: got %q", res.Transcription)
	}
	if res.Response != "hi there" {
		t.Errorf("response: got %q", res.Response)
	}
	if len(speaker.Spoken) != 1 || speaker.Spoken[0] != "hi there" {
		t.Errorf("spoken: got %v", speaker.Spoken)
	}

	info := a.ConversationInfo()
	if info.MessageCount != 2 {
		t.Errorf("message count: got %d, want 2", info.MessageCount)
	}

	snap := a.MetricsSnapshot()
	if snap.TotalRequests != 1 || snap.TotalSuccesses != 1 {
		t.Errorf("metrics: got %d/%d, want 1/1", snap.TotalRequests, snap.TotalSuccesses)
	}
	if got := a.Status(); got != string(assistant.StatusIdle) {
		t.Errorf("status after request: got %q, want idle", got)
	}
}

func TestCaptureToCompletion(t *testing.T) {
	t.Parallel()
	device := &fakeDevice{}
	a := newAssistant(t, testConfig(), assistant.Deps{Device: device})

	events := make(chan string, 8)
	a.SetEventCallback(func(name string, _ map[string]any) {
		events <- name
	})

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Cleanup()

	// Hotkey starts capture; loud audio long enough to clear the minimum
	// speech gate, followed by enough trailing silence to end the
	// utterance, drives the full pipeline.
	a.TriggerHotkey()
	device.push(loudSamples(8000))
	device.push(make([]int16, 4096))

	deadline := time.After(5 * time.Second)
	sawComplete := false
	for !sawComplete {
		select {
		case name := <-events:
			if name == "processing_complete" {
				sawComplete = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for processing_complete")
		}
	}

	if info := a.ConversationInfo(); info.MessageCount != 2 {
		t.Errorf("message count: got %d, want 2", info.MessageCount)
	}
	if got := a.Status(); got != string(assistant.StatusListening) {
		t.Errorf("status after capture: got %q, want listening", got)
	}
}

func TestStatusCallback(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, testConfig(), assistant.Deps{Device: &fakeDevice{}})

	statuses := make(chan assistant.Status, 8)
	a.SetStatusCallback(func(s assistant.Status) { statuses <- s })

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, statuses, assistant.StatusListening)

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitStatus(t, statuses, assistant.StatusIdle)
}

func waitStatus(t *testing.T, ch <-chan assistant.Status, want assistant.Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestClearConversation(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, testConfig(), assistant.Deps{})

	a.ProcessAudio(loudSamples(16000), 16000)
	if info := a.ConversationInfo(); info.MessageCount == 0 {
		t.Fatal("expected history after request")
	}

	a.ClearConversation()
	if info := a.ConversationInfo(); info.MessageCount != 0 {
		t.Errorf("message count after clear: got %d, want 0", info.MessageCount)
	}
}

func TestInterruptStopsSpeech(t *testing.T) {
	t.Parallel()
	speaker := &ttsmock.Speaker{}
	a := newAssistant(t, testConfig(), assistant.Deps{Speaker: speaker})

	a.ProcessAudio(loudSamples(16000), 16000)
	a.Interrupt()
	if speaker.StopCalls == 0 {
		t.Error("Interrupt should stop the speaker")
	}
}
