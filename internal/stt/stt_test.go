package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/pkg/types"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain text",
			raw:  "hello world\n",
			want: "hello world",
		},
		{
			name: "timestamped segments",
			raw:  "[00:00:00.000 --> 00:00:02.500]   What's the weather\n[00:00:02.500 --> 00:00:03.000]   today?\n",
			want: "What's the weather today?",
		},
		{
			name: "engine log lines stripped",
			raw:  "whisper_init_from_file: loading model\nggml_metal_init: found device\nmain: processing audio\nsystem_info: n_threads = 4\nhello\n",
			want: "hello",
		},
		{
			name: "blank lines stripped",
			raw:  "\n\n  \nhello\n\n",
			want: "hello",
		},
		{
			name: "empty timestamp segment dropped",
			raw:  "[00:00:00.000 --> 00:00:01.000]   \n[00:00:01.000 --> 00:00:02.000]  hi\n",
			want: "hi",
		},
		{
			name: "all noise",
			raw:  "whisper_model_load: done\n\n",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanOutput(tc.raw); got != tc.want {
				t.Errorf("CleanOutput() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTrimSilenceEdges(t *testing.T) {
	loud := make([]int16, trimFrameSamples)
	for i := range loud {
		loud[i] = 8000
	}
	quiet := make([]int16, trimFrameSamples)

	var samples []int16
	samples = append(samples, quiet...)
	samples = append(samples, quiet...)
	samples = append(samples, loud...)
	samples = append(samples, quiet...)
	samples = append(samples, loud...)
	samples = append(samples, quiet...)

	got := trimSilenceEdges(samples)
	// Leading two and trailing one quiet frame trimmed; interior silence kept.
	want := 3 * trimFrameSamples
	if len(got) != want {
		t.Errorf("trimmed length = %d, want %d", len(got), want)
	}

	if got := trimSilenceEdges(append([]int16(nil), quiet...)); got != nil {
		t.Errorf("all-silent audio should trim to nil, got %d samples", len(got))
	}
}

func TestCacheKeyDeterminism(t *testing.T) {
	c, err := NewCache(t.TempDir(), "en", "base.en")
	if err != nil {
		t.Fatal(err)
	}
	chunk := types.AudioChunk{Samples: []int16{1, 2, 3, -4}, SampleRate: 16000}

	k1 := c.Key(chunk)
	k2 := c.Key(types.AudioChunk{Samples: []int16{1, 2, 3, -4}, SampleRate: 16000})
	if k1 != k2 {
		t.Error("identical audio must produce identical keys")
	}
	if k3 := c.Key(types.AudioChunk{Samples: []int16{1, 2, 3, -4}, SampleRate: 8000}); k3 == k1 {
		t.Error("sample rate must be part of the key")
	}
	if k4 := c.Key(types.AudioChunk{Samples: []int16{1, 2, 3, 4}, SampleRate: 16000}); k4 == k1 {
		t.Error("sample content must be part of the key")
	}

	other, err := NewCache(t.TempDir(), "de", "base.en")
	if err != nil {
		t.Fatal(err)
	}
	if other.Key(chunk) == k1 {
		t.Error("language must be part of the key")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir(), "en", "base.en")
	if err != nil {
		t.Fatal(err)
	}
	key := c.Key(types.AudioChunk{Samples: []int16{5, 6, 7}, SampleRate: 16000})

	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put(key, &Result{Text: "hello", Language: "en", Confidence: 1, ModelID: "base.en"})
	res, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if res.Text != "hello" || !res.CacheHit {
		t.Errorf("got %+v, want Text=hello CacheHit=true", res)
	}
}

func TestCacheCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, "en", "")
	if err != nil {
		t.Fatal(err)
	}
	key := c.Key(types.AudioChunk{Samples: []int16{1}, SampleRate: 16000})
	if err := os.WriteFile(filepath.Join(dir, key+".json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("corrupt entry should be a miss")
	}
	if _, err := os.Stat(filepath.Join(dir, key+".json")); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

// fakeBinary writes an executable shell script that emits output and exits
// with status, returning its path.
func fakeBinary(t *testing.T, output string, status int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-whisper")
	script := fmt.Sprintf("#!/bin/sh\ncat <<'EOF'\n%sEOF\nexit %d\n", output, status)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func speechChunk() types.AudioChunk {
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = 8000
	}
	return types.AudioChunk{Samples: samples, SampleRate: 16000}
}

func TestProcessTranscriber(t *testing.T) {
	bin := fakeBinary(t, "[00:00:00.000 --> 00:00:01.000]  turn on the lights\n", 0)
	p, err := NewProcessTranscriber(bin, WithModel("base.en"))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	res, err := p.Transcribe(context.Background(), speechChunk())
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "turn on the lights" {
		t.Errorf("Text = %q, want %q", res.Text, "turn on the lights")
	}
	if res.ModelID != "base.en" || res.Language != "en" {
		t.Errorf("metadata = %q/%q, want base.en/en", res.ModelID, res.Language)
	}
	if res.CacheHit {
		t.Error("uncached run must not report a cache hit")
	}
}

func TestProcessTranscriberBinaryFailure(t *testing.T) {
	bin := fakeBinary(t, "", 1)
	p, err := NewProcessTranscriber(bin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Transcribe(context.Background(), speechChunk()); err == nil {
		t.Error("expected error from failing binary")
	}
}

func TestProcessTranscriberMissingBinary(t *testing.T) {
	if _, err := NewProcessTranscriber("/no/such/binary"); err == nil {
		t.Error("expected error for missing binary")
	}
	if _, err := NewProcessTranscriber(""); err == nil {
		t.Error("expected error for empty binary path")
	}
}

func TestProcessTranscriberSilentAudio(t *testing.T) {
	bin := fakeBinary(t, "should never run\n", 0)
	p, err := NewProcessTranscriber(bin, WithSilenceTrim())
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Transcribe(context.Background(), types.AudioChunk{
		Samples:    make([]int16, 16000),
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" || res.Confidence != 0 {
		t.Errorf("silent audio should yield empty result, got %+v", res)
	}
}

func TestProcessTranscriberCache(t *testing.T) {
	cache, err := NewCache(t.TempDir(), "en", "")
	if err != nil {
		t.Fatal(err)
	}
	bin := fakeBinary(t, "cached text\n", 0)
	p, err := NewProcessTranscriber(bin, WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	chunk := speechChunk()

	first, err := p.Transcribe(context.Background(), chunk)
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHit {
		t.Error("first run should miss the cache")
	}

	// Remove the binary: a second identical request must be served from
	// the cache without invoking it.
	if err := os.Remove(bin); err != nil {
		t.Fatal(err)
	}
	second, err := p.Transcribe(context.Background(), chunk)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheHit || second.Text != "cached text" {
		t.Errorf("second run = %+v, want cache hit with same text", second)
	}
}

type stubTranscriber struct {
	res *Result
	err error
}

func (s *stubTranscriber) Transcribe(context.Context, types.AudioChunk) (*Result, error) {
	return s.res, s.err
}

func (s *stubTranscriber) Close() error { return nil }

func TestTranscribeAsync(t *testing.T) {
	stub := &stubTranscriber{res: &Result{Text: "async"}}
	select {
	case out := <-TranscribeAsync(context.Background(), stub, speechChunk()):
		if out.Err != nil || out.Result.Text != "async" {
			t.Errorf("got %+v, want Text=async", out)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async result")
	}

	stub = &stubTranscriber{err: errors.New("engine down")}
	out := <-TranscribeAsync(context.Background(), stub, speechChunk())
	if out.Err == nil {
		t.Error("expected error to propagate")
	}
}
