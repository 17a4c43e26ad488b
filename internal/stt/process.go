package stt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/audiofmt"
	"github.com/auricle-ai/auricle/pkg/types"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultLanguage = "en"

	// trimFrameSamples is the analysis window for the pre-invocation silence
	// trim, 30 ms at 16 kHz.
	trimFrameSamples = 480

	// trimRMSThreshold mirrors the pipeline's energy gate so that audio the
	// VAD considered silence is also dropped here.
	trimRMSThreshold = 0.02
)

// Compile-time assertion that ProcessTranscriber implements Transcriber.
var _ Transcriber = (*ProcessTranscriber)(nil)

// ProcessOption is a functional option for configuring a ProcessTranscriber.
type ProcessOption func(*ProcessTranscriber)

// WithModel sets the model file path passed to the binary via -m.
func WithModel(path string) ProcessOption {
	return func(p *ProcessTranscriber) {
		p.model = path
	}
}

// WithLanguage sets the language code passed via -l. Defaults to "en".
func WithLanguage(lang string) ProcessOption {
	return func(p *ProcessTranscriber) {
		p.language = lang
	}
}

// WithTimeout bounds a single subprocess invocation. Defaults to 30 s.
func WithTimeout(d time.Duration) ProcessOption {
	return func(p *ProcessTranscriber) {
		p.timeout = d
	}
}

// WithCache enables content-addressed result caching.
func WithCache(c *Cache) ProcessOption {
	return func(p *ProcessTranscriber) {
		p.cache = c
	}
}

// WithSilenceTrim enables trimming of leading and trailing silence before
// the subprocess runs. Shorter input means faster inference; audio that is
// entirely silence short-circuits to an empty result.
func WithSilenceTrim() ProcessOption {
	return func(p *ProcessTranscriber) {
		p.trimSilence = true
	}
}

// WithExtraArgs appends additional arguments to every invocation, after the
// standard flags and before the input file.
func WithExtraArgs(args ...string) ProcessOption {
	return func(p *ProcessTranscriber) {
		p.extraArgs = args
	}
}

// ProcessTranscriber runs a whisper-cli style binary on a temporary WAV file
// per transcription request. The binary is expected to print the transcript
// on stdout, possibly interleaved with engine log lines and per-segment
// timestamps, both of which are stripped.
type ProcessTranscriber struct {
	binary      string
	model       string
	language    string
	timeout     time.Duration
	cache       *Cache
	trimSilence bool
	extraArgs   []string
}

// NewProcessTranscriber creates a transcriber that shells out to binary.
// The binary must exist and be executable; this is checked eagerly so that a
// misconfigured path fails at startup rather than on the first utterance.
func NewProcessTranscriber(binary string, opts ...ProcessOption) (*ProcessTranscriber, error) {
	if binary == "" {
		return nil, fmt.Errorf("stt: binary path is required")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("stt: binary not found: %w", err)
	}
	p := &ProcessTranscriber{
		binary:   binary,
		language: defaultLanguage,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Transcribe writes the chunk to a scratch WAV file, runs the binary on it,
// and returns the cleaned transcript. Silent audio produces an empty-text
// result with confidence 0.
func (p *ProcessTranscriber) Transcribe(ctx context.Context, chunk types.AudioChunk) (*Result, error) {
	samples := chunk.Samples
	if p.trimSilence {
		samples = trimSilenceEdges(samples)
	}
	if len(samples) == 0 {
		return &Result{Language: p.language, ModelID: p.model}, nil
	}
	trimmed := types.AudioChunk{Samples: samples, SampleRate: chunk.SampleRate, Timestamp: chunk.Timestamp}

	var key string
	if p.cache != nil {
		key = p.cache.Key(trimmed)
		if res, ok := p.cache.Get(key); ok {
			slog.Debug("stt: cache hit", "key", key[:12])
			return res, nil
		}
	}

	start := time.Now()
	text, err := p.runBinary(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Text:       text,
		Language:   p.language,
		DurationMs: time.Since(start).Milliseconds(),
		ModelID:    p.model,
	}
	if text != "" {
		res.Confidence = 1
	}
	if p.cache != nil {
		p.cache.Put(key, res)
	}
	return res, nil
}

// Close implements Transcriber. The subprocess model holds no persistent
// resources.
func (p *ProcessTranscriber) Close() error { return nil }

func (p *ProcessTranscriber) runBinary(ctx context.Context, chunk types.AudioChunk) (string, error) {
	scratch, err := os.CreateTemp("", "auricle-stt-*.wav")
	if err != nil {
		return "", fmt.Errorf("stt: create scratch file: %w", err)
	}
	path := scratch.Name()
	scratch.Close()
	defer os.Remove(path)

	if err := audiofmt.WriteWAVFile(path, chunk.Samples, chunk.SampleRate); err != nil {
		return "", fmt.Errorf("stt: write scratch wav: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"-l", p.language}
	if p.model != "" {
		args = append(args, "-m", p.model)
	}
	args = append(args, p.extraArgs...)
	args = append(args, "-f", path)

	cmd := exec.CommandContext(ctx, p.binary, args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("stt: %s timed out after %s", filepath.Base(p.binary), p.timeout)
		}
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("stt: %s failed: %w: %s", filepath.Base(p.binary), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("stt: %s failed: %w", filepath.Base(p.binary), err)
	}
	return CleanOutput(string(out)), nil
}

// logLinePrefixes identify whisper.cpp engine chatter that can appear on
// stdout depending on build flags.
var logLinePrefixes = []string{"whisper_", "ggml_", "main:", "system_info:"}

// CleanOutput extracts the transcript from raw binary output: engine log
// lines and blank lines are dropped, per-segment "[hh:mm:ss.mmm --> …]"
// prefixes are stripped, and the surviving text is joined with single spaces.
func CleanOutput(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isLogLine(line) {
			continue
		}
		if strings.HasPrefix(line, "[") {
			end := strings.Index(line, "]")
			if end < 0 {
				continue // unterminated timestamp, nothing usable
			}
			line = strings.TrimSpace(line[end+1:])
			if line == "" {
				continue
			}
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func isLogLine(line string) bool {
	for _, prefix := range logLinePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// trimSilenceEdges drops leading and trailing frames whose normalized RMS
// energy is below the pipeline's silence threshold. Interior silence is kept
// so that pacing between words survives.
func trimSilenceEdges(samples []int16) []int16 {
	first, last := -1, -1
	for i := 0; i < len(samples); i += trimFrameSamples {
		end := min(i+trimFrameSamples, len(samples))
		if audiofmt.RMS(samples[i:end]) >= trimRMSThreshold {
			if first < 0 {
				first = i
			}
			last = end
		}
	}
	if first < 0 {
		return nil
	}
	return samples[first:last]
}
