package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// Compile-time assertion that SaySpeaker implements Speaker.
var _ Speaker = (*SaySpeaker)(nil)

// SayOption is a functional option for configuring a SaySpeaker.
type SayOption func(*SaySpeaker)

// WithVoice sets the initial voice.
func WithVoice(voice string) SayOption {
	return func(s *SaySpeaker) {
		s.voice = voice
	}
}

// WithRate sets the initial speech rate in words per minute.
func WithRate(wpm int) SayOption {
	return func(s *SaySpeaker) {
		s.rate = ClampRate(wpm)
	}
}

// WithVolume sets the initial playback volume.
func WithVolume(v float64) SayOption {
	return func(s *SaySpeaker) {
		s.volume = ClampVolume(v)
	}
}

// WithBinary overrides the synthesis binary. Defaults to "say".
func WithBinary(path string) SayOption {
	return func(s *SaySpeaker) {
		s.binary = path
	}
}

// playback is one in-flight utterance. done is closed exactly once, by the
// waiter goroutine, when the subprocess exits for any reason. Every consumer
// of the completion signal selects on this single channel.
type playback struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error // subprocess exit error, valid after done is closed
}

// SaySpeaker implements [Speaker] by spawning the macOS `say` binary per
// utterance. Volume is applied through an embedded [[volm ...]] speech
// command, rate through the -r flag.
type SaySpeaker struct {
	mu      sync.Mutex
	current *playback

	binary string
	voice  string
	rate   int
	volume float64
}

// NewSaySpeaker creates a speaker backed by the `say` binary. The binary
// must be on PATH; this is checked eagerly.
func NewSaySpeaker(opts ...SayOption) (*SaySpeaker, error) {
	s := &SaySpeaker{
		binary: "say",
		rate:   180,
		volume: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, fmt.Errorf("tts: synthesis binary not found: %w", err)
	}
	return s, nil
}

// Speak implements Speaker.
func (s *SaySpeaker) Speak(ctx context.Context, text string, wait bool) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	s.stopLocked()

	args := []string{"-r", fmt.Sprint(s.rate)}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, fmt.Sprintf("[[volm %.2f]] %s", s.volume, text))

	cmd := exec.Command(s.binary, args...)
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("tts: start %s: %w", s.binary, err)
	}

	p := &playback{cmd: cmd, done: make(chan struct{})}
	s.current = p
	s.mu.Unlock()

	go func() {
		p.err = cmd.Wait()
		close(p.done)

		s.mu.Lock()
		if s.current == p {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	if !wait {
		return nil
	}

	select {
	case <-p.done:
		if p.err != nil {
			return fmt.Errorf("tts: playback failed: %w", p.err)
		}
		return nil
	case <-ctx.Done():
		_ = s.Stop()
		<-p.done
		return ctx.Err()
	}
}

// Stop implements Speaker.
func (s *SaySpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

// stopLocked kills the current playback and waits for its waiter goroutine
// to observe the exit. Caller must hold s.mu.
func (s *SaySpeaker) stopLocked() {
	p := s.current
	if p == nil {
		return
	}
	s.current = nil
	if err := p.cmd.Process.Kill(); err != nil {
		slog.Debug("tts: kill playback", "error", err)
	}
	<-p.done
}

// IsSpeaking implements Speaker.
func (s *SaySpeaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// SetVoice implements Speaker. Takes effect on the next Speak.
func (s *SaySpeaker) SetVoice(voice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = voice
}

// SetRate implements Speaker. Takes effect on the next Speak.
func (s *SaySpeaker) SetRate(wpm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = ClampRate(wpm)
}

// SetVolume implements Speaker. Takes effect on the next Speak.
func (s *SaySpeaker) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = ClampVolume(volume)
}

// Close implements Speaker.
func (s *SaySpeaker) Close() error {
	return s.Stop()
}
