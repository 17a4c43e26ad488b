// Package mock provides a scriptable [tts.Speaker] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// Compile-time assertion that Speaker implements tts.Speaker.
var _ tts.Speaker = (*Speaker)(nil)

// Speaker is a test double that records every call. Configure error fields
// before use; all methods are safe for concurrent use.
type Speaker struct {
	mu sync.Mutex

	// SpeakErr is returned by Speak.
	SpeakErr error

	// SpeakDelay, when non-nil, blocks Speak(wait=true) until the test
	// closes it.
	SpeakDelay chan struct{}

	// Spoken records the text of every Speak call in order.
	Spoken []string

	// StopCalls counts Stop invocations.
	StopCalls int

	// CloseCalls counts Close invocations.
	CloseCalls int

	// Voice, Rate, Volume hold the most recent Set* values.
	Voice  string
	Rate   int
	Volume float64

	speaking bool
}

// Speak implements tts.Speaker.
func (m *Speaker) Speak(ctx context.Context, text string, wait bool) error {
	m.mu.Lock()
	m.Spoken = append(m.Spoken, text)
	err := m.SpeakErr
	delay := m.SpeakDelay
	m.speaking = err == nil
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if wait && delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			m.setSpeaking(false)
			return ctx.Err()
		}
	}
	m.setSpeaking(false)
	return nil
}

// Stop implements tts.Speaker.
func (m *Speaker) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.speaking = false
	return nil
}

// IsSpeaking implements tts.Speaker.
func (m *Speaker) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// SetVoice implements tts.Speaker.
func (m *Speaker) SetVoice(voice string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Voice = voice
}

// SetRate implements tts.Speaker.
func (m *Speaker) SetRate(wpm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rate = tts.ClampRate(wpm)
}

// SetVolume implements tts.Speaker.
func (m *Speaker) SetVolume(volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Volume = tts.ClampVolume(volume)
}

// Close implements tts.Speaker.
func (m *Speaker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.speaking = false
	return nil
}

func (m *Speaker) setSpeaking(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = v
}
