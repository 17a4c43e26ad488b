// Package audio implements the capture side of the assistant: a fixed-size
// sample ring buffer, wake-word and voice-activity adapters, and the
// monitor/capture pipeline that turns a raw microphone stream into discrete
// utterance events.
package audio

import (
	"sync"
)

// Ring is a fixed-capacity circular buffer of mono 16-bit PCM samples.
// Writers overwrite the oldest samples once the buffer is full, so the ring
// always holds the most recent window of audio. All methods are safe for
// concurrent use; reads return snapshot copies that never alias the internal
// storage.
type Ring struct {
	mu         sync.Mutex
	buf        []int16
	head       int // next write position
	size       int // number of valid samples, ≤ len(buf)
	sampleRate int
}

// NewRing creates a ring holding the most recent seconds of audio at the
// given sample rate. seconds and sampleRate must be positive; a minimum
// capacity of one sample is enforced.
func NewRing(seconds float64, sampleRate int) *Ring {
	capacity := int(seconds * float64(sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:        make([]int16, capacity),
		sampleRate: sampleRate,
	}
}

// Write appends samples to the ring, overwriting the oldest data when the
// ring is full. A write larger than the ring's capacity keeps only the
// trailing capacity samples.
func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf)
	if len(samples) >= n {
		// Oversized write: only the newest n samples survive.
		copy(r.buf, samples[len(samples)-n:])
		r.head = 0
		r.size = n
		return
	}

	// At most two segments: head→end, then wrap to the start.
	first := copy(r.buf[r.head:], samples)
	copy(r.buf, samples[first:])
	r.head = (r.head + len(samples)) % n
	r.size += len(samples)
	if r.size > n {
		r.size = n
	}
}

// ReadAll returns a copy of every valid sample in chronological order.
func (r *Ring) ReadAll() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLastLocked(r.size)
}

// ReadLast returns a copy of the most recent n samples in chronological
// order. When fewer than n samples are buffered, all of them are returned.
func (r *Ring) ReadLast(n int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.size {
		n = r.size
	}
	return r.readLastLocked(n)
}

// ReadLastSeconds returns a copy of the most recent seconds of audio.
func (r *Ring) ReadLastSeconds(seconds float64) []int16 {
	return r.ReadLast(int(seconds * float64(r.sampleRate)))
}

// Clear discards all buffered samples. Capacity is retained.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

// AvailableSeconds reports how much audio is currently buffered, in seconds.
func (r *Ring) AvailableSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.size) / float64(r.sampleRate)
}

// Capacity returns the ring's sample capacity.
func (r *Ring) Capacity() int { return len(r.buf) }

// SampleRate returns the rate the ring was sized for.
func (r *Ring) SampleRate() int { return r.sampleRate }

// readLastLocked copies the newest n samples (n ≤ r.size) in order.
// Caller must hold r.mu.
func (r *Ring) readLastLocked(n int) []int16 {
	out := make([]int16, n)
	if n == 0 {
		return out
	}
	start := (r.head - n + len(r.buf)) % len(r.buf)
	first := copy(out, r.buf[start:min(start+n, len(r.buf))])
	copy(out[first:], r.buf[:n-first])
	return out
}
