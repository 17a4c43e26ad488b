package metrics

import (
	"slices"
	"sync"
)

// rollingWindow tracks the most recent N duration measurements for
// percentile calculation. It uses a ring buffer so that only the newest
// [size] samples are kept. All methods are safe for concurrent use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []float64 // ring buffer of measurements in ms
	pos     int       // next write position
	count   int       // total samples written (may exceed len(samples))
	size    int       // window capacity
}

// newRollingWindow creates a rolling window with the given capacity.
// A size of 0 or negative defaults to 100.
func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 100
	}
	return &rollingWindow{
		samples: make([]float64, size),
		size:    size,
	}
}

// Record adds a measurement (in ms) to the window. The oldest measurement is
// overwritten once the buffer is full.
func (w *rollingWindow) Record(ms float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = ms
	w.pos = (w.pos + 1) % w.size
	w.count++
}

// windowLen returns the number of meaningful samples in the buffer (≤ size).
// Caller must hold w.mu.
func (w *rollingWindow) windowLen() int {
	if w.count >= w.size {
		return w.size
	}
	return w.count
}

// Percentile returns the q-quantile (q in [0,1]) over the current window,
// using nearest-rank on a sorted copy. Returns 0 with no samples.
func (w *rollingWindow) Percentile(q float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.windowLen()
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	if w.count >= w.size {
		// Full ring: oldest element is at pos.
		for i := 0; i < w.size; i++ {
			cp[i] = w.samples[(w.pos+i)%w.size]
		}
	} else {
		copy(cp, w.samples[:n])
	}
	slices.Sort(cp)
	idx := int(float64(n-1) * q)
	return cp[idx]
}

// P95 returns the 95th-percentile measurement in ms.
func (w *rollingWindow) P95() float64 { return w.Percentile(0.95) }
