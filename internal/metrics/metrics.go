// Package metrics collects per-stage latency and outcome statistics for the
// assistant pipeline. The collector keeps everything in memory behind a
// single mutex (recording a sample is a map lookup, a few additions, and a
// ring-buffer write, comfortably under the pipeline's latency noise floor)
// and mirrors each sample into OpenTelemetry instruments so the same numbers
// are scrapeable via the Prometheus bridge.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Well-known stage names. Tool executions record under "tool_<name>".
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// stageStats is the mutable accounting for one pipeline stage.
type stageStats struct {
	calls     int64
	successes int64
	errors    int64
	totalMs   float64
	minMs     float64
	maxMs     float64
	window    *rollingWindow
}

// StageSnapshot is the read-only view of one stage's statistics.
type StageSnapshot struct {
	Calls     int64   `json:"calls"`
	Successes int64   `json:"successes"`
	Errors    int64   `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	P95Ms     float64 `json:"p95_ms"`
}

// Snapshot is a point-in-time view of all collected statistics.
type Snapshot struct {
	UptimeSeconds  float64                  `json:"uptime_seconds"`
	TotalRequests  int64                    `json:"total_requests"`
	TotalSuccesses int64                    `json:"total_successes"`
	TotalFailures  int64                    `json:"total_failures"`
	EndToEndP95Ms  float64                  `json:"end_to_end_p95_ms"`
	Stages         map[string]StageSnapshot `json:"stages"`
}

// Collector gathers stage and request statistics. All methods are safe for
// concurrent use. The zero value is not usable; call NewCollector.
type Collector struct {
	mu      sync.Mutex
	stages  map[string]*stageStats
	started time.Time

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	e2e            *rollingWindow

	instruments *Instruments // optional OTel mirror, may be nil
	now         func() time.Time
}

// NewCollector creates a Collector. instruments may be nil to skip the OTel
// mirror (tests, metrics disabled).
func NewCollector(instruments *Instruments) *Collector {
	return &Collector{
		stages:      make(map[string]*stageStats),
		started:     time.Now(),
		e2e:         newRollingWindow(100),
		instruments: instruments,
		now:         time.Now,
	}
}

// Timer starts timing a stage and returns a stop function. Pass the stage's
// outcome error (nil for success) to the stop function; calling it more than
// once records more than once.
func (c *Collector) Timer(stage string) func(err error) {
	start := c.now()
	return func(err error) {
		c.Record(stage, c.now().Sub(start), err)
	}
}

// Record adds one sample for a stage.
func (c *Collector) Record(stage string, d time.Duration, err error) {
	ms := float64(d.Microseconds()) / 1000

	c.mu.Lock()
	st, ok := c.stages[stage]
	if !ok {
		st = &stageStats{window: newRollingWindow(100), minMs: ms}
		c.stages[stage] = st
	}
	st.calls++
	if err != nil {
		st.errors++
	} else {
		st.successes++
	}
	st.totalMs += ms
	if ms < st.minMs || st.calls == 1 {
		st.minMs = ms
	}
	if ms > st.maxMs {
		st.maxMs = ms
	}
	window := st.window
	c.mu.Unlock()

	window.Record(ms)

	if c.instruments != nil {
		c.instruments.RecordStage(context.Background(), stage, d, err == nil)
	}
}

// RecordRequest adds one end-to-end request sample.
func (c *Collector) RecordRequest(d time.Duration, success bool) {
	c.mu.Lock()
	c.totalRequests++
	if success {
		c.totalSuccesses++
	} else {
		c.totalFailures++
	}
	c.mu.Unlock()

	c.e2e.Record(float64(d.Microseconds()) / 1000)

	if c.instruments != nil {
		c.instruments.RecordRequest(context.Background(), d, success)
	}
}

// Snapshot returns a copy of all statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		UptimeSeconds:  c.now().Sub(c.started).Seconds(),
		TotalRequests:  c.totalRequests,
		TotalSuccesses: c.totalSuccesses,
		TotalFailures:  c.totalFailures,
		Stages:         make(map[string]StageSnapshot, len(c.stages)),
	}
	type pending struct {
		name   string
		stats  StageSnapshot
		window *rollingWindow
	}
	pendings := make([]pending, 0, len(c.stages))
	for name, st := range c.stages {
		s := StageSnapshot{
			Calls:     st.calls,
			Successes: st.successes,
			Errors:    st.errors,
			MinMs:     st.minMs,
			MaxMs:     st.maxMs,
		}
		if st.calls > 0 {
			s.AvgMs = st.totalMs / float64(st.calls)
		}
		pendings = append(pendings, pending{name: name, stats: s, window: st.window})
	}
	c.mu.Unlock()

	// Percentiles are computed outside the collector lock; each window has
	// its own mutex.
	for _, p := range pendings {
		p.stats.P95Ms = p.window.P95()
		snap.Stages[p.name] = p.stats
	}
	snap.EndToEndP95Ms = c.e2e.P95()
	return snap
}

// RunSummaryLoop logs a one-line digest of the snapshot every interval until
// ctx is cancelled. Intervals ≤ 0 disable the loop.
func (c *Collector) RunSummaryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.logSummary()
		}
	}
}

func (c *Collector) logSummary() {
	snap := c.Snapshot()
	args := []any{
		"uptime_s", int64(snap.UptimeSeconds),
		"requests", snap.TotalRequests,
		"failures", snap.TotalFailures,
		"e2e_p95_ms", snap.EndToEndP95Ms,
	}
	for _, name := range []string{StageSTT, StageLLM, StageTTS} {
		if st, ok := snap.Stages[name]; ok {
			args = append(args, name+"_p95_ms", st.P95Ms)
		}
	}
	slog.Info("pipeline metrics summary", args...)
}
