package pipeline

import (
	"sync"
	"time"
)

// Metrics tracks real per-stream performance counters. FPS is computed
// over a rolling window of recent frame timestamps.
type Metrics struct {
	mu sync.Mutex

	window      int
	frameTimes  []time.Time
	frames      uint64
	lastLatency time.Duration
	classCounts map[string]int64
	startedAt   time.Time
}

// PerfSnapshot is a point-in-time copy of the counters.
type PerfSnapshot struct {
	FPS             float64          `json:"fps"`
	FramesProcessed uint64           `json:"frames_processed"`
	LastInferenceMS float64          `json:"last_inference_ms"`
	ClassCounts     map[string]int64 `json:"class_counts"`
	UptimeSeconds   float64          `json:"uptime_seconds"`
}

// NewMetrics creates counters with the given FPS window size.
func NewMetrics(fpsWindow int) *Metrics {
	if fpsWindow < 2 {
		fpsWindow = 20
	}
	return &Metrics{
		window:      fpsWindow,
		classCounts: make(map[string]int64),
		startedAt:   time.Now(),
	}
}

// RecordFrame notes one processed frame at the given instant.
func (m *Metrics) RecordFrame(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames++
	m.frameTimes = append(m.frameTimes, at)
	if len(m.frameTimes) > m.window {
		m.frameTimes = m.frameTimes[len(m.frameTimes)-m.window:]
	}
}

// RecordInference notes the latency of the most recent detector call.
func (m *Metrics) RecordInference(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLatency = d
}

// RecordDetections bumps the per-class counters.
func (m *Metrics) RecordDetections(labels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, label := range labels {
		m.classCounts[label]++
	}
}

// FPS returns frames per second over the rolling window, 0 until at
// least two frames have been recorded.
func (m *Metrics) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fpsLocked()
}

func (m *Metrics) fpsLocked() float64 {
	n := len(m.frameTimes)
	if n < 2 {
		return 0
	}
	span := m.frameTimes[n-1].Sub(m.frameTimes[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() *PerfSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int64, len(m.classCounts))
	for label, count := range m.classCounts {
		counts[label] = count
	}

	return &PerfSnapshot{
		FPS:             m.fpsLocked(),
		FramesProcessed: m.frames,
		LastInferenceMS: float64(m.lastLatency.Microseconds()) / 1000.0,
		ClassCounts:     counts,
		UptimeSeconds:   time.Since(m.startedAt).Seconds(),
	}
}

// Reset clears everything, for a fresh stream start.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameTimes = nil
	m.frames = 0
	m.lastLatency = 0
	m.classCounts = make(map[string]int64)
	m.startedAt = time.Now()
}
