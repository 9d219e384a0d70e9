package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics(20)
	assert.Zero(t, m.FPS(), "no frames yet")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.RecordFrame(base)
	assert.Zero(t, m.FPS(), "one frame is not a rate")

	// 10 frames at 50ms spacing: 20 fps.
	for i := 1; i < 10; i++ {
		m.RecordFrame(base.Add(time.Duration(i) * 50 * time.Millisecond))
	}
	assert.InDelta(t, 20.0, m.FPS(), 0.01)
}

func TestMetricsFPSWindowSlides(t *testing.T) {
	m := NewMetrics(5)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Slow frames first, fast frames after. Only the last 5 count.
	for i := 0; i < 5; i++ {
		m.RecordFrame(base.Add(time.Duration(i) * time.Second))
	}
	fast := base.Add(10 * time.Second)
	for i := 0; i < 5; i++ {
		m.RecordFrame(fast.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	assert.InDelta(t, 10.0, m.FPS(), 0.01)
}

func TestMetricsClassCounts(t *testing.T) {
	m := NewMetrics(20)
	m.RecordDetections([]string{"vehicle", "vehicle", "person"})
	m.RecordDetections([]string{"vehicle"})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.ClassCounts["vehicle"])
	assert.Equal(t, int64(1), snap.ClassCounts["person"])
}

func TestMetricsSnapshotAndReset(t *testing.T) {
	m := NewMetrics(20)
	m.RecordFrame(time.Now())
	m.RecordInference(12 * time.Millisecond)
	m.RecordDetections([]string{"drone"})

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.FramesProcessed)
	assert.InDelta(t, 12.0, snap.LastInferenceMS, 0.01)

	// Snapshot is a copy, not a live view.
	m.RecordDetections([]string{"drone"})
	assert.Equal(t, int64(1), snap.ClassCounts["drone"])

	m.Reset()
	snap = m.Snapshot()
	assert.Zero(t, snap.FramesProcessed)
	assert.Empty(t, snap.ClassCounts)
}
