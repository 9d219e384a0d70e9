package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimatorSpeed(t *testing.T) {
	e := NewEstimator(800, nil)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, ok := e.Speed(1, 10, 10, t0)
	assert.False(t, ok, "first observation has no speed")

	v, ok := e.Speed(1, 13, 14, t0.Add(time.Second))
	assert.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9, "3-4-5 triangle over one second")

	// Zero or negative elapsed time must not divide.
	_, ok = e.Speed(1, 20, 20, t0.Add(time.Second))
	assert.False(t, ok)
}

func TestEstimatorDistance(t *testing.T) {
	e := NewEstimator(800, map[string]float64{"person": 1.7})

	d, ok := e.Distance("person", 170)
	assert.True(t, ok)
	assert.InDelta(t, 8.0, d, 1e-9)

	_, ok = e.Distance("unknown", 170)
	assert.False(t, ok)

	_, ok = e.Distance("person", 0)
	assert.False(t, ok)
}

func TestEstimatorRetain(t *testing.T) {
	e := NewEstimator(800, nil)
	now := time.Now()
	e.Speed(1, 0, 0, now)
	e.Speed(2, 0, 0, now)

	e.Retain([]Track{{ID: 2}})

	_, ok := e.Speed(1, 3, 4, now.Add(time.Second))
	assert.False(t, ok, "history for evicted track 1 was dropped")
	v, ok := e.Speed(2, 3, 4, now.Add(time.Second))
	assert.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)
}
