package tracker

import (
	"math"
	"time"
)

// Estimator derives pixel speed and approximate real-world range for
// tracks. Speed comes from consecutive center positions; range uses the
// pinhole heuristic distance = realHeight * focalLengthPx / bboxHeightPx
// with a configured class-size table. Like the tracker it is owned by
// the stream worker and holds no locks.
type Estimator struct {
	focalLengthPx float64
	classHeights  map[string]float64

	prev map[int64]observation
}

type observation struct {
	x, y float64
	at   time.Time
}

// NewEstimator builds an estimator from calibration data. classHeights
// maps class labels to assumed real-world heights in meters.
func NewEstimator(focalLengthPx float64, classHeights map[string]float64) *Estimator {
	return &Estimator{
		focalLengthPx: focalLengthPx,
		classHeights:  classHeights,
		prev:          make(map[int64]observation),
	}
}

// Speed returns the track's pixel speed (px/s) based on its previous
// observed center, recording the current one. The first observation of
// a track yields (0, false).
func (e *Estimator) Speed(trackID int64, x, y float64, at time.Time) (float64, bool) {
	last, seen := e.prev[trackID]
	e.prev[trackID] = observation{x: x, y: y, at: at}

	if !seen {
		return 0, false
	}
	dt := at.Sub(last.at).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return math.Hypot(x-last.x, y-last.y) / dt, true
}

// Distance estimates real-world range in meters for a class label and
// observed box height in pixels. Unknown classes or degenerate boxes
// yield (0, false).
func (e *Estimator) Distance(label string, bboxHeightPx float64) (float64, bool) {
	h, ok := e.classHeights[label]
	if !ok || bboxHeightPx <= 0 || e.focalLengthPx <= 0 {
		return 0, false
	}
	return h * e.focalLengthPx / bboxHeightPx, true
}

// Retain drops per-track history for IDs not in live, so evicted tracks
// do not accumulate.
func (e *Estimator) Retain(live []Track) {
	ids := make(map[int64]bool, len(live))
	for _, t := range live {
		ids[t.ID] = true
	}
	for id := range e.prev {
		if !ids[id] {
			delete(e.prev, id)
		}
	}
}

// Reset clears all history. Part of session teardown alongside Tracker.Reset.
func (e *Estimator) Reset() {
	e.prev = make(map[int64]observation)
}
