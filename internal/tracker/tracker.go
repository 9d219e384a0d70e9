package tracker

import "sort"

// RawDetection is one detector output box for the current frame.
// Label is an opaque pass-through class identifier.
type RawDetection struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	Label          string
}

// BBox is an axis-aligned box in frame coordinates.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Center returns the box center point.
func (b BBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Track is one tracked object identity. IDs are assigned once, increase
// monotonically and are never reused while the track is alive or coasting.
type Track struct {
	ID          int64
	BBox        BBox
	Confidence  float64
	Label       string
	Disappeared int
}

// Tracker associates per-frame detections with stable track identities
// using greedy maximum-IoU matching. State is owned by a single stream
// worker; it is not safe for concurrent use and needs no locking.
type Tracker struct {
	trackThresh float64
	matchThresh float64
	trackBuffer int

	tracks []*Track // sorted by ID ascending
	nextID int64
}

// New creates a tracker. trackThresh filters detections before matching,
// matchThresh is the minimum IoU for a match, trackBuffer is how many
// consecutive missed frames a track survives before eviction.
func New(trackThresh, matchThresh float64, trackBuffer int) *Tracker {
	return &Tracker{
		trackThresh: trackThresh,
		matchThresh: matchThresh,
		trackBuffer: trackBuffer,
		nextID:      1,
	}
}

// Update consumes one frame's detections and returns the full current
// track set: matched, newly created, and coasted tracks. An empty input
// returns nil without touching any state.
//
// Matching is greedy over all (detection, track) pairs by descending
// IoU above matchThresh, ties going to the lowest track ID, so a
// higher-IoU detection wins a contested track regardless of input
// order. Each track and each detection match at most once per frame;
// leftover detections spawn new tracks.
func (t *Tracker) Update(detections []RawDetection) []Track {
	if len(detections) == 0 {
		return nil
	}

	type candidate struct {
		det int
		trk *Track
		iou float64
	}

	boxes := make([]BBox, len(detections))
	var pairs []candidate
	for i, det := range detections {
		if det.Confidence < t.trackThresh {
			continue
		}
		boxes[i] = BBox{X1: det.X1, Y1: det.Y1, X2: det.X2, Y2: det.Y2}
		for _, trk := range t.tracks {
			if iou := IoU(boxes[i], trk.BBox); iou > t.matchThresh {
				pairs = append(pairs, candidate{det: i, trk: trk, iou: iou})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].iou != pairs[b].iou {
			return pairs[a].iou > pairs[b].iou
		}
		if pairs[a].trk.ID != pairs[b].trk.ID {
			return pairs[a].trk.ID < pairs[b].trk.ID
		}
		return pairs[a].det < pairs[b].det
	})

	claimed := make(map[int64]bool, len(t.tracks))
	matched := make(map[int]bool, len(detections))
	for _, p := range pairs {
		if claimed[p.trk.ID] || matched[p.det] {
			continue
		}
		p.trk.BBox = boxes[p.det]
		p.trk.Confidence = detections[p.det].Confidence
		p.trk.Label = detections[p.det].Label
		p.trk.Disappeared = 0
		claimed[p.trk.ID] = true
		matched[p.det] = true
	}

	for i, det := range detections {
		if det.Confidence < t.trackThresh || matched[i] {
			continue
		}
		trk := &Track{
			ID:         t.nextID,
			BBox:       boxes[i],
			Confidence: det.Confidence,
			Label:      det.Label,
		}
		t.nextID++
		t.tracks = append(t.tracks, trk)
		claimed[trk.ID] = true
	}

	// Coast unmatched tracks; evict the ones past the grace window.
	survivors := t.tracks[:0]
	for _, trk := range t.tracks {
		if !claimed[trk.ID] {
			trk.Disappeared++
			if trk.Disappeared > t.trackBuffer {
				continue
			}
		}
		survivors = append(survivors, trk)
	}
	t.tracks = survivors

	out := make([]Track, len(t.tracks))
	for i, trk := range t.tracks {
		out[i] = *trk
	}
	return out
}

// Tracks returns a snapshot of the current track set.
func (t *Tracker) Tracks() []Track {
	out := make([]Track, len(t.tracks))
	for i, trk := range t.tracks {
		out[i] = *trk
	}
	return out
}

// Reset clears all tracker state. Used when switching input sources.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.nextID = 1
}

// IoU computes intersection over union of two axis-aligned boxes.
// Returns 0 when the union is empty or degenerate.
func IoU(a, b BBox) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	inter := max(0, ix2-ix1) * max(0, iy2-iy1)
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
