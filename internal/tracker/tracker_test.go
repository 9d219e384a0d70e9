package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(x1, y1, x2, y2, conf float64, label string) RawDetection {
	return RawDetection{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: conf, Label: label}
}

func TestIoU(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9, "identical boxes")

	b := BBox{X1: 20, Y1: 20, X2: 30, Y2: 30}
	assert.Equal(t, 0.0, IoU(a, b), "disjoint boxes")

	// Half-overlap: intersection 50, union 150.
	c := BBox{X1: 5, Y1: 0, X2: 15, Y2: 10}
	assert.InDelta(t, 50.0/150.0, IoU(a, c), 1e-9)

	// Degenerate boxes have zero union.
	z := BBox{X1: 5, Y1: 5, X2: 5, Y2: 5}
	assert.Equal(t, 0.0, IoU(z, z))
}

func TestIdentityStability(t *testing.T) {
	tr := New(0.5, 0.5, 30)

	// Smooth horizontal motion, consecutive IoU well above the threshold.
	for i := 0; i < 20; i++ {
		x := float64(i) * 2
		tracks := tr.Update([]RawDetection{det(x, 0, x+100, 100, 0.9, "vehicle")})
		require.Len(t, tracks, 1)
		assert.Equal(t, int64(1), tracks[0].ID, "frame %d", i)
		assert.Equal(t, 0, tracks[0].Disappeared)
	}
}

func TestCoastingAndEviction(t *testing.T) {
	tr := New(0.5, 0.8, 3)

	tr.Update([]RawDetection{det(0, 0, 10, 10, 0.9, "person")})

	// A far-away detection never matches; the old track coasts with its
	// last known box until the buffer is exceeded.
	for i := 1; i <= 3; i++ {
		tracks := tr.Update([]RawDetection{det(500, 500, 510, 510, 0.9, "person")})
		require.Len(t, tracks, 2)
		assert.Equal(t, int64(1), tracks[0].ID)
		assert.Equal(t, i, tracks[0].Disappeared)
		assert.Equal(t, BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, tracks[0].BBox)
	}

	// Fourth miss exceeds the buffer: evicted for good.
	tracks := tr.Update([]RawDetection{det(500, 500, 510, 510, 0.9, "person")})
	require.Len(t, tracks, 1)
	assert.Equal(t, int64(2), tracks[0].ID)

	// Reappearing at the original position must get a strictly greater ID.
	tracks = tr.Update([]RawDetection{
		det(500, 500, 510, 510, 0.9, "person"),
		det(0, 0, 10, 10, 0.9, "person"),
	})
	require.Len(t, tracks, 2)
	assert.Equal(t, int64(3), tracks[1].ID)
}

func TestTrackThreshFilters(t *testing.T) {
	tr := New(0.5, 0.8, 30)

	tracks := tr.Update([]RawDetection{det(0, 0, 10, 10, 0.4, "person")})
	assert.Empty(t, tracks, "below-threshold detection spawns nothing")

	tracks = tr.Update([]RawDetection{det(0, 0, 10, 10, 0.5, "person")})
	require.Len(t, tracks, 1)
}

func TestEmptyInputIsNoOp(t *testing.T) {
	tr := New(0.5, 0.8, 2)
	tr.Update([]RawDetection{det(0, 0, 10, 10, 0.9, "person")})

	assert.Nil(t, tr.Update(nil))

	// No coasting happened: the track is still fresh.
	tracks := tr.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 0, tracks[0].Disappeared)
}

func TestCompetingDetections(t *testing.T) {
	tr := New(0.5, 0.7, 30)

	tr.Update([]RawDetection{det(0, 0, 100, 100, 0.9, "vehicle")})

	// Two candidates overlap the single track; the higher-IoU one must
	// win regardless of input order, the other spawns a new track.
	tracks := tr.Update([]RawDetection{
		det(10, 0, 110, 100, 0.9, "vehicle"), // IoU ≈ 0.82
		det(2, 0, 102, 100, 0.9, "vehicle"),  // IoU ≈ 0.96, arrives second
	})
	require.Len(t, tracks, 2)

	byID := map[int64]Track{}
	for _, trk := range tracks {
		byID[trk.ID] = trk
	}
	require.Contains(t, byID, int64(1))
	require.Contains(t, byID, int64(2))

	// The better candidate claims track 1 even though it arrived last;
	// the weaker one becomes a fresh track.
	assert.Equal(t, BBox{X1: 2, Y1: 0, X2: 102, Y2: 100}, byID[1].BBox)
	assert.Equal(t, BBox{X1: 10, Y1: 0, X2: 110, Y2: 100}, byID[2].BBox)
}

func TestTiePrefersLowestID(t *testing.T) {
	tr := New(0.5, 0.5, 30)

	// Two identical stationary tracks.
	tr.Update([]RawDetection{
		det(0, 0, 10, 10, 0.9, "a"),
		det(0, 0, 10, 10, 0.9, "b"),
	})

	// One detection matching both equally must go to track 1.
	tracks := tr.Update([]RawDetection{det(0, 0, 10, 10, 0.9, "c")})
	require.Len(t, tracks, 2)
	assert.Equal(t, int64(1), tracks[0].ID)
	assert.Equal(t, "c", tracks[0].Label)
	assert.Equal(t, 1, tracks[1].Disappeared)
}

func TestReset(t *testing.T) {
	tr := New(0.5, 0.8, 30)
	tr.Update([]RawDetection{det(0, 0, 10, 10, 0.9, "person")})
	tr.Reset()

	assert.Empty(t, tr.Tracks())

	tracks := tr.Update([]RawDetection{det(0, 0, 10, 10, 0.9, "person")})
	require.Len(t, tracks, 1)
	assert.Equal(t, int64(1), tracks[0].ID, "IDs restart after reset")
}
