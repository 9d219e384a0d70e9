package maintenance

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/database"
)

func newLedger(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.Database, objectID int64, conf float64, ts time.Time) {
	t.Helper()
	require.NoError(t, db.RecordDetection(&database.DetectionRecord{
		ObjectID:   objectID,
		Label:      "vehicle",
		Confidence: conf,
		Timestamp:  ts,
	}))
}

func TestSweepAppliesAllActions(t *testing.T) {
	db := newLedger(t)
	mock := clock.NewMock()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	mock.Set(now)

	seed(t, db, 1, 0.9, now.Add(-8*24*time.Hour)) // too old
	seed(t, db, 2, 0.2, now.Add(-25*time.Hour))   // old and weak
	seed(t, db, 3, 0.9, now.Add(-30*time.Minute)) // fresh
	seed(t, db, 4, 0.9, now.Add(-2*time.Hour))    // fresh detection, idle trajectory

	s := NewSweeper(db, config.Default().Retention, mock)
	result := s.Sweep()

	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(1), result.DetectionsDeleted)
	assert.Equal(t, int64(1), result.LowConfidenceDeleted)
	assert.Equal(t, int64(3), result.TrajectoriesDeactivated)
	assert.Equal(t, int64(1), result.PointsDeleted)
	assert.Equal(t, now, result.RanAt)

	remaining, err := db.CountDetections()
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)

	active, err := db.ListTrajectories(database.TrajectoryFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(3), active[0].ObjectID)
}

func TestSweepIdempotent(t *testing.T) {
	db := newLedger(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC))

	s := NewSweeper(db, config.Default().Retention, mock)
	first := s.Sweep()
	second := s.Sweep()
	assert.Empty(t, first.Errors)
	assert.Zero(t, second.DetectionsDeleted)
	assert.Zero(t, second.TrajectoriesDeactivated)
}

// failingStore fails one action to show the others still run.
type failingStore struct {
	*database.Database
}

func (f *failingStore) DeleteDetectionsBefore(time.Time) (int64, error) {
	return 0, errors.New("disk io error")
}

func TestSweepIsolatesFailures(t *testing.T) {
	db := newLedger(t)
	mock := clock.NewMock()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	mock.Set(now)

	seed(t, db, 1, 0.2, now.Add(-25*time.Hour))

	s := NewSweeper(&failingStore{db}, config.Default().Retention, mock)
	result := s.Sweep()

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "old detections")
	assert.Equal(t, int64(1), result.LowConfidenceDeleted, "later actions still ran")
	assert.Equal(t, int64(1), result.TrajectoriesDeactivated)
}

func TestRunSweepsOnInterval(t *testing.T) {
	db := newLedger(t)
	mock := clock.NewMock()
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	mock.Set(now)

	seed(t, db, 1, 0.9, now.Add(-8*24*time.Hour))

	cfg := config.Default().Retention
	s := NewSweeper(db, cfg, mock)

	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		s.Run(stop)
		close(finished)
	}()

	// Let the worker park on the ticker, then fire one interval.
	time.Sleep(10 * time.Millisecond)
	mock.Add(cfg.SweepInterval)
	time.Sleep(10 * time.Millisecond)

	n, err := db.CountDetections()
	require.NoError(t, err)
	assert.Zero(t, n, "stale detection swept on the interval")

	close(stop)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
