package maintenance

import (
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"vigil/internal/config"
)

// Store is the retention surface of the ledger.
type Store interface {
	DeleteDetectionsBefore(cutoff time.Time) (int64, error)
	DeleteLowConfidenceDetectionsBefore(cutoff time.Time, confidence float64) (int64, error)
	DeactivateTrajectoriesIdleSince(cutoff time.Time) (int64, error)
	DeleteTrajectoryPointsBefore(cutoff time.Time) (int64, error)
}

// SweepResult reports what one sweep did. Each action carries its own
// count and error; one failing action never blocks the others.
type SweepResult struct {
	DetectionsDeleted       int64     `json:"detections_deleted"`
	LowConfidenceDeleted    int64     `json:"low_confidence_deleted"`
	TrajectoriesDeactivated int64     `json:"trajectories_deactivated"`
	PointsDeleted           int64     `json:"points_deleted"`
	Errors                  []string  `json:"errors,omitempty"`
	RanAt                   time.Time `json:"ran_at"`
}

// Sweeper applies the retention policy to the ledger.
type Sweeper struct {
	store Store
	cfg   config.Retention
	clock clock.Clock
}

// NewSweeper builds a sweeper over the store.
func NewSweeper(store Store, cfg config.Retention, clk clock.Clock) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, clock: clk}
}

// Sweep runs all four retention actions once. Failures are collected,
// not fatal.
func (s *Sweeper) Sweep() *SweepResult {
	now := s.clock.Now().UTC()
	result := &SweepResult{RanAt: now}

	var err error
	result.DetectionsDeleted, err = s.store.DeleteDetectionsBefore(now.Add(-s.cfg.DetectionMaxAge))
	if err != nil {
		result.Errors = append(result.Errors, "old detections: "+err.Error())
	}

	result.LowConfidenceDeleted, err = s.store.DeleteLowConfidenceDetectionsBefore(
		now.Add(-s.cfg.LowConfidenceAge), s.cfg.LowConfidenceScore)
	if err != nil {
		result.Errors = append(result.Errors, "low-confidence detections: "+err.Error())
	}

	result.TrajectoriesDeactivated, err = s.store.DeactivateTrajectoriesIdleSince(
		now.Add(-s.cfg.TrajectoryIdle))
	if err != nil {
		result.Errors = append(result.Errors, "idle trajectories: "+err.Error())
	}

	result.PointsDeleted, err = s.store.DeleteTrajectoryPointsBefore(now.Add(-s.cfg.PointMaxAge))
	if err != nil {
		result.Errors = append(result.Errors, "old points: "+err.Error())
	}

	log.Printf("[Sweeper] Removed %d old, %d low-confidence detections, deactivated %d trajectories, deleted %d points (%d errors)",
		result.DetectionsDeleted, result.LowConfidenceDeleted,
		result.TrajectoriesDeactivated, result.PointsDeleted, len(result.Errors))
	return result
}

// Run sweeps on the configured interval until stop is closed.
func (s *Sweeper) Run(stop <-chan struct{}) {
	ticker := s.clock.Ticker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Running every %s", s.cfg.SweepInterval)
	for {
		select {
		case <-stop:
			log.Printf("[Sweeper] Stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
