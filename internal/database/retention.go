package database

import (
	"fmt"
	"time"
)

// DeleteDetectionsBefore removes all detections older than the cutoff.
func (d *Database) DeleteDetectionsBefore(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec("DELETE FROM detections WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old detections: %w", err)
	}
	return res.RowsAffected()
}

// DeleteLowConfidenceDetectionsBefore removes detections that are both
// older than the cutoff and below the confidence floor.
func (d *Database) DeleteLowConfidenceDetectionsBefore(cutoff time.Time, confidence float64) (int64, error) {
	res, err := d.db.Exec(
		"DELETE FROM detections WHERE timestamp < ? AND confidence < ?", cutoff, confidence)
	if err != nil {
		return 0, fmt.Errorf("failed to delete low-confidence detections: %w", err)
	}
	return res.RowsAffected()
}

// DeactivateTrajectoriesIdleSince marks trajectories last seen before the
// cutoff as inactive. They are never deleted by this path.
func (d *Database) DeactivateTrajectoriesIdleSince(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec(
		"UPDATE trajectories SET is_active = 0 WHERE last_seen < ? AND is_active = 1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate idle trajectories: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTrajectoryPointsBefore removes points older than the cutoff
// regardless of their parent trajectory's state.
func (d *Database) DeleteTrajectoryPointsBefore(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec("DELETE FROM trajectory_points WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old trajectory points: %w", err)
	}
	return res.RowsAffected()
}
