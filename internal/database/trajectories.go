package database

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// TrajectoryRecord is the persisted identity of one tracked object plus
// metrics derived from its points at read time. Derived fields are never
// stored.
type TrajectoryRecord struct {
	ID        int64
	ObjectID  int64
	Label     string
	StartTime time.Time
	LastSeen  time.Time
	IsActive  bool

	Points []*TrajectoryPoint

	// Derived on read from Points and the time bounds.
	Duration      float64 // seconds
	TotalDistance float64
	AvgSpeed      float64
	PointCount    int
}

// TrajectoryPoint is one time-ordered spatial sample of a trajectory.
type TrajectoryPoint struct {
	X         float64
	Y         float64
	Speed     *float64
	Distance  *float64
	Timestamp time.Time
}

// TrajectoryFilter narrows ListTrajectories.
type TrajectoryFilter struct {
	ActiveOnly bool
	ObjectID   *int64
}

// ListTrajectories returns trajectories with their ordered points and
// recomputed derived metrics.
func (d *Database) ListTrajectories(filter TrajectoryFilter) ([]*TrajectoryRecord, error) {
	query := `SELECT id, object_id, label, start_time, last_seen, is_active FROM trajectories WHERE 1=1`
	args := []interface{}{}

	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	if filter.ObjectID != nil {
		query += " AND object_id = ?"
		args = append(args, *filter.ObjectID)
	}
	query += " ORDER BY start_time"

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trajectories: %w", err)
	}
	defer rows.Close()

	var out []*TrajectoryRecord
	for rows.Next() {
		var tr TrajectoryRecord
		var active int
		if err := rows.Scan(&tr.ID, &tr.ObjectID, &tr.Label, &tr.StartTime, &tr.LastSeen, &active); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}
		tr.IsActive = active == 1
		out = append(out, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tr := range out {
		if err := d.loadPoints(tr); err != nil {
			return nil, err
		}
		tr.deriveMetrics()
	}
	return out, nil
}

func (d *Database) loadPoints(tr *TrajectoryRecord) error {
	rows, err := d.db.Query(
		`SELECT x, y, speed, distance, timestamp FROM trajectory_points
		 WHERE trajectory_id = ? ORDER BY timestamp, id`, tr.ID)
	if err != nil {
		return fmt.Errorf("failed to load trajectory points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p TrajectoryPoint
		var speed, distance sql.NullFloat64
		if err := rows.Scan(&p.X, &p.Y, &speed, &distance, &p.Timestamp); err != nil {
			return fmt.Errorf("failed to scan trajectory point: %w", err)
		}
		if speed.Valid {
			p.Speed = &speed.Float64
		}
		if distance.Valid {
			p.Distance = &distance.Float64
		}
		tr.Points = append(tr.Points, &p)
	}
	return rows.Err()
}

// deriveMetrics recomputes duration, total distance, average speed and
// point count from the loaded points.
func (t *TrajectoryRecord) deriveMetrics() {
	t.PointCount = len(t.Points)
	t.Duration = t.LastSeen.Sub(t.StartTime).Seconds()

	t.TotalDistance = 0
	for i := 1; i < len(t.Points); i++ {
		dx := t.Points[i].X - t.Points[i-1].X
		dy := t.Points[i].Y - t.Points[i-1].Y
		t.TotalDistance += math.Hypot(dx, dy)
	}

	if t.Duration > 0 {
		t.AvgSpeed = t.TotalDistance / t.Duration
	} else {
		t.AvgSpeed = 0
	}
}

// CountTrajectories returns total and active trajectory counts plus the
// number started since the given time.
func (d *Database) CountTrajectories(startedSince time.Time) (total, active, recent int64, err error) {
	err = d.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN start_time >= ? THEN 1 ELSE 0 END), 0)
		 FROM trajectories`, startedSince,
	).Scan(&total, &active, &recent)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count trajectories: %w", err)
	}
	return total, active, recent, nil
}
