package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DetectionRecord is one observation of one object at one instant.
// Immutable once written.
type DetectionRecord struct {
	ID         int64
	ObjectID   int64
	Label      string
	Confidence float64
	X          float64
	Y          float64
	Speed      *float64
	Distance   *float64
	Timestamp  time.Time
	HistoryID  string
}

// RecordDetection appends the detection, upserts its trajectory and
// appends a trajectory point as one atomic transaction. A failure in any
// sub-write rolls back all three. Detections with a negative ObjectID
// (unresolved identity) are logged to the detection table only.
func (d *Database) RecordDetection(det *DetectionRecord) error {
	if det.HistoryID == "" {
		det.HistoryID = fmt.Sprintf("api_%s", uuid.NewString())
	}
	if det.Timestamp.IsZero() {
		det.Timestamp = time.Now().UTC()
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO detections (object_id, label, confidence, x, y, speed, distance, timestamp, history_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		det.ObjectID, det.Label, det.Confidence, det.X, det.Y,
		nullable(det.Speed), nullable(det.Distance), det.Timestamp, det.HistoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	det.ID, _ = res.LastInsertId()

	if det.ObjectID >= 0 {
		var trajectoryID int64
		err = tx.QueryRow(
			`INSERT INTO trajectories (object_id, label, start_time, last_seen, is_active)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT(object_id) DO UPDATE SET
				last_seen = excluded.last_seen,
				is_active = 1
			 RETURNING id`,
			det.ObjectID, det.Label, det.Timestamp, det.Timestamp,
		).Scan(&trajectoryID)
		if err != nil {
			return fmt.Errorf("failed to upsert trajectory: %w", err)
		}

		if _, err := tx.Exec(
			`INSERT INTO trajectory_points (trajectory_id, x, y, speed, distance, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			trajectoryID, det.X, det.Y, nullable(det.Speed), nullable(det.Distance), det.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to append trajectory point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest: %w", err)
	}
	return nil
}

// QueryDetections returns detections newer than since, most recent
// first, filtered by confidence threshold and class label.
func (d *Database) QueryDetections(since time.Time, minConfidence float64, class string, limit int) ([]*DetectionRecord, error) {
	query := `SELECT id, object_id, label, confidence, x, y, speed, distance, timestamp, history_id
		FROM detections WHERE timestamp >= ?`
	args := []interface{}{since}

	if minConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, minConfidence)
	}
	if class != "" && class != "all" {
		query += " AND label = ?"
		args = append(args, class)
	}

	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

// CurrentDetections returns, for each distinct object seen within the
// window, only its single most recent detection, confidence-filtered and
// ordered by recency.
func (d *Database) CurrentDetections(since time.Time, minConfidence float64, limit int) ([]*DetectionRecord, error) {
	// Row id breaks timestamp ties, so exactly one row survives per
	// object even when two observations share an instant.
	query := `SELECT d.id, d.object_id, d.label, d.confidence, d.x, d.y, d.speed, d.distance, d.timestamp, d.history_id
		FROM detections d
		WHERE d.timestamp >= ?
		AND d.id = (
			SELECT id FROM detections
			WHERE object_id = d.object_id AND timestamp >= ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)`
	args := []interface{}{since, since}

	if minConfidence > 0 {
		query += " AND d.confidence >= ?"
		args = append(args, minConfidence)
	}

	query += " ORDER BY d.timestamp DESC, d.id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query current detections: %w", err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

// CountDetections returns the total number of stored detections.
func (d *Database) CountDetections() (int64, error) {
	var n int64
	if err := d.db.QueryRow("SELECT COUNT(*) FROM detections").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return n, nil
}

// WindowAggregate summarizes all detections with timestamp >= since.
type WindowAggregate struct {
	DetectionCount int64
	UniqueObjects  int64
	AvgConfidence  float64
	AvgSpeed       float64
	Classes        map[string]int64
}

// AggregateSince computes the rolling aggregate for one trailing window.
// The boundary is inclusive. Empty windows return zeroed counts and an
// empty class map.
func (d *Database) AggregateSince(since time.Time) (*WindowAggregate, error) {
	agg := &WindowAggregate{Classes: make(map[string]int64)}

	err := d.db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT object_id),
			COALESCE(AVG(confidence), 0), COALESCE(AVG(speed), 0)
		 FROM detections WHERE timestamp >= ?`, since,
	).Scan(&agg.DetectionCount, &agg.UniqueObjects, &agg.AvgConfidence, &agg.AvgSpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate window: %w", err)
	}

	rows, err := d.db.Query(
		`SELECT label, COUNT(*) FROM detections WHERE timestamp >= ? GROUP BY label`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate classes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		agg.Classes[label] = count
	}
	return agg, rows.Err()
}

func scanDetections(rows *sql.Rows) ([]*DetectionRecord, error) {
	var out []*DetectionRecord
	for rows.Next() {
		var det DetectionRecord
		var speed, distance sql.NullFloat64
		var historyID sql.NullString
		if err := rows.Scan(&det.ID, &det.ObjectID, &det.Label, &det.Confidence,
			&det.X, &det.Y, &speed, &distance, &det.Timestamp, &historyID); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		if speed.Valid {
			det.Speed = &speed.Float64
		}
		if distance.Valid {
			det.Distance = &distance.Float64
		}
		det.HistoryID = historyID.String
		out = append(out, &det)
	}
	return out, rows.Err()
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
