package database

import (
	"log"

	"vigil/internal/pipeline"
)

// Writer drains detection events from the session's bus into the
// ledger on its own goroutine, keeping tracking latency independent of
// storage latency.
type Writer struct {
	db *Database
}

// NewWriter creates a ledger writer.
func NewWriter(db *Database) *Writer {
	return &Writer{db: db}
}

// Run consumes events until the channel is closed. Each detection is
// one atomic ingest; a failed write is logged and skipped, never
// retried.
func (w *Writer) Run(events <-chan *pipeline.DetectionEvent) {
	log.Printf("[Ledger] Writer started")
	for event := range events {
		for i := range event.Detections {
			det := &event.Detections[i]
			record := &DetectionRecord{
				ObjectID:   det.ObjectID,
				Label:      det.Label,
				Confidence: det.Confidence,
				X:          det.X,
				Y:          det.Y,
				Speed:      det.Speed,
				Distance:   det.Distance,
				Timestamp:  det.Timestamp,
			}
			if err := w.db.RecordDetection(record); err != nil {
				log.Printf("[Ledger] Failed to persist detection of object %d: %v", det.ObjectID, err)
			}
		}
	}
	log.Printf("[Ledger] Writer stopped")
}
