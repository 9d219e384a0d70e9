package ws

import (
	"time"

	"vigil/internal/pipeline"
)

// DetectionMessage is the wire format pushed to dashboards for each
// processed frame with detections.
type DetectionMessage struct {
	Type      string    `json:"type"` // "detection"
	FrameSeq  uint64    `json:"frame_seq"`
	Timestamp time.Time `json:"timestamp"`
	Objects   []Object  `json:"objects"`
}

// Object is a single tracked object in a detection message.
type Object struct {
	ObjectID   int64    `json:"object_id"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Speed      *float64 `json:"speed,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`
}

// NewDetectionMessage converts a pipeline event to the wire format.
func NewDetectionMessage(event *pipeline.DetectionEvent) *DetectionMessage {
	msg := &DetectionMessage{
		Type:      "detection",
		FrameSeq:  event.FrameSeq,
		Timestamp: event.Timestamp,
		Objects:   make([]Object, 0, len(event.Detections)),
	}
	for _, det := range event.Detections {
		msg.Objects = append(msg.Objects, Object{
			ObjectID:   det.ObjectID,
			Label:      det.Label,
			Confidence: det.Confidence,
			X:          det.X,
			Y:          det.Y,
			Speed:      det.Speed,
			Distance:   det.Distance,
		})
	}
	return msg
}
