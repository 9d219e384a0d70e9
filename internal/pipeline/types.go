package pipeline

import (
	"errors"
	"time"
)

// State is the lifecycle state of a streaming session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrPollTimeout is returned when no frame arrives within the poll window.
	ErrPollTimeout = errors.New("frame poll timed out")
	// ErrStartTimeout is returned when a session fails to reach Running in time.
	ErrStartTimeout = errors.New("session start timed out")
	// ErrNotRunning is returned by operations that need an active session.
	ErrNotRunning = errors.New("session is not running")
)

// FrameData is one encoded JPEG frame moving through the pipeline.
type FrameData struct {
	Data      []byte
	Seq       uint64
	Timestamp time.Time
}

// Detection is one tracked object observed in a frame, ready for
// persistence and live push.
type Detection struct {
	ObjectID   int64     `json:"object_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Speed      *float64  `json:"speed,omitempty"`
	Distance   *float64  `json:"distance,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DetectionEvent carries all detections of one processed frame.
type DetectionEvent struct {
	FrameSeq   uint64      `json:"frame_seq"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
}
