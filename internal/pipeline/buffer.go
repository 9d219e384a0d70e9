package pipeline

import (
	"sync"
	"time"
)

// FrameBuffer is a bounded FIFO of encoded frames between the session
// worker and stream consumers. When full, Push drops the incoming frame
// so the producer never blocks on slow viewers. The buffer is shared:
// consumers compete for frames rather than each getting a copy.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  []*FrameData
	cap     int
	notify  chan struct{}
	dropped uint64
}

// NewFrameBuffer creates a buffer holding at most capacity frames.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = 10
	}
	return &FrameBuffer{
		cap:    capacity,
		notify: make(chan struct{}),
	}
}

// Push enqueues a frame. Returns false when the buffer is full and the
// frame was dropped.
func (b *FrameBuffer) Push(frame *FrameData) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) >= b.cap {
		b.dropped++
		return false
	}

	b.frames = append(b.frames, frame)
	close(b.notify)
	b.notify = make(chan struct{})
	return true
}

// Poll dequeues the oldest frame, waiting up to timeout for one to
// arrive. Returns ErrPollTimeout when the wait expires.
func (b *FrameBuffer) Poll(timeout time.Duration) (*FrameData, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if len(b.frames) > 0 {
			frame := b.frames[0]
			b.frames = b.frames[1:]
			b.mu.Unlock()
			return frame, nil
		}
		arrived := b.notify
		b.mu.Unlock()

		select {
		case <-arrived:
		case <-deadline.C:
			return nil, ErrPollTimeout
		}
	}
}

// Clear discards all buffered frames.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns how many frames Push has discarded since creation.
func (b *FrameBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
