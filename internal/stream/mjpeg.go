package stream

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"vigil/internal/pipeline"
)

// FeedHandler serves the live session feed to HTTP viewers as
// multipart/x-mixed-replace MJPEG. Viewers share the session's frame
// buffer; each frame goes to whichever viewer polls it first.
type FeedHandler struct {
	session     *pipeline.Session
	pollTimeout time.Duration
}

// NewFeedHandler creates the MJPEG feed handler for a session.
func NewFeedHandler(session *pipeline.Session, pollTimeout time.Duration) *FeedHandler {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &FeedHandler{session: session, pollTimeout: pollTimeout}
}

// ServeHTTP streams frames until the client disconnects or the session
// stops producing.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.session.State() != pipeline.StateRunning {
		http.Error(w, "no active stream", http.StatusConflict)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Printf("[MJPEG] Viewer connected from %s", r.RemoteAddr)
	defer log.Printf("[MJPEG] Viewer disconnected from %s", r.RemoteAddr)

	buffer := h.session.Buffer()
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, err := buffer.Poll(h.pollTimeout)
		if err != nil {
			if errors.Is(err, pipeline.ErrPollTimeout) {
				// Keep waiting while the session is alive; a stopped
				// session will never produce again.
				if h.session.State() != pipeline.StateRunning {
					return
				}
				continue
			}
			return
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame.Data))
		if _, err := w.Write(frame.Data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		flusher.Flush()
	}
}

// SnapshotHandler serves a single frame from the live session.
type SnapshotHandler struct {
	session     *pipeline.Session
	pollTimeout time.Duration
}

// NewSnapshotHandler creates the snapshot handler for a session.
func NewSnapshotHandler(session *pipeline.Session, pollTimeout time.Duration) *SnapshotHandler {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &SnapshotHandler{session: session, pollTimeout: pollTimeout}
}

// ServeHTTP responds with one JPEG frame.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.session.State() != pipeline.StateRunning {
		http.Error(w, "no active stream", http.StatusConflict)
		return
	}

	frame, err := h.session.Buffer().Poll(h.pollTimeout)
	if err != nil {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame.Data)))
	w.Write(frame.Data)
}
