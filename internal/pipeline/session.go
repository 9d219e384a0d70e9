package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vigil/internal/config"
	"vigil/internal/tracker"
)

// Annotator draws tracking overlays onto an encoded frame.
type Annotator interface {
	Annotate(frame []byte, tracks []tracker.Track) ([]byte, error)
}

// Session owns one video stream end to end: source, detector, tracker,
// estimator, frame buffer and event bus. It is explicitly constructed
// and wired; there is no process-global stream state.
type Session struct {
	cfg       config.Stream
	detector  Detector
	trk       *tracker.Tracker
	est       *tracker.Estimator
	annotator Annotator
	buffer    *FrameBuffer
	bus       *EventBus
	metrics   *Metrics

	mu     sync.Mutex
	state  atomic.Int32
	source FrameSource
	stop   chan struct{}
	done   chan struct{}
	seq    atomic.Uint64
}

// NewSession wires a session from its collaborators. annotator may be
// nil to stream unannotated frames.
func NewSession(cfg config.Stream, det Detector, trk *tracker.Tracker, est *tracker.Estimator, annotator Annotator) *Session {
	return &Session{
		cfg:       cfg,
		detector:  det,
		trk:       trk,
		est:       est,
		annotator: annotator,
		buffer:    NewFrameBuffer(cfg.BufferSize),
		bus:       NewEventBus(),
		metrics:   NewMetrics(cfg.FPSWindow),
	}
}

// Buffer exposes the shared frame buffer for stream consumers.
func (s *Session) Buffer() *FrameBuffer { return s.buffer }

// Bus exposes the detection event bus for subscribers.
func (s *Session) Bus() *EventBus { return s.bus }

// Metrics exposes the performance counters.
func (s *Session) Metrics() *Metrics { return s.metrics }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Status describes the session for API reporting.
type Status struct {
	State          string        `json:"state"`
	Source         string        `json:"source,omitempty"`
	BufferedFrames int           `json:"buffered_frames"`
	DroppedFrames  uint64        `json:"dropped_frames"`
	DroppedEvents  uint64        `json:"dropped_events"`
	Perf           *PerfSnapshot `json:"perf"`
}

// Status snapshots the session for the status endpoint.
func (s *Session) Status() *Status {
	s.mu.Lock()
	src := ""
	if s.source != nil {
		src = s.source.Description()
	}
	s.mu.Unlock()

	return &Status{
		State:          s.State().String(),
		Source:         src,
		BufferedFrames: s.buffer.Len(),
		DroppedFrames:  s.buffer.Dropped(),
		DroppedEvents:  s.bus.Dropped(),
		Perf:           s.metrics.Snapshot(),
	}
}

// Start connects to the given location and begins the processing loop.
func (s *Session) Start(location string) error {
	return s.StartSource(NewSource(location))
}

// StartSource connects to the source and begins the processing loop. A
// running session is stopped first. StartSource blocks until the
// session is Running or fails, bounded by the configured start timeout.
// Network sources are TCP-probed before the stream handshake.
func (s *Session) StartSource(source FrameSource) error {
	s.Stop()

	// A worker that tore itself down on source failure skipped the Stop
	// cleanup; every session starts from clean tracking state.
	s.buffer.Clear()
	s.trk.Reset()
	s.est.Reset()

	s.mu.Lock()
	s.state.Store(int32(StateConnecting))
	s.source = source
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	log.Printf("[Session] Connecting to %s", source.Description())

	opened := make(chan error, 1)
	go func() {
		opened <- s.openWithRetries(source, stop)
	}()

	select {
	case err := <-opened:
		if err != nil {
			// No worker was launched; release any Stop waiting on done.
			close(done)
			s.state.Store(int32(StateIdle))
			return err
		}
	case <-time.After(s.cfg.StartTimeout):
		close(stop)
		close(done)
		// The open attempt may still succeed later; tear it down so no
		// orphaned connection lingers.
		go func() {
			if err := <-opened; err == nil {
				source.Close()
			}
		}()
		s.state.Store(int32(StateIdle))
		return ErrStartTimeout
	}

	s.buffer.Clear()
	s.metrics.Reset()
	s.state.Store(int32(StateRunning))
	log.Printf("[Session] Running on %s", source.Description())

	go s.run(source, stop, done)
	return nil
}

func (s *Session) openWithRetries(source FrameSource, stop chan struct{}) error {
	if ns, ok := source.(*NetworkSource); ok {
		if err := ns.Probe(s.cfg.RetryDelay + time.Second); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.OpenRetries; attempt++ {
		if lastErr = source.Open(); lastErr == nil {
			return nil
		}
		log.Printf("[Session] Open attempt %d/%d failed: %v", attempt, s.cfg.OpenRetries, lastErr)

		select {
		case <-stop:
			return lastErr
		case <-time.After(s.cfg.RetryDelay):
		}
	}
	return lastErr
}

// Stop halts the worker, releases the source and clears transient
// state. Observable within one loop iteration. Safe to call in any
// state.
func (s *Session) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	source := s.source
	running := s.State() == StateRunning || s.State() == StateConnecting
	if running && stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	s.mu.Unlock()

	if !running {
		return
	}

	if source != nil {
		// Unblocks a worker stuck in a network read.
		source.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.cfg.StartTimeout):
			log.Printf("[Session] Worker did not stop in time")
		}
	}

	s.mu.Lock()
	s.source = nil
	s.mu.Unlock()

	s.buffer.Clear()
	s.trk.Reset()
	s.est.Reset()
	s.state.Store(int32(StateStopped))
	log.Printf("[Session] Stopped")
}

func (s *Session) run(source FrameSource, stop chan struct{}, done chan struct{}) {
	defer close(done)
	defer source.Close()

	// File playback is paced to the configured FPS; network streams
	// arrive at their own rate.
	var pace *time.Ticker
	if !source.IsNetwork() && s.cfg.FPS > 0 {
		pace = time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
		defer pace.Stop()
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		if pace != nil {
			select {
			case <-stop:
				return
			case <-pace.C:
			}
		}

		frame, err := source.ReadNext()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}

			if !source.IsNetwork() {
				log.Printf("[Session] Source failed: %v", err)
				s.state.Store(int32(StateStopped))
				return
			}

			log.Printf("[Session] Stream read failed, reconnecting: %v", err)
			if !s.reconnect(source, stop) {
				s.state.Store(int32(StateStopped))
				return
			}
			continue
		}

		s.process(frame)
	}
}

// reconnect re-opens a network source until it succeeds or the session
// is stopped.
func (s *Session) reconnect(source FrameSource, stop chan struct{}) bool {
	source.Close()
	for {
		select {
		case <-stop:
			return false
		case <-time.After(s.cfg.RetryDelay):
		}

		if err := source.Open(); err != nil {
			log.Printf("[Session] Reconnect failed: %v", err)
			continue
		}
		log.Printf("[Session] Reconnected to %s", source.Description())
		return true
	}
}

func (s *Session) process(frame []byte) {
	now := time.Now().UTC()
	seq := s.seq.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollTimeout*5)
	start := time.Now()
	raw, err := s.detector.Detect(ctx, frame)
	cancel()
	s.metrics.RecordInference(time.Since(start))

	annotated := frame
	if err != nil {
		log.Printf("[Session] Detection failed on frame %d: %v", seq, err)
	} else {
		tracks := s.trk.Update(raw)
		s.est.Retain(tracks)

		if len(tracks) > 0 {
			event := &DetectionEvent{
				FrameSeq:   seq,
				Timestamp:  now,
				Detections: make([]Detection, 0, len(tracks)),
			}
			labels := make([]string, 0, len(tracks))

			for _, trk := range tracks {
				cx, cy := trk.BBox.Center()
				det := Detection{
					ObjectID:   trk.ID,
					Label:      trk.Label,
					Confidence: trk.Confidence,
					X:          cx,
					Y:          cy,
					Timestamp:  now,
				}
				if speed, ok := s.est.Speed(trk.ID, cx, cy, now); ok {
					det.Speed = &speed
				}
				if dist, ok := s.est.Distance(trk.Label, trk.BBox.Height()); ok {
					det.Distance = &dist
				}
				event.Detections = append(event.Detections, det)
				labels = append(labels, trk.Label)
			}

			s.bus.Publish(event)
			s.metrics.RecordDetections(labels)
		}

		if s.annotator != nil && len(tracks) > 0 {
			if out, aerr := s.annotator.Annotate(frame, tracks); aerr == nil {
				annotated = out
			} else {
				log.Printf("[Session] Annotation failed on frame %d: %v", seq, aerr)
			}
		}
	}

	s.buffer.Push(&FrameData{Data: annotated, Seq: seq, Timestamp: now})
	s.metrics.RecordFrame(now)
}
