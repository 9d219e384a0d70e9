package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/maintenance"
	"vigil/internal/monitor"
	"vigil/internal/pipeline"
	"vigil/internal/stats"
	"vigil/internal/stream"
	"vigil/internal/ws"
)

// API wires every HTTP surface of the server: ingestion, queries,
// statistics, stream control, live video and the detection push.
type API struct {
	cfg     *config.Config
	db      *database.Database
	stats   *stats.Engine
	session *pipeline.Session
	sweeper *maintenance.Sweeper
	hub     *ws.DetectionHub

	startedAt time.Time
}

// New assembles the API from its collaborators.
func New(cfg *config.Config, db *database.Database, statsEngine *stats.Engine,
	session *pipeline.Session, sweeper *maintenance.Sweeper, hub *ws.DetectionHub) *API {
	return &API{
		cfg:       cfg,
		db:        db,
		stats:     statsEngine,
		session:   session,
		sweeper:   sweeper,
		hub:       hub,
		startedAt: time.Now().UTC(),
	}
}

// Routes registers every endpoint on a fresh mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/detections", a.handleDetections)
	mux.HandleFunc("/api/detections/current", a.handleCurrentDetections)
	mux.HandleFunc("/api/trajectories", a.handleTrajectories)
	mux.HandleFunc("/api/statistics", a.handleStatistics)
	mux.HandleFunc("/api/statistics/realtime", a.handleRealtimeStatistics)
	mux.HandleFunc("/api/cleanup", a.handleCleanup)
	mux.HandleFunc("/api/health", a.handleHealth)
	mux.HandleFunc("/api/performance", a.handlePerformance)
	mux.HandleFunc("/api/system", a.handleSystem)
	mux.HandleFunc("/api/stream/start", a.handleStreamStart)
	mux.HandleFunc("/api/stream/stop", a.handleStreamStop)
	mux.HandleFunc("/api/stream/status", a.handleStreamStatus)
	mux.HandleFunc("/api/videos", a.handleVideos)

	mux.Handle("/video/feed", stream.NewFeedHandler(a.session, a.cfg.Stream.PollTimeout))
	mux.Handle("/video/snapshot", stream.NewSnapshotHandler(a.session, a.cfg.Stream.PollTimeout))
	mux.Handle("/ws/detections", ws.NewHandler(a.hub))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// ingestRequest is the POST /api/detections body. ObjectID defaults to
// -1: stored without a trajectory.
type ingestRequest struct {
	ObjectID   *int64     `json:"object_id"`
	Label      string     `json:"label"`
	Confidence *float64   `json:"confidence"`
	X          *float64   `json:"x"`
	Y          *float64   `json:"y"`
	Speed      *float64   `json:"speed"`
	Distance   *float64   `json:"distance"`
	Timestamp  *time.Time `json:"timestamp"`
}

func (r *ingestRequest) validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("label is required")
	}
	if r.Confidence == nil {
		return fmt.Errorf("confidence is required")
	}
	if *r.Confidence < 0 || *r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", *r.Confidence)
	}
	if r.X == nil || r.Y == nil {
		return fmt.Errorf("x and y coordinates are required")
	}
	return nil
}

func (a *API) handleDetections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.ingestDetection(w, r)
	case http.MethodGet:
		a.queryDetections(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
	}
}

func (a *API) ingestDetection(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	record := &database.DetectionRecord{
		ObjectID:   -1,
		Label:      req.Label,
		Confidence: *req.Confidence,
		X:          *req.X,
		Y:          *req.Y,
		Speed:      req.Speed,
		Distance:   req.Distance,
	}
	if req.ObjectID != nil {
		record.ObjectID = *req.ObjectID
	}
	if req.Timestamp != nil {
		record.Timestamp = req.Timestamp.UTC()
	}

	if err := a.db.RecordDetection(record); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store detection: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         record.ID,
		"history_id": record.HistoryID,
	})
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return fallback
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func (a *API) queryDetections(w http.ResponseWriter, r *http.Request) {
	timeRange := queryFloat(r, "time_range", 3600)
	confidence := queryFloat(r, "confidence", 0)
	class := r.URL.Query().Get("class")
	limit := queryInt(r, "limit", 100)

	since := time.Now().UTC().Add(-time.Duration(timeRange * float64(time.Second)))
	dets, err := a.db.QueryDetections(since, confidence, class, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"detections": detectionViews(dets),
		"count":      len(dets),
	})
}

func (a *API) handleCurrentDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	window := queryFloat(r, "window", 5)
	confidence := queryFloat(r, "confidence", 0)
	limit := queryInt(r, "limit", 50)

	since := time.Now().UTC().Add(-time.Duration(window * float64(time.Second)))
	dets, err := a.db.CurrentDetections(since, confidence, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"detections": detectionViews(dets),
		"count":      len(dets),
	})
}

// detectionView is the JSON shape of one stored detection.
type detectionView struct {
	ID         int64     `json:"id"`
	ObjectID   int64     `json:"object_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Speed      *float64  `json:"speed,omitempty"`
	Distance   *float64  `json:"distance,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func detectionViews(dets []*database.DetectionRecord) []detectionView {
	out := make([]detectionView, 0, len(dets))
	for _, d := range dets {
		out = append(out, detectionView{
			ID:         d.ID,
			ObjectID:   d.ObjectID,
			Label:      d.Label,
			Confidence: d.Confidence,
			X:          d.X,
			Y:          d.Y,
			Speed:      d.Speed,
			Distance:   d.Distance,
			Timestamp:  d.Timestamp,
		})
	}
	return out
}

// trajectoryView is the JSON shape of one trajectory with derived
// metrics.
type trajectoryView struct {
	ID            int64          `json:"id"`
	ObjectID      int64          `json:"object_id"`
	Label         string         `json:"label"`
	StartTime     time.Time      `json:"start_time"`
	LastSeen      time.Time      `json:"last_seen"`
	IsActive      bool           `json:"is_active"`
	Duration      float64        `json:"duration"`
	TotalDistance float64        `json:"total_distance"`
	AvgSpeed      float64        `json:"avg_speed"`
	PointCount    int            `json:"point_count"`
	Points        []trajectoryPt `json:"points"`
}

type trajectoryPt struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Speed     *float64  `json:"speed,omitempty"`
	Distance  *float64  `json:"distance,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *API) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	filter := database.TrajectoryFilter{
		ActiveOnly: r.URL.Query().Get("active_only") == "true",
	}
	if raw := r.URL.Query().Get("object_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid object_id %q", raw)
			return
		}
		filter.ObjectID = &id
	}

	trs, err := a.db.ListTrajectories(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}

	views := make([]trajectoryView, 0, len(trs))
	for _, tr := range trs {
		v := trajectoryView{
			ID:            tr.ID,
			ObjectID:      tr.ObjectID,
			Label:         tr.Label,
			StartTime:     tr.StartTime,
			LastSeen:      tr.LastSeen,
			IsActive:      tr.IsActive,
			Duration:      tr.Duration,
			TotalDistance: tr.TotalDistance,
			AvgSpeed:      tr.AvgSpeed,
			PointCount:    tr.PointCount,
			Points:        make([]trajectoryPt, 0, len(tr.Points)),
		}
		for _, p := range tr.Points {
			v.Points = append(v.Points, trajectoryPt{
				X: p.X, Y: p.Y, Speed: p.Speed, Distance: p.Distance, Timestamp: p.Timestamp,
			})
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trajectories": views,
		"count":        len(views),
	})
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	summary, err := a.stats.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "statistics failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleRealtimeStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	window, err := a.stats.WindowSnapshot("last_second")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "statistics failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_second": window,
		"perf":        a.session.Metrics().Snapshot(),
		"state":       a.session.State().String(),
	})
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	result := a.sweeper.Sweep()
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := a.db.CountDetections(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"stream_state":   a.session.State().String(),
		"ws_clients":     a.hub.ClientCount(),
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
	})
}

func (a *API) handlePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Metrics().Snapshot())
}

func (a *API) handleSystem(w http.ResponseWriter, r *http.Request) {
	snap, err := monitor.Sample()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "system sample failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type streamStartRequest struct {
	Source string `json:"source"`
}

func (a *API) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	var req streamStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	source := req.Source
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") && !filepath.IsAbs(source) {
		source = filepath.Join(a.cfg.Server.MediaDir, source)
	}

	if err := a.session.Start(source); err != nil {
		writeError(w, http.StatusBadGateway, "failed to start stream: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *API) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method %s not allowed", r.Method)
		return
	}

	a.session.Stop()
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *API) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Status())
}

var videoExtensions = map[string]bool{
	".mjpeg": true,
	".mjpg":  true,
	".mp4":   true,
	".avi":   true,
	".mov":   true,
}

func (a *API) handleVideos(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(a.cfg.Server.MediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"videos": []string{}})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list videos: %v", err)
		return
	}

	videos := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			videos = append(videos, entry.Name())
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}
