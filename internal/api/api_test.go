package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/maintenance"
	"vigil/internal/pipeline"
	"vigil/internal/stats"
	"vigil/internal/tracker"
	"vigil/internal/ws"
)

func newTestAPI(t *testing.T) (*API, *database.Database) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.MediaDir = t.TempDir()
	cfg.Stream.StartTimeout = 300 * time.Millisecond
	cfg.Stream.RetryDelay = 10 * time.Millisecond

	db, err := database.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	trk := tracker.New(cfg.Tracker.TrackThresh, cfg.Tracker.MatchThresh, cfg.Tracker.TrackBuffer)
	est := tracker.NewEstimator(cfg.Calibration.FocalLengthPx, cfg.Calibration.ClassHeightsM)
	session := pipeline.NewSession(cfg.Stream, pipeline.NewHTTPDetector(cfg.Stream.DetectorURL, 0), trk, est, nil)
	t.Cleanup(session.Stop)

	engine := stats.New(db, clock.New(), 0)
	sweeper := maintenance.NewSweeper(db, cfg.Retention, clock.New())

	return New(cfg, db, engine, session, sweeper, ws.NewDetectionHub()), db
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestIngestValidation(t *testing.T) {
	a, _ := newTestAPI(t)
	mux := a.Routes()

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing label", map[string]interface{}{"confidence": 0.9, "x": 1.0, "y": 2.0}},
		{"missing confidence", map[string]interface{}{"label": "vehicle", "x": 1.0, "y": 2.0}},
		{"confidence above one", map[string]interface{}{"label": "vehicle", "confidence": 1.5, "x": 1.0, "y": 2.0}},
		{"negative confidence", map[string]interface{}{"label": "vehicle", "confidence": -0.1, "x": 1.0, "y": 2.0}},
		{"missing coordinates", map[string]interface{}{"label": "vehicle", "confidence": 0.9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/detections", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Invalid requests must not reach the ledger.
	rec := doJSON(t, mux, http.MethodGet, "/api/detections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["count"])
}

func TestIngestAndQueryRoundtrip(t *testing.T) {
	a, _ := newTestAPI(t)
	mux := a.Routes()

	rec := doJSON(t, mux, http.MethodPost, "/api/detections", map[string]interface{}{
		"object_id":  1,
		"label":      "vehicle",
		"confidence": 0.9,
		"x":          10.0,
		"y":          20.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	assert.NotEmpty(t, created["history_id"])

	rec = doJSON(t, mux, http.MethodGet, "/api/detections?time_range=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = doJSON(t, mux, http.MethodGet, "/api/trajectories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestCurrentDetectionsEndpoint(t *testing.T) {
	a, db := newTestAPI(t)
	mux := a.Routes()
	now := time.Now().UTC()

	for i, x := range []float64{1, 2, 3} {
		require.NoError(t, db.RecordDetection(&database.DetectionRecord{
			ObjectID: 7, Label: "person", Confidence: 0.8, X: x,
			Timestamp: now.Add(time.Duration(i-3) * time.Second),
		}))
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/detections/current?window=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"], "one row per object")
}

func TestStatisticsEndpoint(t *testing.T) {
	a, db := newTestAPI(t)
	mux := a.Routes()

	require.NoError(t, db.RecordDetection(&database.DetectionRecord{
		ObjectID: 1, Label: "vehicle", Confidence: 0.9, Timestamp: time.Now().UTC(),
	}))

	rec := doJSON(t, mux, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)

	windows, ok := body["windows"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, windows, 5)
	assert.Equal(t, float64(1), body["total_detections"])

	rec = doJSON(t, mux, http.MethodGet, "/api/statistics/realtime", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "last_second")
}

func TestCleanupEndpoint(t *testing.T) {
	a, db := newTestAPI(t)
	mux := a.Routes()

	require.NoError(t, db.RecordDetection(&database.DetectionRecord{
		ObjectID: 1, Label: "vehicle", Confidence: 0.9,
		Timestamp: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}))

	rec := doJSON(t, mux, http.MethodPost, "/api/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["detections_deleted"])

	rec = doJSON(t, mux, http.MethodGet, "/api/cleanup", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doJSON(t, a.Routes(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["stream_state"])
}

func TestStreamStatusAndStop(t *testing.T) {
	a, _ := newTestAPI(t)
	mux := a.Routes()

	rec := doJSON(t, mux, http.MethodGet, "/api/stream/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["state"])

	rec = doJSON(t, mux, http.MethodPost, "/api/stream/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamStartRequiresSource(t *testing.T) {
	a, _ := newTestAPI(t)
	mux := a.Routes()

	rec := doJSON(t, mux, http.MethodPost, "/api/stream/start", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/stream/start", map[string]interface{}{
		"source": "does-not-exist.mjpeg",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVideosEndpoint(t *testing.T) {
	a, _ := newTestAPI(t)
	mux := a.Routes()

	require.NoError(t, os.WriteFile(filepath.Join(a.cfg.Server.MediaDir, "clip.mjpeg"), []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(a.cfg.Server.MediaDir, "notes.txt"), []byte("x"), 0o644))

	rec := doJSON(t, mux, http.MethodGet, "/api/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	videos, ok := body["videos"].([]interface{})
	require.True(t, ok)
	require.Len(t, videos, 1)
	assert.Equal(t, "clip.mjpeg", videos[0])
}

func TestVideoFeedWithoutStream(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doJSON(t, a.Routes(), http.MethodGet, "/video/feed", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
