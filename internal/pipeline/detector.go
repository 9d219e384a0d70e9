package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vigil/internal/tracker"
)

// Detector turns an encoded JPEG frame into raw detections.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]tracker.RawDetection, error)
}

// HTTPDetector posts frames to an external detection sidecar and
// decodes the JSON box list it returns.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDetector creates a detector client for the given endpoint.
func NewHTTPDetector(endpoint string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type sidecarDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

type sidecarResponse struct {
	Detections []sidecarDetection `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) ([]tracker.RawDetection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var parsed sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	out := make([]tracker.RawDetection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		out = append(out, tracker.RawDetection{
			X1:         det.X1,
			Y1:         det.Y1,
			X2:         det.X2,
			Y2:         det.Y2,
			Confidence: det.Confidence,
			Label:      det.Label,
		})
	}
	return out, nil
}

var _ Detector = (*HTTPDetector)(nil)
