package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all runtime configuration for the server.
// Every value has a working default; a TOML file overrides selectively.
type Config struct {
	Server      Server      `toml:"server"`
	Database    Database    `toml:"database"`
	Tracker     Tracker     `toml:"tracker"`
	Stream      Stream      `toml:"stream"`
	Stats       Stats       `toml:"stats"`
	Retention   Retention   `toml:"retention"`
	Calibration Calibration `toml:"calibration"`
}

type Server struct {
	Addr     string `toml:"addr"`
	MediaDir string `toml:"media_dir"`
}

type Database struct {
	Path string `toml:"path"`
}

type Tracker struct {
	TrackThresh float64 `toml:"track_thresh"`
	MatchThresh float64 `toml:"match_thresh"`
	TrackBuffer int     `toml:"track_buffer"`
}

type Stream struct {
	BufferSize     int           `toml:"buffer_size"`
	FPS            int           `toml:"fps"`
	StartTimeout   time.Duration `toml:"start_timeout"`
	PollTimeout    time.Duration `toml:"poll_timeout"`
	OpenRetries    int           `toml:"open_retries"`
	RetryDelay     time.Duration `toml:"retry_delay"`
	DetectorURL    string        `toml:"detector_url"`
	FPSWindow      int           `toml:"fps_window"`
	EventBusBuffer int           `toml:"event_bus_buffer"`
}

type Stats struct {
	CacheTTL time.Duration `toml:"cache_ttl"`
}

type Retention struct {
	SweepInterval      time.Duration `toml:"sweep_interval"`
	DetectionMaxAge    time.Duration `toml:"detection_max_age"`
	LowConfidenceAge   time.Duration `toml:"low_confidence_age"`
	LowConfidenceScore float64       `toml:"low_confidence_score"`
	TrajectoryIdle     time.Duration `toml:"trajectory_idle"`
	PointMaxAge        time.Duration `toml:"point_max_age"`
}

// Calibration configures the pinhole distance heuristic:
// distance = real_height * focal_length_px / bbox_height_px.
type Calibration struct {
	FocalLengthPx float64            `toml:"focal_length_px"`
	ClassHeightsM map[string]float64 `toml:"class_heights_m"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:     ":8080",
			MediaDir: "videos",
		},
		Database: Database{
			Path: "vigil.db",
		},
		Tracker: Tracker{
			TrackThresh: 0.5,
			MatchThresh: 0.8,
			TrackBuffer: 30,
		},
		Stream: Stream{
			BufferSize:     10,
			FPS:            30,
			StartTimeout:   10 * time.Second,
			PollTimeout:    time.Second,
			OpenRetries:    3,
			RetryDelay:     500 * time.Millisecond,
			DetectorURL:    "http://127.0.0.1:9090/detect",
			FPSWindow:      20,
			EventBusBuffer: 256,
		},
		Stats: Stats{
			CacheTTL: 0,
		},
		Retention: Retention{
			SweepInterval:      30 * time.Minute,
			DetectionMaxAge:    7 * 24 * time.Hour,
			LowConfidenceAge:   24 * time.Hour,
			LowConfidenceScore: 0.3,
			TrajectoryIdle:     time.Hour,
			PointMaxAge:        3 * 24 * time.Hour,
		},
		Calibration: Calibration{
			FocalLengthPx: 800,
			ClassHeightsM: map[string]float64{
				"person":  1.7,
				"vehicle": 1.5,
				"car":     1.5,
				"truck":   3.0,
				"drone":   0.3,
			},
		},
	}
}

// Load reads a TOML file over the defaults. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tracker.TrackThresh < 0 || c.Tracker.TrackThresh > 1 {
		return fmt.Errorf("config: track_thresh %v out of range [0,1]", c.Tracker.TrackThresh)
	}
	if c.Tracker.MatchThresh <= 0 || c.Tracker.MatchThresh > 1 {
		return fmt.Errorf("config: match_thresh %v out of range (0,1]", c.Tracker.MatchThresh)
	}
	if c.Tracker.TrackBuffer < 0 {
		return fmt.Errorf("config: track_buffer must not be negative")
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("config: stream buffer_size must be positive")
	}
	return nil
}
