package stats

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	gocache "github.com/patrickmn/go-cache"

	"vigil/internal/database"
)

// Store is the read side of the ledger the engine aggregates over.
type Store interface {
	AggregateSince(since time.Time) (*database.WindowAggregate, error)
	CountDetections() (int64, error)
	CountTrajectories(startedSince time.Time) (total, active, recent int64, err error)
}

// Window is one trailing time window by name.
type Window struct {
	Name string
	Span time.Duration
}

// DefaultWindows are the trailing windows reported by Snapshot.
func DefaultWindows() []Window {
	return []Window{
		{Name: "last_second", Span: time.Second},
		{Name: "last_minute", Span: time.Minute},
		{Name: "last_5_minutes", Span: 5 * time.Minute},
		{Name: "last_hour", Span: time.Hour},
		{Name: "last_24h", Span: 24 * time.Hour},
	}
}

// WindowStats summarizes detections inside one trailing window.
type WindowStats struct {
	DetectionCount  int64            `json:"detection_count"`
	UniqueObjects   int64            `json:"unique_objects"`
	AvgConfidence   float64          `json:"avg_confidence"`
	AvgSpeed        float64          `json:"avg_speed"`
	Classes         map[string]int64 `json:"classes"`
	MostCommonClass *string          `json:"most_common_class"`
}

// Summary is a full statistics snapshot: every configured window plus
// the global figures.
type Summary struct {
	Windows            map[string]*WindowStats `json:"windows"`
	TotalDetections    int64                   `json:"total_detections"`
	TotalTrajectories  int64                   `json:"total_trajectories"`
	ActiveTrajectories int64                   `json:"active_trajectories"`
	RecentTrajectories int64                   `json:"recent_trajectories"`
	GeneratedAt        time.Time               `json:"generated_at"`
}

// Engine computes windowed statistics on demand. It only reads; it is
// safe to call while ingestion is running.
type Engine struct {
	store   Store
	clock   clock.Clock
	windows []Window
	cache   *gocache.Cache
	ttl     time.Duration
}

const cacheKey = "summary"

// New builds an engine over the given store. A positive cacheTTL reuses
// snapshots for that long; zero disables caching.
func New(store Store, clk clock.Clock, cacheTTL time.Duration) *Engine {
	e := &Engine{
		store:   store,
		clock:   clk,
		windows: DefaultWindows(),
		ttl:     cacheTTL,
	}
	if cacheTTL > 0 {
		e.cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return e
}

// SetWindows replaces the default window set. Not safe once Snapshot is
// being called concurrently.
func (e *Engine) SetWindows(windows []Window) {
	e.windows = windows
}

// Snapshot computes statistics for every window at the current instant.
// Window boundaries are inclusive.
func (e *Engine) Snapshot() (*Summary, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached.(*Summary), nil
		}
	}

	now := e.clock.Now().UTC()
	summary := &Summary{
		Windows:     make(map[string]*WindowStats, len(e.windows)),
		GeneratedAt: now,
	}

	for _, w := range e.windows {
		agg, err := e.store.AggregateSince(now.Add(-w.Span))
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s window: %w", w.Name, err)
		}
		summary.Windows[w.Name] = fromAggregate(agg)
	}

	var err error
	summary.TotalDetections, err = e.store.CountDetections()
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}

	summary.TotalTrajectories, summary.ActiveTrajectories, summary.RecentTrajectories, err =
		e.store.CountTrajectories(now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count trajectories: %w", err)
	}

	if e.cache != nil {
		e.cache.Set(cacheKey, summary, e.ttl)
	}
	return summary, nil
}

// WindowSnapshot computes a single named window without touching the
// snapshot cache.
func (e *Engine) WindowSnapshot(name string) (*WindowStats, error) {
	for _, w := range e.windows {
		if w.Name != name {
			continue
		}
		agg, err := e.store.AggregateSince(e.clock.Now().UTC().Add(-w.Span))
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s window: %w", w.Name, err)
		}
		return fromAggregate(agg), nil
	}
	return nil, fmt.Errorf("unknown statistics window %q", name)
}

func fromAggregate(agg *database.WindowAggregate) *WindowStats {
	ws := &WindowStats{
		DetectionCount: agg.DetectionCount,
		UniqueObjects:  agg.UniqueObjects,
		AvgConfidence:  agg.AvgConfidence,
		AvgSpeed:       agg.AvgSpeed,
		Classes:        agg.Classes,
	}
	if ws.Classes == nil {
		ws.Classes = map[string]int64{}
	}

	var best string
	var bestCount int64
	for label, count := range ws.Classes {
		if count > bestCount || (count == bestCount && (best == "" || label < best)) {
			best, bestCount = label, count
		}
	}
	if bestCount > 0 {
		ws.MostCommonClass = &best
	}
	return ws
}
