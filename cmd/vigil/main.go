package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/benbjohnson/clock"

	"vigil/internal/api"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/maintenance"
	"vigil/internal/pipeline"
	"vigil/internal/stats"
	"vigil/internal/stream"
	"vigil/internal/tracker"
	"vigil/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to TOML configuration file")
		addrF   = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[vigil] ", log.Ltime)

	cfg, err := config.Load(*configF)
	if err != nil {
		logger.Fatalf("failed to load configuration: %s", err)
	}
	if *addrF != "" {
		cfg.Server.Addr = *addrF
	}

	// Open the trajectory ledger.
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("failed to open database: %s", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to migrate database: %s", err)
	}

	// Assemble the streaming pipeline.
	trk := tracker.New(cfg.Tracker.TrackThresh, cfg.Tracker.MatchThresh, cfg.Tracker.TrackBuffer)
	est := tracker.NewEstimator(cfg.Calibration.FocalLengthPx, cfg.Calibration.ClassHeightsM)
	detector := pipeline.NewHTTPDetector(cfg.Stream.DetectorURL, 0)
	session := pipeline.NewSession(cfg.Stream, detector, trk, est, stream.NewAnnotator(85))
	defer session.Stop()

	// The ledger writer and the websocket hub consume the session bus
	// independently.
	writer := database.NewWriter(db)
	events, unsubscribe := session.Bus().SubscribeChannel(cfg.Stream.EventBusBuffer)
	go writer.Run(events)
	defer unsubscribe()

	hub := ws.NewDetectionHub()
	defer session.Bus().Subscribe(hub)()

	statsEngine := stats.New(db, clock.New(), cfg.Stats.CacheTTL)

	// Retention sweeps run in the background for the process lifetime.
	sweeper := maintenance.NewSweeper(db, cfg.Retention, clock.New())
	sweepStop := make(chan struct{})
	go sweeper.Run(sweepStop)
	defer close(sweepStop)

	app := api.New(cfg, db, statsEngine, session, sweeper, hub)

	// Channel used by both the signal handler and server goroutines to
	// notify the main goroutine when to stop.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	done := make(chan struct{})

	handleHTTPServer(cfg.Server.Addr, app.Routes(), &wg, errc, done, logger)

	logger.Printf("exiting (%v)", <-errc)
	close(done)
	wg.Wait()
	logger.Println("exited")
}
