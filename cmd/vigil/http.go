package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// handleHTTPServer starts the HTTP server and shuts it down gracefully
// when done is closed.
func handleHTTPServer(addr string, handler http.Handler, wg *sync.WaitGroup, errc chan error, done <-chan struct{}, logger *log.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Printf("HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-done
		logger.Printf("shutting down HTTP server at %q", addr)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Printf("failed to shutdown: %v", err)
		}
	}()
}
