// Package lifecycle implements C7: process-level startup and graceful
// shutdown orchestration. The signal handling shape — a buffered
// os.Signal channel, signal.Notify on SIGINT/SIGTERM, a goroutine that
// cancels a context on receipt — is lifted directly from the teacher's
// cmd/sayl/main.go; what changes is what gets cancelled: here it's an
// http.Server plus a queue.Queue drain instead of a load-test run.
package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Amr-9/consuma/internal/queue"
	"github.com/rs/zerolog"
)

// Runner owns the HTTP server and the background queue, and coordinates
// their shutdown when the process receives SIGINT/SIGTERM.
type Runner struct {
	HTTPServer      *http.Server
	Queue           *queue.Queue
	Log             zerolog.Logger
	ShutdownTimeout time.Duration
}

// Run starts the queue workers and the HTTP server, then blocks until a
// shutdown signal arrives, ctx is cancelled, or the server stops, and then
// stops the listener and drains the queue in turn.
// Returns any error from ListenAndServe other than the expected
// ErrServerClosed.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		r.Log.Info().Msg("lifecycle: shutdown signal received")
		cancel()
	}()

	// Workers get a context the shutdown signal does not cancel, so queued
	// and in-flight tasks can drain; Queue.Shutdown cancels them.
	r.Queue.Start(context.WithoutCancel(ctx))

	serveErr := make(chan error, 1)
	go func() {
		r.Log.Info().Str("addr", r.HTTPServer.Addr).Msg("lifecycle: server listening")
		serveErr <- r.HTTPServer.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Log.Error().Err(err).Msg("lifecycle: server stopped unexpectedly")
			runErr = err
		}
	}

	if err := r.shutdown(); err != nil {
		return err
	}
	return runErr
}

func (r *Runner) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()

	r.Log.Info().Msg("lifecycle: stopping HTTP listener")
	if err := r.HTTPServer.Shutdown(shutdownCtx); err != nil {
		r.Log.Warn().Err(err).Msg("lifecycle: HTTP shutdown did not complete cleanly")
	}

	r.Log.Info().Msg("lifecycle: draining task queue")
	r.Queue.Shutdown(r.ShutdownTimeout)

	r.Log.Info().Msg("lifecycle: shutdown complete")
	return nil
}
