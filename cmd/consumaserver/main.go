// Command consumaserver runs the comparative sync/async demonstration
// server. Flag parsing and the panic-recovery/shutdown-signal shape follow
// the teacher's cmd/sayl/main.go; wiring of config -> store -> queue ->
// api -> lifecycle is new, since the teacher has no long-lived server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Amr-9/consuma/internal/api"
	"github.com/Amr-9/consuma/internal/callback"
	"github.com/Amr-9/consuma/internal/health"
	"github.com/Amr-9/consuma/internal/lifecycle"
	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/queue"
	"github.com/Amr-9/consuma/internal/ratelimit"
	"github.com/Amr-9/consuma/internal/ssrf"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/Amr-9/consuma/pkg/config"
	"github.com/rs/zerolog"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	var addr string
	flag.StringVar(&addr, "addr", ":8080", "address to listen on")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	settings, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	st, err := store.Open(settings.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", settings.DatabasePath).Msg("failed to open request store")
	}
	defer st.Close()

	rec := metrics.New()
	validator := ssrf.New(settings.AllowPrivateCallbacks)
	deliverer := callback.NewDeliverer(validator, st, rec, settings.CallbackMaxRetries, settings.CallbackTimeout, log)
	q := queue.New(settings.MaxQueueSize, settings.MaxWorkers, st, deliverer, rec, log)
	limiter := ratelimit.New(settings.RateLimitRequests, settings.RateLimitWindow, log)

	srv := &api.Server{
		Settings:  settings,
		Store:     st,
		Queue:     q,
		Validator: validator,
		Health:    health.New(settings.HealthDegradeThreshold),
		Metrics:   rec,
		Log:       log,
		StartedAt: time.Now(),
	}

	go runCleanupSweep(limiter, settings.RateLimitWindow, log)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: limiter.Middleware(srv.NewMux()),
	}

	runner := &lifecycle.Runner{
		HTTPServer:      httpServer,
		Queue:           q,
		Log:             log,
		ShutdownTimeout: 30 * time.Second,
	}

	if err := runner.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

// runCleanupSweep periodically evicts stale per-IP rate limiter buckets, the
// Go equivalent of the original's cleanup_stale being invoked on a timer.
func runCleanupSweep(limiter *ratelimit.Limiter, window time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for range ticker.C {
		if n := limiter.Cleanup(); n > 0 {
			log.Debug().Int("evicted", n).Msg("ratelimit: cleanup sweep")
		}
	}
}
