// Package ratelimit implements the per-client-IP request limiter sitting in
// front of every endpoint except /healthz. Grounded on
// original_source/src/app/rate_limit.py's SlidingWindowRateLimiter — same
// policy shape (max requests per window, per IP, 429 + Retry-After, a
// periodic cleanup sweep for stale entries) — but the per-IP limiter itself
// is golang.org/x/time/rate.Limiter, the same token-bucket package the
// teacher's attacker.go already depends on for its load-stage ramp
// controller, rather than a hand-rolled sliding-window timestamp list.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// entry pairs a token bucket with the last time it was touched, so Cleanup
// can evict buckets nobody has used recently.
type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter rate-limits per client IP using one token bucket per IP. The
// bucket refills at requestsPerWindow/window and has a burst equal to
// requestsPerWindow, so a client can spend its whole window's budget in a
// burst and then must wait for refill — equivalent in effect to the
// original's sliding window, implemented with Go's idiomatic rate limiter.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	rps      rate.Limit
	burst    int
	window   time.Duration
	log      zerolog.Logger
}

// New builds a Limiter allowing maxRequests per window, per client IP.
func New(maxRequests int, window time.Duration, log zerolog.Logger) *Limiter {
	rps := rate.Limit(float64(maxRequests) / window.Seconds())
	return &Limiter{
		entries: make(map[string]*entry),
		rps:     rps,
		burst:   maxRequests,
		window:  window,
		log:     log,
	}
}

func (l *Limiter) allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[clientIP]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[clientIP] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Cleanup evicts buckets untouched for longer than two windows. Intended to
// run on a periodic ticker (spec's C7 background sweep); returns the number
// of entries removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-2 * l.window)
	removed := 0
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

// Middleware returns an http.Handler wrapper that rejects requests over the
// per-IP rate with 429 and a Retry-After header. /healthz is always exempt,
// matching the original's dispatch bypass for liveness checks.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !l.allow(ip) {
			retryAfter := int(l.window.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail":"Rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

