package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAllowsUpToBurstThenRejects(t *testing.T) {
	l := New(2, time.Minute, zerolog.Nop())
	handler := l.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sync", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMiddlewareTracksClientsIndependently(t *testing.T) {
	l := New(1, time.Minute, zerolog.Nop())
	handler := l.Middleware(okHandler())

	req1 := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req1.RemoteAddr = "10.0.0.1:1"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req2.RemoteAddr = "10.0.0.2:1"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code, "a different client IP must have its own bucket")
}

func TestMiddlewareExemptsHealthz(t *testing.T) {
	l := New(1, time.Minute, zerolog.Nop())
	handler := l.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.9:1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "/healthz must never be rate limited")
	}
}

func TestCleanupEvictsStaleEntries(t *testing.T) {
	l := New(1, 10*time.Millisecond, zerolog.Nop())
	l.allow("10.0.0.1")
	require.Len(t, l.entries, 1)

	time.Sleep(30 * time.Millisecond)
	removed := l.Cleanup()
	require.Equal(t, 1, removed)
	require.Empty(t, l.entries)
}
