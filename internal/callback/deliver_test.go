package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/ssrf"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/Amr-9/consuma/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeClock makes backoff instantaneous and deterministic for tests.
type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func newTestDeliverer(t *testing.T, maxRetries int) (*Deliverer, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/requests.wal")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	d := NewDeliverer(ssrf.New(true), st, metrics.New(), maxRetries, 2*time.Second, zerolog.Nop())
	d.Clock = &fakeClock{t: time.Unix(0, 0)}
	return d, st
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.Header.Get("X-Attempt-Number"))
		require.Equal(t, "req-1-1", r.Header.Get("X-Idempotency-Key"))
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody.Store(string(buf))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, st := newTestDeliverer(t, 5)
	require.NoError(t, st.InsertRequest(models.Request{ID: "req-1"}))

	d.Deliver(context.Background(), "req-1", srv.URL, models.CallbackPayload{Status: models.StatusCompleted, Result: "abc123", DurationMs: 4.5})

	got, err := st.GetRequest("req-1")
	require.NoError(t, err)
	require.Equal(t, models.CallbackDelivered, got.CallbackStatus)
	require.Equal(t, 1, got.CallbackAttempts)

	attempts := st.GetCallbackAttempts("req-1")
	require.Len(t, attempts, 1)
	require.Equal(t, 200, attempts[0].StatusCode)

	body := gotBody.Load().(string)
	require.Equal(t, "abc123", gjson.Get(body, "result").String())
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, st := newTestDeliverer(t, 5)
	require.NoError(t, st.InsertRequest(models.Request{ID: "req-2"}))

	d.Deliver(context.Background(), "req-2", srv.URL, models.CallbackPayload{Status: models.StatusCompleted, Result: "x", DurationMs: 1})

	got, err := st.GetRequest("req-2")
	require.NoError(t, err)
	require.Equal(t, models.CallbackDelivered, got.CallbackStatus)
	require.Equal(t, 3, got.CallbackAttempts)
	require.Equal(t, int32(3), calls.Load())
}

func TestDeliverExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, st := newTestDeliverer(t, 3)
	require.NoError(t, st.InsertRequest(models.Request{ID: "req-3"}))

	d.Deliver(context.Background(), "req-3", srv.URL, models.CallbackPayload{Status: models.StatusCompleted, Result: "x", DurationMs: 1})

	got, err := st.GetRequest("req-3")
	require.NoError(t, err)
	require.Equal(t, models.CallbackFailed, got.CallbackStatus)
	require.Equal(t, 3, got.CallbackAttempts)
	require.Equal(t, "All 3 attempts failed", got.CallbackError)

	attempts := st.GetCallbackAttempts("req-3")
	require.Len(t, attempts, 3)
}

func TestDeliverBlocksSSRFWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st, err := store.Open(t.TempDir() + "/requests.wal")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.InsertRequest(models.Request{ID: "req-4"}))

	d := NewDeliverer(ssrf.New(false), st, metrics.New(), 5, 2*time.Second, zerolog.Nop())
	d.Clock = &fakeClock{t: time.Unix(0, 0)}

	d.Deliver(context.Background(), "req-4", srv.URL, models.CallbackPayload{Status: models.StatusCompleted, Result: "x", DurationMs: 1})

	got, err := st.GetRequest("req-4")
	require.NoError(t, err)
	require.Equal(t, models.CallbackFailed, got.CallbackStatus)
	require.Equal(t, 1, got.CallbackAttempts, "SSRF rejection must not retry")
	require.Equal(t, int32(0), calls.Load())
}

func TestDeliverRecordsCallbackLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, st := newTestDeliverer(t, 5)
	require.NoError(t, st.InsertRequest(models.Request{ID: "req-5"}))

	d.Deliver(context.Background(), "req-5", srv.URL, models.CallbackPayload{Status: models.StatusCompleted, Result: "x", DurationMs: 1})

	snap := d.Metrics.Snapshot()
	require.EqualValues(t, 1, snap.Callbacks.Count)
}

func TestBackoffDelayMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDelay(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, maxDelay+maxDelay/4+time.Second)
		if attempt >= 6 {
			// from here the un-jittered base (64s) exceeds maxDelay, so it's capped
			require.LessOrEqual(t, d, maxDelay+maxDelay/4+time.Second)
		}
		// the ±25% jitter bands of consecutive attempts 1..6 do not overlap
		require.Greater(t, d, prev)
		prev = d
	}
	_ = prev
}
