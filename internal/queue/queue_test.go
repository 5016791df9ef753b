package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amr-9/consuma/internal/callback"
	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/ssrf"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Amr-9/consuma/pkg/models"
)

func newTestQueue(t *testing.T, capacity, workers int) (*Queue, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/requests.wal")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := metrics.New()
	d := callback.NewDeliverer(ssrf.New(true), st, rec, 2, time.Second, zerolog.Nop())
	q := New(capacity, workers, st, d, rec, zerolog.Nop())
	return q, st
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q, _ := newTestQueue(t, 1, 0) // no workers drain it, so it fills up

	require.True(t, q.Enqueue(Task{RequestID: "r1"}))
	require.False(t, q.Enqueue(Task{RequestID: "r2"}), "second enqueue should be rejected: queue full")
	require.Equal(t, 1, q.QueueDepth())
}

func TestWorkerProcessesTaskAndDeliversCallback(t *testing.T) {
	var delivered atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, st := newTestQueue(t, 4, 1)
	require.NoError(t, st.InsertRequest(models.Request{ID: "r1", Mode: models.ModeAsync, Status: models.StatusPending}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.True(t, q.Enqueue(Task{RequestID: "r1", InputData: "hello", Iterations: 5, CallbackURL: srv.URL}))

	require.Eventually(t, func() bool {
		got, err := st.GetRequest("r1")
		return err == nil && got.Status == models.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, delivered.Load, time.Second, 5*time.Millisecond)

	got, err := st.GetRequest("r1")
	require.NoError(t, err)
	require.NotEmpty(t, got.Result)
	require.Len(t, got.Result, 64)
}

func TestWorkerSkipsCallbackWhenURLEmpty(t *testing.T) {
	q, st := newTestQueue(t, 4, 1)
	require.NoError(t, st.InsertRequest(models.Request{ID: "r2", Mode: models.ModeAsync, Status: models.StatusPending}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.True(t, q.Enqueue(Task{RequestID: "r2", InputData: "x", Iterations: 3}))

	require.Eventually(t, func() bool {
		got, err := st.GetRequest("r2")
		return err == nil && got.Status == models.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownDrainsQueueAndStopsWorkers(t *testing.T) {
	q, st := newTestQueue(t, 4, 2)
	require.NoError(t, st.InsertRequest(models.Request{ID: "r3", Mode: models.ModeAsync}))

	ctx := context.Background()
	q.Start(ctx)
	require.True(t, q.Enqueue(Task{RequestID: "r3", InputData: "x", Iterations: 1}))

	q.Shutdown(2 * time.Second)

	got, err := st.GetRequest("r3")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Equal(t, 0, q.ActiveWorkers())
}

func TestWorkerRecordsWorkLatency(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/requests.wal")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := metrics.New()
	d := callback.NewDeliverer(ssrf.New(true), st, rec, 2, time.Second, zerolog.Nop())
	q := New(4, 1, st, d, rec, zerolog.Nop())
	require.NoError(t, st.InsertRequest(models.Request{ID: "r5", Mode: models.ModeSync}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.True(t, q.Enqueue(Task{RequestID: "r5", InputData: "x", Iterations: 5}))

	require.Eventually(t, func() bool {
		return rec.Snapshot().Work.Count == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessRecoversPanicAndDeliversFailureCallback(t *testing.T) {
	orig := workCompute
	workCompute = func(input []byte, iterations int) models.WorkResult {
		panic("simulated C1 failure")
	}
	defer func() { workCompute = orig }()

	var gotErr atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotErr.Store(string(buf))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, st := newTestQueue(t, 4, 1)
	require.NoError(t, st.InsertRequest(models.Request{ID: "r6", Mode: models.ModeAsync}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.True(t, q.Enqueue(Task{RequestID: "r6", InputData: "x", Iterations: 5, CallbackURL: srv.URL}))

	require.Eventually(t, func() bool {
		got, err := st.GetRequest("r6")
		return err == nil && got.Status == models.StatusFailed
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return gotErr.Load() != nil }, time.Second, 5*time.Millisecond)
	require.Contains(t, gotErr.Load().(string), "Work computation failed")
}

func TestActiveWorkersReflectsInFlightCount(t *testing.T) {
	release := make(chan struct{})
	orig := workCompute
	workCompute = func(input []byte, iterations int) models.WorkResult {
		<-release
		return orig(input, iterations)
	}
	defer func() { workCompute = orig }()

	q, st := newTestQueue(t, 4, 1)
	require.NoError(t, st.InsertRequest(models.Request{ID: "r4"}))

	require.Equal(t, 0, q.ActiveWorkers())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.True(t, q.Enqueue(Task{RequestID: "r4", InputData: "x", Iterations: 200000}))
	require.Eventually(t, func() bool { return q.ActiveWorkers() == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		got, err := st.GetRequest("r4")
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return q.ActiveWorkers() == 0 }, time.Second, 5*time.Millisecond)
}
