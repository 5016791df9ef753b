// Package queue implements C5: the bounded task queue and worker pool
// backing the async endpoint. Grounded on
// original_source/src/app/task_queue.py's AsyncTaskQueue — a bounded
// queue, fixed worker count, non-blocking enqueue for back-pressure, and a
// drain-then-cancel shutdown — re-expressed with Go channels and a
// sync.WaitGroup instead of asyncio.Queue/asyncio.Event. The per-task retry
// wrapping pattern (separate the "do the work" step from "retry on
// transient failure") echoes the teacher's attacker.go executeStepWithRetry,
// though here only the callback step retries; work itself is not retried.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Amr-9/consuma/internal/callback"
	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/Amr-9/consuma/internal/work"
	"github.com/Amr-9/consuma/pkg/models"
	"github.com/rs/zerolog"
)

// Task is one unit of enqueued async work.
type Task struct {
	RequestID   string
	InputData   string
	Iterations  int
	CallbackURL string
}

// Queue is a bounded, channel-backed task queue with a fixed worker pool.
// QueueDepth and ActiveWorkers are safe to read concurrently from the
// healthz handler while workers are running.
type Queue struct {
	tasks     chan Task
	numWorkers int
	active    atomic.Int64

	store     *store.Store
	deliverer *callback.Deliverer
	metrics   *metrics.Recorder
	log       zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Queue with the given capacity and worker count. Call
// Start to launch the worker goroutines.
func New(capacity, numWorkers int, st *store.Store, deliverer *callback.Deliverer, rec *metrics.Recorder, log zerolog.Logger) *Queue {
	return &Queue{
		tasks:      make(chan Task, capacity),
		numWorkers: numWorkers,
		store:      st,
		deliverer:  deliverer,
		metrics:    rec,
		log:        log,
	}
}

// Start launches numWorkers goroutines pulling from the task channel. ctx
// cancellation stops workers from picking up new tasks; use Shutdown for an
// orderly drain.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.numWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.log.Info().Int("workers", q.numWorkers).Msg("queue: started worker pool")
}

// Enqueue attempts a non-blocking send. Returns false if the queue is full,
// signaling the caller (the async handler) to respond 503 (spec §4.4
// back-pressure rule).
func (q *Queue) Enqueue(t Task) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// QueueDepth returns the number of tasks currently buffered, awaiting a
// worker.
func (q *Queue) QueueDepth() int {
	return len(q.tasks)
}

// ActiveWorkers returns the number of workers currently processing a task
// (not idle, not exited).
func (q *Queue) ActiveWorkers() int {
	return int(q.active.Load())
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.log.With().Int("worker_id", id).Logger()
	log.Info().Msg("queue: worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("queue: worker stopped")
			return
		case t := <-q.tasks:
			q.active.Add(1)
			q.process(ctx, log, t)
			q.active.Add(-1)
		}
	}
}

// process runs the three-step pipeline the original spells out: compute,
// persist, then deliver. A compute failure (including a panic inside C1,
// caught at this worker-loop boundary so one bad task can't kill the
// worker) short-circuits straight to status=failed plus an error callback;
// a persistence failure is logged but does not stop the callback from
// going out, since the work itself genuinely completed.
func (q *Queue) process(ctx context.Context, log zerolog.Logger, t Task) {
	result, err := q.computeSafely(t)
	if err != nil {
		log.Error().Err(err).Str("request_id", t.RequestID).Msg("queue: work computation failed")
		if uerr := q.store.UpdateRequestResult(t.RequestID, models.StatusFailed, "", 0); uerr != nil {
			log.Error().Err(uerr).Str("request_id", t.RequestID).Msg("queue: failed to persist failure")
		}
		if t.CallbackURL == "" {
			return
		}
		q.deliverer.Deliver(ctx, t.RequestID, t.CallbackURL, models.CallbackPayload{
			Status: models.StatusFailed,
			Error:  "Work computation failed",
		})
		return
	}

	if err := q.store.UpdateRequestResult(t.RequestID, models.StatusCompleted, result.Result, result.DurationMs); err != nil {
		log.Error().Err(err).Str("request_id", t.RequestID).Msg("queue: failed to persist result")
	}

	if t.CallbackURL == "" {
		return
	}

	payload := models.CallbackPayload{
		Status:     models.StatusCompleted,
		Result:     result.Result,
		Iterations: t.Iterations,
		DurationMs: result.DurationMs,
	}
	q.deliverer.Deliver(ctx, t.RequestID, t.CallbackURL, payload)
}

// computeSafely runs C1, recovering a panic into an error so one malformed
// task can't take down its worker goroutine (spec §7: unexpected exceptions
// inside a worker are caught at the worker-loop boundary).
func (q *Queue) computeSafely(t Task) (result models.WorkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in work.Compute: %v", r)
		}
	}()
	start := time.Now()
	result = workCompute([]byte(t.InputData), t.Iterations)
	q.metrics.RecordWork(time.Since(start))
	return result, nil
}

// workCompute is a package variable so tests can substitute a panicking
// stand-in for C1 to exercise the recovery path above; production code
// always runs the real work.Compute.
var workCompute = work.Compute

// Shutdown signals workers to stop accepting new tasks, waits up to timeout
// for in-flight tasks to finish, then cancels any stragglers. Mirrors
// AsyncTaskQueue.shutdown's drain-then-cancel two-phase protocol.
func (q *Queue) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		for q.QueueDepth() > 0 || q.ActiveWorkers() > 0 {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		close(done)
	}()

	select {
	case <-done:
		q.log.Info().Msg("queue: drained cleanly")
	case <-time.After(timeout):
		close(stop)
		q.log.Warn().Dur("timeout", timeout).Msg("queue: drain timed out, cancelling stragglers")
	}

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	q.log.Info().Msg("queue: all workers stopped")
}
