// Package metrics implements the GET /requests/stats debug endpoint
// supplemented in SPEC_FULL.md. Grounded on the teacher's internal/stats
// package: one HdrHistogram per tracked latency series, guarded by a
// mutex, snapshotted into a plain struct for the HTTP response. The
// teacher tracks one histogram per load-test second bucket; here there are
// exactly two long-lived histograms (work duration, callback duration)
// since there's no "run" boundary to bucket against.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/Amr-9/consuma/pkg/models"
)

// Recorder accumulates latency observations for the work step and the
// callback delivery step, each as a percentile-queryable histogram.
type Recorder struct {
	mu        sync.Mutex
	work      *hdrhistogram.Histogram
	callbacks *hdrhistogram.Histogram
}

// histMin/histMax/histSigFigs mirror the teacher's stats.NewMonitor range:
// 1µs floor, 30s ceiling, 3 significant figures of precision.
const (
	histMin     = 1
	histMax     = 30_000_000
	histSigFigs = 3
)

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		work:      hdrhistogram.New(histMin, histMax, histSigFigs),
		callbacks: hdrhistogram.New(histMin, histMax, histSigFigs),
	}
}

// RecordWork observes one C1 compute duration.
func (r *Recorder) RecordWork(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.work.RecordValue(d.Microseconds())
}

// RecordCallback observes one C4 delivery attempt duration.
func (r *Recorder) RecordCallback(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.callbacks.RecordValue(d.Microseconds())
}

// Snapshot returns the current percentile summaries for both series.
func (r *Recorder) Snapshot() models.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return models.StatsSnapshot{
		Work:      summarize(r.work),
		Callbacks: summarize(r.callbacks),
	}
}

func summarize(h *hdrhistogram.Histogram) models.LatencySummary {
	return models.LatencySummary{
		Count: h.TotalCount(),
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Min:   time.Duration(h.Min()) * time.Microsecond,
	}
}
