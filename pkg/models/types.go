// Package models defines the persistent record shapes shared across the
// consuma server: request records, the callback-attempt log, and the
// health/stats snapshots exposed over HTTP.
package models

import "time"

// Mode identifies which endpoint accepted a request.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// Status is the lifecycle state of a request record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CallbackStatus is the lifecycle state of callback delivery for an async
// request. The zero value (empty string) means "no callback attempted yet";
// sync requests never acquire one.
type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackDelivered CallbackStatus = "delivered"
	CallbackFailed    CallbackStatus = "failed"
)

// Request is the unit of work persisted by the store (C2) and mutated,
// per §3's lifecycle, exactly once by a worker and then by the deliverer.
type Request struct {
	ID               string         `json:"id"`
	Mode             Mode           `json:"mode"`
	InputData        string         `json:"input_data"`
	Iterations       int            `json:"iterations"`
	Status           Status         `json:"status"`
	Result           string         `json:"result,omitempty"`
	DurationMs       float64        `json:"duration_ms,omitempty"`
	CallbackURL      string         `json:"callback_url,omitempty"`
	CallbackStatus   CallbackStatus `json:"callback_status,omitempty"`
	CallbackAttempts int            `json:"callback_attempts"`
	CallbackError    string         `json:"callback_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      time.Time      `json:"completed_at,omitempty"`
}

// CallbackAttempt is one append-only row in the delivery trace for a request.
type CallbackAttempt struct {
	ID            int64     `json:"id"`
	RequestID     string    `json:"request_id"`
	AttemptNumber int       `json:"attempt_number"`
	StatusCode    int       `json:"status_code,omitempty"`
	Error         string    `json:"error,omitempty"`
	DurationMs    float64   `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// WorkResult is the output of the C1 compute step.
type WorkResult struct {
	Result     string
	DurationMs float64
}

// CallbackPayload is the JSON body posted to a callback URL by C4. Its
// shape mirrors the two payload variants the worker builds: a success
// payload (Status=completed, Result/Iterations/DurationMs populated) and
// a failure payload (Status=failed, Error populated instead).
type CallbackPayload struct {
	RequestID  string  `json:"request_id"`
	Status     Status  `json:"status"`
	Result     string  `json:"result,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// LatencySummary is a percentile snapshot over a histogram, used by the
// /requests/stats debug endpoint and by the dashboard CLI.
type LatencySummary struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
	Min   time.Duration `json:"min"`
}

// StatsSnapshot is the body of GET /requests/stats.
type StatsSnapshot struct {
	Work      LatencySummary `json:"work"`
	Callbacks LatencySummary `json:"callbacks"`
}

// Health is the body of GET /healthz.
type Health struct {
	Status         string  `json:"status"`
	QueueDepth     int     `json:"queue_depth"`
	ActiveWorkers  int     `json:"active_workers"`
	DBConnected    bool    `json:"db_connected"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}
