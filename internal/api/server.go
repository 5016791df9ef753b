package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Amr-9/consuma/internal/health"
	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/queue"
	"github.com/Amr-9/consuma/internal/ssrf"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/Amr-9/consuma/internal/work"
	"github.com/Amr-9/consuma/pkg/config"
	"github.com/Amr-9/consuma/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server holds every dependency a handler needs and exposes the routed
// http.Handler via NewMux. Fields are exported so cmd/consumaserver can
// wire them without an extra constructor-option layer.
type Server struct {
	Settings  config.Settings
	Store     *store.Store
	Queue     *queue.Queue
	Validator *ssrf.Validator
	Health    *health.Breaker
	Metrics   *metrics.Recorder
	Log       zerolog.Logger
	StartedAt time.Time
}

// NewMux builds the routed handler using Go 1.22's pattern-based
// http.ServeMux (method + path patterns), mirroring how the teacher keeps
// routing declarative and close to main.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /async", s.handleAsync)
	mux.HandleFunc("GET /requests", s.handleListRequests)
	mux.HandleFunc("GET /requests/stats", s.handleStats)
	mux.HandleFunc("GET /requests/{id}", s.handleGetRequest)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string, errs ...fieldError) {
	writeJSON(w, status, errorBody{Detail: detail, Errors: errs})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}

	var fieldErrs []fieldError
	if fe := validateInputData(body.InputData); fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	if body.Iterations != nil {
		if fe := validateIterations(*body.Iterations, true); fe != nil {
			fieldErrs = append(fieldErrs, *fe)
		}
	}
	if len(fieldErrs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fieldErrs...)
		return
	}

	iterations := s.Settings.DefaultIterations
	if body.Iterations != nil {
		iterations = *body.Iterations
	}

	requestID := uuid.New().String()
	now := time.Now()
	if err := s.Store.InsertRequest(models.Request{
		ID:         requestID,
		Mode:       models.ModeSync,
		InputData:  body.InputData,
		Iterations: iterations,
		Status:     models.StatusPending,
		CreatedAt:  now,
	}); err != nil {
		s.Log.Error().Err(err).Msg("sync: failed to persist pending request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	start := time.Now()
	result := work.Compute([]byte(body.InputData), iterations)
	s.Metrics.RecordWork(time.Since(start))

	if err := s.Store.UpdateRequestResult(requestID, models.StatusCompleted, result.Result, result.DurationMs); err != nil {
		s.Log.Error().Err(err).Str("request_id", requestID).Msg("sync: failed to persist result")
	}

	writeJSON(w, http.StatusOK, syncResponseBody{
		RequestID:  requestID,
		Status:     string(models.StatusCompleted),
		Result:     result.Result,
		Iterations: iterations,
		DurationMs: result.DurationMs,
	})
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	var body asyncRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed JSON body")
		return
	}

	var fieldErrs []fieldError
	if fe := validateInputData(body.InputData); fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	if fe := validateCallbackURL(body.CallbackURL); fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	if body.Iterations != nil {
		if fe := validateIterations(*body.Iterations, true); fe != nil {
			fieldErrs = append(fieldErrs, *fe)
		}
	}
	if len(fieldErrs) > 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fieldErrs...)
		return
	}

	iterations := s.Settings.DefaultIterations
	if body.Iterations != nil {
		iterations = *body.Iterations
	}

	if err := s.Validator.Validate(r.Context(), body.CallbackURL); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid callback URL: "+err.Error())
		return
	}

	requestID := uuid.New().String()
	if err := s.Store.InsertRequest(models.Request{
		ID:             requestID,
		Mode:           models.ModeAsync,
		InputData:      body.InputData,
		Iterations:     iterations,
		Status:         models.StatusPending,
		CallbackURL:    body.CallbackURL,
		CallbackStatus: models.CallbackPending,
		CreatedAt:      time.Now(),
	}); err != nil {
		s.Log.Error().Err(err).Msg("async: failed to persist pending request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Task queue not initialized")
		return
	}

	accepted := s.Queue.Enqueue(queue.Task{
		RequestID:   requestID,
		InputData:   body.InputData,
		Iterations:  iterations,
		CallbackURL: body.CallbackURL,
	})
	if !accepted {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Server overloaded — queue is full")
		return
	}

	writeJSON(w, http.StatusAccepted, asyncResponseBody{
		RequestID: requestID,
		Status:    "accepted",
		Message:   "Request accepted. Result will be delivered to callback URL.",
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var mode models.Mode
	if m := q.Get("mode"); m != "" {
		if m != string(models.ModeSync) && m != string(models.ModeAsync) {
			writeError(w, http.StatusUnprocessableEntity, "mode must be sync or async")
			return
		}
		mode = models.Mode(m)
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be 1..200")
			return
		}
		limit = n
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "offset must be >= 0")
			return
		}
		offset = n
	}

	rows := s.Store.ListRequests(mode, limit, offset)
	out := make([]requestSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRequestSummary(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.Store.GetRequest(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		s.Log.Error().Err(err).Str("request_id", id).Msg("requests: store read failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var attempts []models.CallbackAttempt
	if rec.Mode == models.ModeAsync {
		attempts = s.Store.GetCallbackAttempts(id)
	}

	writeJSON(w, http.StatusOK, toRequestDetail(rec, attempts))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	queueDepth, activeWorkers, capacity := 0, 0, 0
	if s.Queue != nil {
		queueDepth = s.Queue.QueueDepth()
		activeWorkers = s.Queue.ActiveWorkers()
		capacity = s.Settings.MaxQueueSize
	}

	dbConnected := s.Store.Ping()
	degraded := s.Health.Check(queueDepth, capacity) || !dbConnected

	status := "ok"
	if degraded {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, models.Health{
		Status:        status,
		QueueDepth:    queueDepth,
		ActiveWorkers: activeWorkers,
		DBConnected:   dbConnected,
		UptimeSeconds: time.Since(s.StartedAt).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}
