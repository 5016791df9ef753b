// Package store implements C2: the durable request record and
// callback-attempt log. Spec §4.2 treats the store as "any embedded store
// providing atomic writes, secondary indexing on (mode) and (status), and
// concurrent reader safety" and explicitly endorses "a write-ahead-journaled
// file store" as an acceptable single-writer discipline — that's what this
// is: an in-memory index guarded by a sync.RWMutex, durable across process
// restarts via an append-only JSON-lines journal.
//
// The journal-write technique (json.Encoder + explicit Sync before Close)
// is lifted from the teacher's cmd/sayl/main.go saveReport, generalized
// from "write one report at exit" to "append one event per mutation".
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Amr-9/consuma/pkg/models"
)

// ErrNotFound is returned by GetRequest when no record exists for the id.
var ErrNotFound = errors.New("store: request not found")

// ErrDuplicateID is returned by InsertRequest on a constraint violation.
var ErrDuplicateID = errors.New("store: duplicate request id")

// eventKind tags each journal line so Open can replay it.
type eventKind string

const (
	eventInsertRequest    eventKind = "insert_request"
	eventUpdateResult     eventKind = "update_result"
	eventUpdateCallback   eventKind = "update_callback"
	eventInsertAttempt    eventKind = "insert_attempt"
)

// event is the on-disk journal record. Only the fields relevant to Kind are
// populated; the rest are zero.
type event struct {
	Kind     eventKind              `json:"kind"`
	Request  *models.Request        `json:"request,omitempty"`
	Attempt  *models.CallbackAttempt `json:"attempt,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Status   models.Status          `json:"status,omitempty"`
	Result   string                 `json:"result,omitempty"`
	Duration float64                `json:"duration_ms,omitempty"`

	CallbackStatus models.CallbackStatus `json:"callback_status,omitempty"`
	Attempts       int                   `json:"attempts,omitempty"`
	CallbackError  string                `json:"callback_error,omitempty"`
}

// Store is the concurrency-safe in-memory index with a durable journal.
// Readers proceed concurrently under RLock; every mutation takes the full
// Lock and is journaled before the in-memory state is considered committed.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
	attempts map[string][]models.CallbackAttempt
	order    []string // request ids in insertion order, for ListRequests

	journal   *os.File
	journalMu sync.Mutex
	nextAttemptID int64
}

// Open creates or re-opens the journal file at path and replays it to
// rebuild the in-memory index. Safe to call once at startup.
func Open(path string) (*Store, error) {
	s := &Store{
		requests: make(map[string]*models.Request),
		attempts: make(map[string][]models.CallbackAttempt),
	}

	if err := s.replay(path); err != nil {
		return nil, fmt.Errorf("store: replay journal: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open journal for append: %w", err)
	}
	s.journal = f
	return s, nil
}

func (s *Store) replay(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e event
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("corrupt journal line: %w", err)
		}
		s.applyEvent(e)
	}
	return scanner.Err()
}

func (s *Store) applyEvent(e event) {
	switch e.Kind {
	case eventInsertRequest:
		s.requests[e.Request.ID] = e.Request
		s.order = append(s.order, e.Request.ID)
	case eventUpdateResult:
		if r, ok := s.requests[e.ID]; ok {
			r.Status = e.Status
			r.Result = e.Result
			r.DurationMs = e.Duration
		}
	case eventUpdateCallback:
		if r, ok := s.requests[e.ID]; ok {
			r.CallbackStatus = e.CallbackStatus
			if e.Attempts > r.CallbackAttempts {
				r.CallbackAttempts = e.Attempts
			}
			r.CallbackError = e.CallbackError
		}
	case eventInsertAttempt:
		s.attempts[e.Attempt.RequestID] = append(s.attempts[e.Attempt.RequestID], *e.Attempt)
		if e.Attempt.ID >= s.nextAttemptID {
			s.nextAttemptID = e.Attempt.ID + 1
		}
	}
}

func (s *Store) appendJournal(e event) error {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()

	enc := json.NewEncoder(s.journal)
	if err := enc.Encode(e); err != nil {
		return err
	}
	return s.journal.Sync()
}

// InsertRequest persists a new pending record. Fails only on a duplicate id.
func (s *Store) InsertRequest(r models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; exists {
		return ErrDuplicateID
	}

	cp := r
	if err := s.appendJournal(event{Kind: eventInsertRequest, Request: &cp}); err != nil {
		return fmt.Errorf("store: journal insert_request: %w", err)
	}
	s.requests[r.ID] = &cp
	s.order = append(s.order, r.ID)
	return nil
}

// UpdateRequestResult sets the terminal status/result/duration for a
// request. Idempotent: repeated calls with the same terminal values are a
// no-op in effect (last write wins per spec §4.2).
func (s *Store) UpdateRequestResult(id string, status models.Status, result string, durationMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return ErrNotFound
	}

	e := event{Kind: eventUpdateResult, ID: id, Status: status, Result: result, Duration: durationMs}
	if err := s.appendJournal(e); err != nil {
		return fmt.Errorf("store: journal update_result: %w", err)
	}
	s.applyEvent(e)
	return nil
}

// UpdateCallbackStatus sets callback_status/attempts/error on a request.
// attempts is monotonic: a lower value than what's already recorded is
// ignored (spec §4.2: "implementers should not decrease attempts").
func (s *Store) UpdateCallbackStatus(id string, status models.CallbackStatus, attempts int, callbackErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return ErrNotFound
	}

	e := event{Kind: eventUpdateCallback, ID: id, CallbackStatus: status, Attempts: attempts, CallbackError: callbackErr}
	if err := s.appendJournal(e); err != nil {
		return fmt.Errorf("store: journal update_callback: %w", err)
	}
	s.applyEvent(e)
	return nil
}

// InsertCallbackAttempt appends one row to the delivery trace. Append-only:
// never mutated or deleted.
func (s *Store) InsertCallbackAttempt(requestID string, attemptNumber int, statusCode int, errMsg string, durationMs float64) (models.CallbackAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := models.CallbackAttempt{
		ID:            s.nextAttemptID,
		RequestID:     requestID,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		Error:         errMsg,
		DurationMs:    durationMs,
	}

	e := event{Kind: eventInsertAttempt, Attempt: &a}
	if err := s.appendJournal(e); err != nil {
		return models.CallbackAttempt{}, fmt.Errorf("store: journal insert_attempt: %w", err)
	}
	s.applyEvent(e)
	return a, nil
}

// GetRequest returns a copy of the request record for id.
func (s *Store) GetRequest(id string) (models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return models.Request{}, ErrNotFound
	}
	return *r, nil
}

// GetCallbackAttempts returns the delivery trace for id, ordered by
// attempt_number.
func (s *Store) GetCallbackAttempts(id string) []models.CallbackAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := append([]models.CallbackAttempt(nil), s.attempts[id]...)
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].AttemptNumber < attempts[j].AttemptNumber })
	return attempts
}

// ListRequests returns records matching mode (or all modes if mode is ""),
// most-recently-created first, paginated by limit/offset.
func (s *Store) ListRequests(mode models.Mode, limit, offset int) []models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Request, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.requests[s.order[i]]
		if mode != "" && r.Mode != mode {
			continue
		}
		matched = append(matched, *r)
	}

	if offset >= len(matched) {
		return nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end]
}

// Ping reports whether the store is reachable (for GET /healthz). It is true
// from a successful Open until Close releases the journal; this exists so the
// healthz handler has the same contract the teacher's DB-backed examples
// would expose.
func (s *Store) Ping() bool {
	return s.journal != nil
}

// Close flushes and closes the journal file.
func (s *Store) Close() error {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}
