// Package callback implements C4: asynchronous delivery of the completed
// work result to the caller-supplied callback URL. Retry/backoff shape is
// ported from original_source/src/app/callback.py's deliver_callback; the
// ctx-aware retry loop and http2-capable transport construction are adapted
// from the teacher's internal/attacker/attacker.go (executeStepWithRetry,
// NewEngine's RoundTripper selection).
package callback

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/Amr-9/consuma/internal/metrics"
	"github.com/Amr-9/consuma/internal/ssrf"
	"github.com/Amr-9/consuma/internal/store"
	"github.com/Amr-9/consuma/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

const (
	baseDelay = 2 * time.Second
	maxDelay  = 60 * time.Second
)

// errRedirectBlocked marks the CheckRedirect rejection reason; httpClient
// treats it as a normal (non-retryable from the transport's point of view,
// but the response never completes so it surfaces as a request error).
var errRedirectBlocked = fmt.Errorf("callback: redirects are not followed")

// Deliverer posts the work payload to a callback URL with bounded retries,
// exponential backoff with jitter, and SSRF re-validation immediately
// before every attempt (defends against DNS rebinding between acceptance
// and delivery, per spec §4.3).
type Deliverer struct {
	Client     *http.Client
	Validator  *ssrf.Validator
	Store      *store.Store
	Metrics    *metrics.Recorder
	Clock      Clock
	MaxRetries int
	Log        zerolog.Logger
}

// NewDeliverer builds a Deliverer whose HTTP client prefers HTTP/2,
// disables redirect following (a redirect response is itself a potential
// SSRF vector), and bounds every attempt to timeout.
func NewDeliverer(validator *ssrf.Validator, st *store.Store, rec *metrics.Recorder, maxRetries int, timeout time.Duration, log zerolog.Logger) *Deliverer {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		log.Warn().Err(err).Msg("callback: http2 not available, falling back to http/1.1")
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return errRedirectBlocked
		},
	}

	return &Deliverer{
		Client:     client,
		Validator:  validator,
		Store:      st,
		Metrics:    rec,
		Clock:      RealClock,
		MaxRetries: maxRetries,
		Log:        log,
	}
}

// Deliver runs the attempt loop to completion (success, permanent SSRF
// rejection, or retries exhausted), journaling every attempt and the final
// callback_status to the store as it goes. Context cancellation (server
// shutdown) aborts the remaining retries but does not roll back attempts
// already recorded.
func (d *Deliverer) Deliver(ctx context.Context, requestID, callbackURL string, payload models.CallbackPayload) {
	payload.RequestID = requestID
	body, err := json.Marshal(payload)
	if err != nil {
		d.Log.Error().Err(err).Str("request_id", requestID).Msg("callback: failed to marshal payload")
		return
	}

	for attempt := 1; attempt <= d.MaxRetries; attempt++ {
		start := d.Clock.Now()

		if verr := d.Validator.Validate(ctx, callbackURL); verr != nil {
			elapsed := d.Clock.Now().Sub(start)
			msg := fmt.Sprintf("SSRF blocked: %v", verr)
			d.record(requestID, attempt, 0, msg, elapsed)
			d.updateStatus(requestID, models.CallbackFailed, attempt, msg)
			d.Log.Warn().Str("request_id", requestID).Str("reason", msg).Msg("callback blocked by SSRF validation")
			return
		}

		statusCode, attemptErr := d.attempt(ctx, callbackURL, requestID, attempt, body)
		elapsed := d.Clock.Now().Sub(start)

		if attemptErr == nil && statusCode >= 200 && statusCode < 300 {
			d.record(requestID, attempt, statusCode, "", elapsed)
			d.updateStatus(requestID, models.CallbackDelivered, attempt, "")
			d.Log.Info().Str("request_id", requestID).Int("attempt", attempt).Dur("elapsed", elapsed).Msg("callback delivered")
			return
		}

		errMsg := errMessage(statusCode, attemptErr)
		d.record(requestID, attempt, statusCode, errMsg, elapsed)
		d.Log.Warn().Str("request_id", requestID).Int("attempt", attempt).Int("max_retries", d.MaxRetries).Str("error", errMsg).Msg("callback attempt failed")

		if ctx.Err() != nil {
			d.updateStatus(requestID, models.CallbackFailed, attempt, "aborted: server shutting down")
			return
		}

		if attempt < d.MaxRetries {
			delay := backoffDelay(attempt)
			if sleepErr := d.Clock.Sleep(ctx, delay); sleepErr != nil {
				d.updateStatus(requestID, models.CallbackFailed, attempt, "aborted: server shutting down")
				return
			}
		}
	}

	final := fmt.Sprintf("All %d attempts failed", d.MaxRetries)
	d.updateStatus(requestID, models.CallbackFailed, d.MaxRetries, final)
	d.Log.Error().Str("request_id", requestID).Int("attempts", d.MaxRetries).Msg("callback delivery exhausted retries")
}

// attempt performs exactly one HTTP POST. It returns the response status
// code (0 if the request never completed) and any transport-level error.
func (d *Deliverer) attempt(ctx context.Context, callbackURL, requestID string, attemptNumber int, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("X-Attempt-Number", fmt.Sprintf("%d", attemptNumber))
	req.Header.Set("X-Idempotency-Key", fmt.Sprintf("%s-%d", requestID, attemptNumber))

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func errMessage(statusCode int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

func (d *Deliverer) record(requestID string, attempt, statusCode int, errMsg string, elapsed time.Duration) {
	if _, err := d.Store.InsertCallbackAttempt(requestID, attempt, statusCode, errMsg, float64(elapsed.Microseconds())/1000.0); err != nil {
		d.Log.Error().Err(err).Str("request_id", requestID).Msg("callback: failed to record attempt")
	}
	d.Metrics.RecordCallback(elapsed)
}

func (d *Deliverer) updateStatus(requestID string, status models.CallbackStatus, attempts int, errMsg string) {
	if err := d.Store.UpdateCallbackStatus(requestID, status, attempts, errMsg); err != nil {
		d.Log.Error().Err(err).Str("request_id", requestID).Msg("callback: failed to update status")
	}
}

// backoffDelay mirrors deliver_callback's schedule: base=2s doubling per
// attempt, capped at 60s, with ±25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := float64(baseDelay) * float64(uint(1)<<uint(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	total := delay + jitter
	if total < 0 {
		total = 0
	}
	return time.Duration(total)
}
