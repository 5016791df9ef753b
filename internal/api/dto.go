package api

import "github.com/Amr-9/consuma/pkg/models"

type syncRequestBody struct {
	InputData  string `json:"input_data"`
	Iterations *int   `json:"iterations,omitempty"`
}

type syncResponseBody struct {
	RequestID  string `json:"request_id"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	Iterations int    `json:"iterations"`
	DurationMs float64 `json:"duration_ms"`
}

type asyncRequestBody struct {
	InputData   string `json:"input_data"`
	CallbackURL string `json:"callback_url"`
	Iterations  *int   `json:"iterations,omitempty"`
}

type asyncResponseBody struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type errorBody struct {
	Detail string       `json:"detail"`
	Errors []fieldError `json:"errors,omitempty"`
}

type requestSummary struct {
	ID         string  `json:"id"`
	Mode       string  `json:"mode"`
	Status     string  `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	CreatedAt  string  `json:"created_at"`
}

type callbackAttemptDetail struct {
	AttemptNumber int     `json:"attempt_number"`
	StatusCode    int     `json:"status_code,omitempty"`
	Error         string  `json:"error,omitempty"`
	DurationMs    float64 `json:"duration_ms"`
	CreatedAt     string  `json:"created_at"`
}

type requestDetail struct {
	ID               string                  `json:"id"`
	Mode             string                  `json:"mode"`
	InputData        string                  `json:"input_data"`
	Iterations       int                     `json:"iterations"`
	Status           string                  `json:"status"`
	Result           string                  `json:"result,omitempty"`
	DurationMs       float64                 `json:"duration_ms,omitempty"`
	CallbackURL      string                  `json:"callback_url,omitempty"`
	CallbackStatus   string                  `json:"callback_status,omitempty"`
	CallbackAttempts int                     `json:"callback_attempts"`
	CallbackError    string                  `json:"callback_error,omitempty"`
	CreatedAt        string                  `json:"created_at"`
	CompletedAt      string                  `json:"completed_at,omitempty"`
	DeliveryTrace    []callbackAttemptDetail `json:"delivery_trace"`
}

func toRequestSummary(r models.Request) requestSummary {
	return requestSummary{
		ID:         r.ID,
		Mode:       string(r.Mode),
		Status:     string(r.Status),
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt.UTC().Format(timeLayout),
	}
}

func toRequestDetail(r models.Request, attempts []models.CallbackAttempt) requestDetail {
	trace := make([]callbackAttemptDetail, 0, len(attempts))
	for _, a := range attempts {
		trace = append(trace, callbackAttemptDetail{
			AttemptNumber: a.AttemptNumber,
			StatusCode:    a.StatusCode,
			Error:         a.Error,
			DurationMs:    a.DurationMs,
			CreatedAt:     a.CreatedAt.UTC().Format(timeLayout),
		})
	}

	d := requestDetail{
		ID:               r.ID,
		Mode:             string(r.Mode),
		InputData:        r.InputData,
		Iterations:       r.Iterations,
		Status:           string(r.Status),
		Result:           r.Result,
		DurationMs:       r.DurationMs,
		CallbackURL:      r.CallbackURL,
		CallbackStatus:   string(r.CallbackStatus),
		CallbackAttempts: r.CallbackAttempts,
		CallbackError:    r.CallbackError,
		CreatedAt:        r.CreatedAt.UTC().Format(timeLayout),
		DeliveryTrace:    trace,
	}
	if !r.CompletedAt.IsZero() {
		d.CompletedAt = r.CompletedAt.UTC().Format(timeLayout)
	}
	return d
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
