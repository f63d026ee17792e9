package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/streams"
)

// Envelope is the uniform success shape of every admin API response.
type Envelope[T any] struct {
	OK   bool `json:"ok" example:"true" doc:"Always true on success"`
	Data T    `json:"data" doc:"Operation result"`
}

// Response wraps an envelope for huma registration.
type Response[T any] struct {
	Body Envelope[T]
}

func respond[T any](data T) *Response[T] {
	return &Response[T]{Body: Envelope[T]{OK: true, Data: data}}
}

// ErrorDetail is the error half of the envelope: a category the UI
// keys styling off, a short title, a message, and optional remediation
// steps.
type ErrorDetail struct {
	Category  string   `json:"category" example:"device-busy" doc:"Failure class"`
	Title     string   `json:"title" example:"Audio device is busy" doc:"Short human title"`
	Message   string   `json:"message" doc:"Failure description"`
	Solutions []string `json:"solutions,omitempty" doc:"Suggested remediation steps"`
}

// ErrorEnvelope is the failure shape: {ok:false, error:{...}}. It
// implements huma.StatusError so handlers can return it directly, and
// it replaces huma's default error model via the NewError override in
// init.
type ErrorEnvelope struct {
	status int
	OK     bool        `json:"ok" example:"false" doc:"Always false on failure"`
	Detail ErrorDetail `json:"error" doc:"Failure detail"`
}

func (e *ErrorEnvelope) Error() string {
	return e.Detail.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorEnvelope) GetStatus() int {
	return e.status
}

// newErrorEnvelope builds a failure response with an explicit category.
func newErrorEnvelope(status int, category, title, message string, solutions ...string) *ErrorEnvelope {
	return &ErrorEnvelope{
		status: status,
		Detail: ErrorDetail{
			Category:  category,
			Title:     title,
			Message:   message,
			Solutions: solutions,
		},
	}
}

// diagnosisError builds a failure response straight from a classifier
// diagnosis, preserving its category, title and solutions.
func diagnosisError(status int, d diagnose.Diagnosis, message string) *ErrorEnvelope {
	if message == "" {
		message = d.Description
	}
	return &ErrorEnvelope{
		status: status,
		Detail: ErrorDetail{
			Category:  string(d.Category),
			Title:     d.Title,
			Message:   message,
			Solutions: d.Solutions,
		},
	}
}

// defaultCategory maps an HTTP status to the envelope category used
// when no diagnosis supplies a more specific one.
func defaultCategory(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not-found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return "broker-unavailable"
	case status >= 400 && status < 500:
		return "validation"
	default:
		return "generic"
	}
}

func init() {
	// Every error huma itself produces (validation failures, 404s from
	// the router, middleware WriteErr calls) goes out in the envelope.
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var env *ErrorEnvelope
			if errors.As(err, &env) {
				return env
			}
		}
		detail := message
		if detail == "" && len(errs) > 0 {
			detail = errs[0].Error()
		}
		return newErrorEnvelope(status, defaultCategory(status), http.StatusText(status), detail)
	}
}

// mapStreamError converts a stream manager error to the envelope:
// validation 400, not-found 404, conflicts and duplicates 409, broker
// unreachable 502, everything else 500.
func mapStreamError(err error) error {
	var streamErr *streams.StreamError
	if !errors.As(err, &streamErr) {
		return newErrorEnvelope(http.StatusInternalServerError, "generic",
			"Internal error", err.Error())
	}

	status := http.StatusInternalServerError
	switch streamErr.Code {
	case streams.ErrCodeInvalidParams:
		status = http.StatusBadRequest
	case streams.ErrCodeStreamNotFound:
		status = http.StatusNotFound
	case streams.ErrCodeStreamExists, streams.ErrCodeDuplicateName,
		streams.ErrCodeDeviceConflict:
		status = http.StatusConflict
	case streams.ErrCodeBrokerUnavailable:
		status = http.StatusBadGateway
	case streams.ErrCodeDeviceNotMapped:
		status = http.StatusBadRequest
	}

	if streamErr.Diagnosis != nil {
		return diagnosisError(status, *streamErr.Diagnosis, streamErr.Message)
	}
	return newErrorEnvelope(status, defaultCategory(status),
		http.StatusText(status), streamErr.Message)
}
