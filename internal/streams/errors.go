package streams

import (
	"fmt"

	"github.com/smazurov/audionode/internal/diagnose"
)

// StreamError is a domain error with a stable code and, where a
// failure came from the outside world, an attached diagnosis for the
// admin UI.
type StreamError struct {
	Code      string
	Message   string
	Cause     error
	Diagnosis *diagnose.Diagnosis
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeStreamNotFound    = "STREAM_NOT_FOUND"
	ErrCodeStreamExists      = "STREAM_EXISTS"
	ErrCodeDuplicateName     = "DUPLICATE_NAME"
	ErrCodeInvalidParams     = "INVALID_PARAMS"
	ErrCodeDeviceConflict    = "DEVICE_CONFLICT"
	ErrCodeDeviceNotMapped   = "DEVICE_NOT_MAPPED"
	ErrCodeBrokerUnavailable = "BROKER_UNAVAILABLE"
	ErrCodeEncoderMissing    = "ENCODER_MISSING"
	ErrCodeEncoderFailed     = "ENCODER_FAILED"
	ErrCodeStoreError        = "STORE_ERROR"
)

// NewStreamError creates a stream error without a diagnosis.
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{Code: code, Message: message, Cause: cause}
}

// NewDiagnosedError creates a stream error carrying a diagnosis.
func NewDiagnosedError(code, message string, d diagnose.Diagnosis) *StreamError {
	return &StreamError{Code: code, Message: message, Diagnosis: &d}
}
