package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidArgument marks local validation failures detected before any
// request is sent. Match it with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentf builds an error wrapping ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// TransportError is returned when a request could not be completed or the
// server answered with a non-2xx status.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Body       string
	ErrorCode  string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("bulk %s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("bulk %s %s: HTTP %d: %s: %s", e.Method, e.Path, e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("bulk %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewHTTPError builds a TransportError for a non-2xx response, extracting the
// first entry of the standard `[{"errorCode":..,"message":..}]` error body.
func NewHTTPError(method, path string, statusCode int, body []byte) *TransportError {
	e := &TransportError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Body:       string(body),
	}

	var apiErrs []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErrs); err == nil && len(apiErrs) > 0 {
		e.ErrorCode = apiErrs[0].ErrorCode
		e.Message = apiErrs[0].Message
	}
	return e
}

// ProtocolError is returned when a successful response lacks an expected field
// or cannot be decoded.
type ProtocolError struct {
	Op    string
	Field string
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bulk %s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bulk %s: response missing %q", e.Op, e.Field)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
