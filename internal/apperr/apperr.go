// Package apperr defines the error taxonomy shared by both pipelines.
//
// Callers classify errors with errors.Is against the sentinels below; the
// transport layer maps them onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("record not found")
	ErrTransient      = errors.New("transient upstream failure")
	ErrConflict       = errors.New("conflicting modification")
	ErrIncompleteData = errors.New("incomplete record data")
	ErrTemplate       = errors.New("template error")
	ErrRender         = errors.New("render error")
)

// UpstreamError describes a failed call to the record store or the storage
// provider. It unwraps to the sentinel matching its status.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
		}
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	kind := e.kind()
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}

func (e *UpstreamError) kind() error {
	if e.Status == 0 {
		return ErrTransient
	}
	return FromStatus(e.Status)
}

// FromStatus maps an upstream HTTP status onto the taxonomy.
func FromStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return ErrConflict
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return ErrTransient
	case status >= 500:
		return ErrTransient
	case status >= 400:
		return ErrValidation
	}
	return ErrTransient
}

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// HTTPStatus maps err onto the status code returned to callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrIncompleteData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
