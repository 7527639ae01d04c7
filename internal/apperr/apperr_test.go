package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestUpstreamErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    *UpstreamError
		target error
		status int
	}{
		{"not found", &UpstreamError{Op: "get row", Status: 404}, ErrNotFound, http.StatusNotFound},
		{"conflict", &UpstreamError{Op: "patch row", Status: 409}, ErrConflict, http.StatusConflict},
		{"precondition", &UpstreamError{Op: "patch row", Status: 412}, ErrConflict, http.StatusConflict},
		{"bad request", &UpstreamError{Op: "patch row", Status: 400}, ErrValidation, http.StatusBadRequest},
		{"server error", &UpstreamError{Op: "get row", Status: 502}, ErrTransient, http.StatusServiceUnavailable},
		{"throttled", &UpstreamError{Op: "get row", Status: 429}, ErrTransient, http.StatusServiceUnavailable},
		{"network", &UpstreamError{Op: "get row", Err: errors.New("connection reset")}, ErrTransient, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("fetch student: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("expected %v to match %v", wrapped, tt.target)
			}
			if got := HTTPStatus(wrapped); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestUpstreamErrorKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &UpstreamError{Op: "create folder", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected the original cause to stay reachable")
	}
	if !IsRetryable(err) {
		t.Error("expected network failure to be retryable")
	}
}

func TestHTTPStatusDefaults(t *testing.T) {
	if got := HTTPStatus(fmt.Errorf("draw: %w", ErrRender)); got != http.StatusInternalServerError {
		t.Errorf("expected 500 for render errors, got %d", got)
	}
	if got := HTTPStatus(Validation("missing record id")); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
	if got := HTTPStatus(ErrIncompleteData); got != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", got)
	}
}
