// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRateLimitError(t *testing.T) {
	err := NewRateLimitError(3 * time.Second)

	if !IsRateLimitError(err) {
		t.Error("IsRateLimitError() = false, want true")
	}
	if !strings.Contains(err.Error(), "3s") {
		t.Errorf("Error() = %q, want remaining window mentioned", err.Error())
	}

	// Zero window still reads sensibly
	zero := NewRateLimitError(0)
	if zero.Error() == "" {
		t.Error("Error() is empty for zero retry window")
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectionError("connect", "ws://127.0.0.1:12345", cause)

	if !IsConnectionError(err) {
		t.Error("IsConnectionError() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
	if !strings.Contains(err.Error(), "ws://127.0.0.1:12345") {
		t.Errorf("Error() = %q, want URL mentioned", err.Error())
	}

	// Wrapped further it is still recognized
	wrapped := fmt.Errorf("initialize: %w", err)
	if !IsConnectionError(wrapped) {
		t.Error("IsConnectionError() should see through wrapping")
	}
}

func TestNotFoundError(t *testing.T) {
	indexed := NewNotFoundError(5)
	if !IsNotFoundError(indexed) {
		t.Error("IsNotFoundError() = false, want true")
	}
	if !strings.Contains(indexed.Error(), "5") {
		t.Errorf("Error() = %q, want index mentioned", indexed.Error())
	}

	noActive := NewNoActiveDeviceError()
	if !IsNotFoundError(noActive) {
		t.Error("IsNotFoundError() = false for no-active-device, want true")
	}
	if noActive.Index != -1 {
		t.Errorf("Index = %d, want -1", noActive.Index)
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewCommandError("vibrate", "Test Device", cause)

	if !IsCommandError(err) {
		t.Error("IsCommandError() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}
	if !strings.Contains(err.Error(), "Test Device") {
		t.Errorf("Error() = %q, want device mentioned", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("speed", 1.5, "must be between 0.0 and 1.0")

	if !IsValidationError(err) {
		t.Error("IsValidationError() = false, want true")
	}
	if !strings.Contains(err.Error(), "speed") {
		t.Errorf("Error() = %q, want field mentioned", err.Error())
	}
}

func TestErrorTypesAreDistinct(t *testing.T) {
	connErr := NewConnectionError("connect", "", errors.New("refused"))
	if IsCommandError(connErr) {
		t.Error("ConnectionError should not match IsCommandError")
	}
	if IsNotFoundError(connErr) {
		t.Error("ConnectionError should not match IsNotFoundError")
	}

	cmdErr := NewCommandError("stop", "", errors.New("closed"))
	if IsConnectionError(cmdErr) {
		t.Error("CommandError should not match IsConnectionError")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation error",
			err:        NewValidationError("speed", "abc", "not a number"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_error",
		},
		{
			name:       "not found error",
			err:        NewNotFoundError(3),
			wantStatus: http.StatusNotFound,
			wantCode:   "device_not_found",
		},
		{
			name:       "no active device",
			err:        NewNoActiveDeviceError(),
			wantStatus: http.StatusNotFound,
			wantCode:   "device_not_found",
		},
		{
			name:       "rate limit error",
			err:        NewRateLimitError(time.Second),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "rate_limited",
		},
		{
			name:       "connection error",
			err:        NewConnectionError("connect", "ws://x", errors.New("refused")),
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_connection_error",
		},
		{
			name:       "command error",
			err:        NewCommandError("vibrate", "device", errors.New("closed")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "command_failed",
		},
		{
			name:       "unknown error",
			err:        errors.New("something else"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
		{
			name:       "wrapped connection error",
			err:        fmt.Errorf("initialize: %w", NewConnectionError("connect", "", errors.New("refused"))),
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_connection_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := HTTPStatus(tt.err)
			if status != tt.wantStatus {
				t.Errorf("HTTPStatus() status = %d, want %d", status, tt.wantStatus)
			}
			if code != tt.wantCode {
				t.Errorf("HTTPStatus() code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	// Sentinels survive wrapping into the structured types
	err := NewConnectionError("scan", "", ErrNotConnected)
	if !errors.Is(err, ErrNotConnected) {
		t.Error("errors.Is() should find ErrNotConnected through ConnectionError")
	}
}
