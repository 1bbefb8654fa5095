// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the haptic bridge.
//
// Every caller-invoked failure in the bridge surfaces as one of the kinds
// defined here, so API clients can branch on a stable status/code pair
// instead of parsing free-text messages.
//
//   - RateLimitError:  connection retry attempted inside the backoff window
//   - ConnectionError: the Intiface server cannot be reached or used
//   - NotFoundError:   no active device, or a device index out of range
//   - CommandError:    a dispatched device command failed in transit
//   - ValidationError: caller-supplied parameter out of contract
//
// All types support errors.As/errors.Is inspection and wrap their
// underlying cause.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RateLimitError indicates a connection attempt was made too soon after a
// prior attempt. Callers must wait and retry.
type RateLimitError struct {
	RetryAfter time.Duration // remaining backoff window
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("connection attempt too recent, retry in %s", e.RetryAfter.Round(time.Millisecond))
	}
	return "connection attempt too recent, please wait a moment"
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{RetryAfter: retryAfter}
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// ConnectionError represents a failure to reach or use the Intiface server.
type ConnectionError struct {
	Op   string // Operation being performed (e.g., "connect", "start scanning")
	Addr string // Websocket URL (if applicable)
	Err  error  // Underlying error
}

func (e *ConnectionError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("intiface %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("intiface %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("intiface %s failed", e.Op)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new connection error.
func NewConnectionError(op string, addr string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Addr: addr, Err: err}
}

// IsConnectionError checks if an error is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// NotFoundError indicates that no active device exists or a requested device
// index is out of range.
type NotFoundError struct {
	Index int   // Requested device index, -1 when no active device exists
	Err   error // Underlying error (optional)
}

func (e *NotFoundError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("device index %d out of range", e.Index)
	}
	return "no device found or connected"
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates an error for an out-of-range device index.
func NewNotFoundError(index int) *NotFoundError {
	return &NotFoundError{Index: index}
}

// NewNoActiveDeviceError creates an error for a missing active device.
func NewNoActiveDeviceError() *NotFoundError {
	return &NotFoundError{Index: -1}
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// CommandError represents a device command that failed during transmission.
type CommandError struct {
	Op     string // Command being dispatched (e.g., "vibrate", "stop")
	Device string // Device name (if known)
	Err    error  // Underlying error
}

func (e *CommandError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("command %s (device=%s): %v", e.Op, e.Device, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("command %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("command %s failed", e.Op)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(op string, device string, err error) *CommandError {
	return &CommandError{Op: op, Device: device, Err: err}
}

// IsCommandError checks if an error is a CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// ValidationError represents a request parameter validation error.
type ValidationError struct {
	Field  string // Field that failed validation
	Value  any    // Invalid value
	Reason string // Why validation failed
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sentinel errors for common conditions
var (
	// ErrNoClient indicates no protocol client handle exists
	ErrNoClient = errors.New("client not initialized")

	// ErrNotConnected indicates the client handle is not connected
	ErrNotConnected = errors.New("not connected to intiface")

	// ErrPositionUnsupported indicates an actuator does not accept a
	// positional command
	ErrPositionUnsupported = errors.New("actuator does not support position")

	// ErrConnectionClosed indicates the websocket connection was closed
	ErrConnectionClosed = errors.New("connection closed")
)

// HTTPStatus maps an error to its HTTP status and stable error code.
// Unknown errors map to 500/internal_error.
func HTTPStatus(err error) (int, string) {
	switch {
	case IsValidationError(err):
		return http.StatusBadRequest, "validation_error"
	case IsNotFoundError(err):
		return http.StatusNotFound, "device_not_found"
	case IsRateLimitError(err):
		return http.StatusTooManyRequests, "rate_limited"
	case IsConnectionError(err):
		return http.StatusBadGateway, "upstream_connection_error"
	case IsCommandError(err):
		return http.StatusInternalServerError, "command_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
