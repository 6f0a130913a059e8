package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by Send when there is neither text nor an attachment
	ErrInvalidInput = errors.New("message is empty and has no attachment")
	// ErrConcurrentSend is returned when a request is already in flight
	ErrConcurrentSend = errors.New("a request is already in flight")
	// ErrNoActiveRequest is returned by Cancel when nothing is in flight
	ErrNoActiveRequest = errors.New("no active request")
	// ErrCanceled is carried by Canceled settlements
	ErrCanceled = errors.New("response canceled")
	// ErrNotConfigured is wrapped by the ConfigurationError reported when no sender is configured
	ErrNotConfigured = errors.New("not configured")
)

// ConfigurationError reports a missing credential. It's delivered as a Failed settlement, never returned from Send.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return ErrNotConfigured
}

// TransportError describes a failed outbound call. StatusCode is zero for network-level failures.
type TransportError struct {
	StatusCode int
	Message    string // Message reported by the remote API, if any
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("transport error: %s", msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
