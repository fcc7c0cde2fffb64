package mpesa

import (
	"errors"
	"fmt"
)

// ErrInvalidPhone is returned when a phone number does not match any of
// the accepted local formats.
var ErrInvalidPhone = errors.New("invalid phone number format")

// ErrInvalidAmount is returned for non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// AuthError wraps failures to obtain a bearer token from the gateway.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError is a structured rejection from the push or query endpoint.
// Code is the gateway's own error code; the query poller uses it to tell
// "request not yet processed" apart from terminal failures.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}
