package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMalformedPayload is returned when a 2xx response body is not a search result.
	ErrMalformedPayload = errors.New("malformed search payload")

	// ErrUnexpectedStatus is returned for non-retryable HTTP statuses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// TransientError describes one recoverable attempt (rate limited, server
// error, timeout). It never escapes FetchPage on its own; once retries are
// exhausted it is kept as the cause of the TerminalError.
type TransientError struct {
	StatusCode int
	ErrorClass ErrorClass
	Delay      time.Duration
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient %s error (status %d, retry in %s): %v",
			e.ErrorClass, e.StatusCode, e.Delay, e.Err)
	}
	return fmt.Sprintf("transient %s error (status %d, retry in %s)",
		e.ErrorClass, e.StatusCode, e.Delay)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// TerminalError is the only error FetchPage returns. It ends the current
// partition; the partition can be resumed from its checkpoint later.
type TerminalError struct {
	Partition  string
	Offset     int
	StatusCode int
	ErrorClass ErrorClass
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	msg := fmt.Sprintf("fetch %s at offset %d failed after %d attempt(s)", e.Partition, e.Offset, e.Attempts)
	if e.ErrorClass != "" {
		msg += fmt.Sprintf(" [%s", e.ErrorClass)
		if e.StatusCode > 0 {
			msg += fmt.Sprintf(", status %d", e.StatusCode)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TerminalError) Unwrap() error {
	return e.Err
}
