package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type CommissionError struct {
	Message string
	Cause   error
}

func (e *CommissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommissionError) Unwrap() error {
	return e.Cause
}

// Distinct error types, matched with errors.As.
type ConnectionError struct{ CommissionError }    // transport failed to open or dropped
type AuthError struct{ CommissionError }          // remote rejected the token
type NotAuthorizedError struct{ CommissionError } // query before authorize completed
type NotConnectedError struct{ CommissionError }  // send on unopened or closed transport
type ProtocolError struct{ CommissionError }      // reply does not match the request it answers

// TimeoutError carries the request that went unanswered.
type TimeoutError struct {
	CommissionError
	RequestID int64
	Timeout   time.Duration
}

// RemoteError is an explicit error payload returned by the platform.
type RemoteError struct {
	CommissionError
	Code    string
	MsgType string
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewConnectionError(msg string, cause error) *ConnectionError {
	return &ConnectionError{CommissionError{Message: msg, Cause: cause}}
}

func NewAuthError(msg string, cause error) *AuthError {
	return &AuthError{CommissionError{Message: msg, Cause: cause}}
}

func NewNotAuthorizedError(op string) *NotAuthorizedError {
	return &NotAuthorizedError{CommissionError{Message: fmt.Sprintf("%s requires an authorized session", op)}}
}

func NewNotConnectedError(msg string) *NotConnectedError {
	return &NotConnectedError{CommissionError{Message: msg}}
}

func NewProtocolError(msg string, cause error) *ProtocolError {
	return &ProtocolError{CommissionError{Message: msg, Cause: cause}}
}

func NewTimeoutError(id int64, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		CommissionError: CommissionError{Message: fmt.Sprintf("request %d timed out after %v", id, timeout)},
		RequestID:       id,
		Timeout:         timeout,
	}
}

func NewRemoteError(code, message, msgType string) *RemoteError {
	if message == "" {
		message = "remote error"
	}
	return &RemoteError{
		CommissionError: CommissionError{Message: message},
		Code:            code,
		MsgType:         msgType,
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// IsRetryable reports whether trying again could change the outcome. A
// rejected token stays rejected.
func IsRetryable(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// RetryWithBackoff attempts fn up to maxRetries times with exponential backoff,
// stopping early on non-retryable errors or context cancellation.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 || !IsRetryable(err) {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", operation, attempt+1, maxRetries, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
