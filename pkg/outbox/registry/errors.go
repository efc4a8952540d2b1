// Package registry maps outbox rows and inbound order events to their typed
// payloads. Anything that can never decode is reported as NonRetryableError
// so publishers dead-letter it and consumers ack it.
package registry

import "errors"

// NonRetryableError marks a failure that retrying will not fix.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable reports whether err wraps a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}
