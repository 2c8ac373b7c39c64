package responses

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when a request was abandoned because its context
// was cancelled or timed out. The context error is wrapped alongside it, so
// errors.Is(err, context.Canceled) also holds
var ErrInterrupted = errors.New("request interrupted")

// TransportError means the request could not be sent or the response could
// not be read
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned when the server answered with a non-2xx status. Body
// holds whatever the server sent back
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unsuccessful HTTP response (%d): %v", e.StatusCode, e.Body)
}

// ParseError is returned when a successful response does not have the expected
// shape. Field is empty when the whole body was rejected
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("could not parse response: %v", e.Err)
	}

	return fmt.Sprintf("could not parse response field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// interrupted joins ErrInterrupted with the context error that caused it
func interrupted(ctxErr error) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
}
