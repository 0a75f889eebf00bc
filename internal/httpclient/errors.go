package httpclient

import (
	"errors"
	"fmt"
	"net"
)

// TransportError is a network-level failure (timeout, DNS, connection reset)
// that occurred before any HTTP status was received. Retryable reports whether
// the failure looks transient so callers can decide on backoff.
type TransportError struct {
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a rejected login, or a 401 that survived the one forced
// refresh-and-retry. The caller decides whether to abort or re-onboard.
type AuthError struct {
	Status int
	Body   []byte
}

func (e *AuthError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("authentication rejected (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("authentication rejected (status %d)", e.Status)
}

// APIError is any other non-2xx response, surfaced verbatim so callers can
// branch on vendor status codes. Retryable is set for 5xx responses.
type APIError struct {
	Status    int
	Body      []byte
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("expander returned %d: %s", e.Status, e.Body)
}

// RetryableNetErr reports whether a transport failure is likely transient.
func RetryableNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
