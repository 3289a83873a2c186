package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ProviderError reports a failed backend call. Transient errors (timeouts,
// 429, 5xx) may be retried by the dispatcher; fatal ones (bad credentials,
// unknown model) must not be.
type ProviderError struct {
	Provider  string
	Transient bool
	Status    int
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s error (status %d): %v", e.Provider, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retriable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// transientStatus classifies HTTP status codes. 408/429 and all 5xx are
// worth retrying; everything else in the 4xx range is a caller bug or a
// credential problem.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// wrapTransportError converts low-level transport failures into a
// ProviderError. Timeouts and connection resets are transient.
func wrapTransportError(provider string, err error) *ProviderError {
	transient := true
	if errors.Is(err, context.Canceled) {
		transient = false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		// Non-timeout net errors (refused, DNS) are still usually
		// recoverable once the backend comes back.
		transient = true
	}
	return &ProviderError{Provider: provider, Transient: transient, Err: err}
}
