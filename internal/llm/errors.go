package llm

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from a completion backend.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Backend, e.StatusCode, e.Body)
}

// Unwrap maps server-side failures to ErrBackendUnavailable.
func (e *APIError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests {
		return ErrBackendUnavailable
	}
	return nil
}

// TransportError wraps a failure to reach a backend at all.
func TransportError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, backend, err)
}
