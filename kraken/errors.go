package kraken

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the two response classes the orchestrator treats
// specially: authentication failures are fatal, rate limits are
// retryable.
var (
	ErrAuth        = errors.New("kraken: authentication rejected")
	ErrRateLimited = errors.New("kraken: rate limited")
)

// TransportError wraps network-level failures (timeouts, connection
// resets, DNS). Retryable.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kraken: transport failure on %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a body that could not be decoded as
// the standard response envelope.
type MalformedResponseError struct {
	Path   string
	Status int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("kraken: malformed response from %s (status %d): %v", e.Path, e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// APIError carries the verbatim error strings from the response
// envelope for errors that are neither auth nor rate-limit class.
type APIError struct {
	Path     string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken: %s: %s", e.Path, strings.Join(e.Messages, "; "))
}

// classifyEnvelope maps the envelope error strings onto the error
// taxonomy. Auth takes precedence over rate limiting.
func classifyEnvelope(path string, messages []string) error {
	for _, m := range messages {
		switch {
		case strings.Contains(m, "Invalid key"),
			strings.Contains(m, "Invalid signature"),
			strings.Contains(m, "Invalid nonce"),
			strings.Contains(m, "Permission denied"):
			return fmt.Errorf("%w: %s", ErrAuth, m)
		}
	}
	for _, m := range messages {
		if strings.Contains(m, "Rate limit exceeded") {
			return fmt.Errorf("%w: %s", ErrRateLimited, m)
		}
	}
	return &APIError{Path: path, Messages: messages}
}
