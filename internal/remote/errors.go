package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed classification of remote failures. Callers branch on
// the kind, never on raw status codes or transport error types.
type Kind string

const (
	// KindNetwork covers timeouts, connection failures and cancellation.
	KindNetwork Kind = "network"
	// KindServer covers 5xx responses and 404s.
	KindServer Kind = "server"
	// KindUnauthorized covers 401/403 after the refresh path is exhausted.
	KindUnauthorized Kind = "unauthorized"
	// KindValidation covers 400/422 and carries per-field messages.
	KindValidation Kind = "validation"
)

// Error is the single error type produced by the remote client.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("remote %s error: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("remote %s error: status %d", e.Kind, e.Status)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err wraps a remote Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// errorBody is the error response shape the API returns.
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func classifyStatus(status int, body []byte) *Error {
	var parsed errorBody
	// A non-JSON error body still classifies; the message is just empty.
	_ = json.Unmarshal(body, &parsed)

	e := &Error{
		Status:  status,
		Message: parsed.Message,
		Fields:  parsed.Errors,
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}
	return e
}

// classifyTransport covers everything that never produced a response:
// timeouts, refused connections, cancellation, an open circuit breaker.
func classifyTransport(err error) *Error {
	return &Error{Kind: KindNetwork, cause: err}
}
