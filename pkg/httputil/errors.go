package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind is the machine-readable category of an API error
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindBadRequest      Kind = "bad_request"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInfrastructure  Kind = "infrastructure"
)

// APIError is a terminal request outcome with a machine-readable kind.
// The Err field holds the underlying cause for server-side logging; it is
// never serialized to the caller.
type APIError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *APIError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code
func (e *APIError) Status() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Unauthenticated creates a 401 error (missing/invalid/expired credential)
func Unauthenticated(message string) *APIError {
	return &APIError{Kind: KindUnauthenticated, Message: message}
}

// BadRequest creates a 400 error (missing or malformed request input)
func BadRequest(message string) *APIError {
	return &APIError{Kind: KindBadRequest, Message: message}
}

// Forbidden creates a 403 error (authenticated but insufficient role)
func Forbidden(message string) *APIError {
	return &APIError{Kind: KindForbidden, Message: message}
}

// NotFound creates a 404 error (resource missing or outside the claimed project)
func NotFound(message string) *APIError {
	return &APIError{Kind: KindNotFound, Message: message}
}

// Conflict creates a 409 error
func Conflict(message string) *APIError {
	return &APIError{Kind: KindConflict, Message: message}
}

// Infrastructure creates a 500 error wrapping a dependency failure. The
// underlying error is kept for logging; callers receive only the message.
func Infrastructure(message string, err error) *APIError {
	return &APIError{Kind: KindInfrastructure, Message: message, Err: err}
}

// errorBody is the wire shape of every rejection
type errorBody struct {
	Error   string            `json:"error"`
	Kind    Kind              `json:"kind"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteAPIError writes an error response. *APIError values map to their kind
// and status; anything else is treated as an infrastructure error with a
// generic message so internal detail never leaks to the caller.
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = &APIError{Kind: KindInfrastructure, Message: "internal error", Err: err}
	}

	message := apiErr.Message
	if apiErr.Kind == KindInfrastructure {
		// Dependency failures are logged server-side with full detail
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	json.NewEncoder(w).Encode(errorBody{
		Error: message,
		Kind:  apiErr.Kind,
	})
}

// WriteErrorMessage writes a JSON error response with an explicit status code
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
