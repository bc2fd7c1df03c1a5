/*
Package apperror defines the error taxonomy shared by the resolution and search
components and its mapping onto HTTP responses.

Components wrap one of the sentinel errors with fmt.Errorf("...: %w", ...) and
callers classify failures with errors.Is. A genuine "no match" is never an error:
lookups return (value, false) and searches return an empty slice.
*/
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks an identifier absent from the graph or index.
	ErrNotFound = errors.New("not found")

	// ErrUnresolved marks a tag whose canonical label could not be chosen.
	ErrUnresolved = errors.New("label unresolved")

	// ErrBackendUnavailable marks a network, timeout or transport failure of the
	// retrieval index or the embedding gateway. It is retryable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSchemaMismatch marks a document or vector that does not fit the index
	// schema. It is fatal for an indexing run.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrBadRequest marks invalid caller input.
	ErrBadRequest = errors.New("bad request")
)

// Error represents an application error with HTTP status and error code.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error.
func (e *Error) Unwrap() error {
	return e.Internal
}

// New creates a new application error.
func New(status int, code, message string) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message}
}

// NewBadRequest creates a 400 error wrapping ErrBadRequest.
func NewBadRequest(message string) *Error {
	return &Error{
		HTTPStatus: http.StatusBadRequest,
		Code:       "bad_request",
		Message:    message,
		Internal:   ErrBadRequest,
	}
}

// Unavailable wraps err as a backend failure unless it already is one.
// Deadline expiry is treated the same way: a timeout is retryable, not a miss.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// Classify maps any error onto an *Error suitable for an HTTP response.
func Classify(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrBadRequest):
		return &Error{HTTPStatus: http.StatusBadRequest, Code: "bad_request", Message: err.Error(), Internal: err}
	case IsRetryable(err):
		return &Error{HTTPStatus: http.StatusServiceUnavailable, Code: "backend_unavailable", Message: "Search backend unavailable", Internal: err}
	case errors.Is(err, ErrSchemaMismatch):
		return &Error{HTTPStatus: http.StatusInternalServerError, Code: "schema_mismatch", Message: "Index schema mismatch", Internal: err}
	case errors.Is(err, ErrNotFound):
		return &Error{HTTPStatus: http.StatusNotFound, Code: "not_found", Message: "Resource not found", Internal: err}
	default:
		return &Error{HTTPStatus: http.StatusInternalServerError, Code: "internal_error", Message: "An internal error occurred", Internal: err}
	}
}
