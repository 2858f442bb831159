package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure kinds surfaced by the engine. Every
// error returned across a package boundary wraps exactly one of these so
// callers can branch with errors.Is without string matching.
var (
	// ErrUnauthenticated: no usable session. The caller should redirect
	// to login.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden: valid session, insufficient role.
	ErrForbidden = errors.New("authorization denied")
	// ErrValidation: malformed input caught before any network call.
	ErrValidation = errors.New("validation rejected")
	// ErrRejected: the backend returned an explicit negative business
	// result (invalid coupon, empty cart, declined payment).
	ErrRejected = errors.New("rejected by backend")
	// ErrTransient: network or timeout failure. Retrying may help.
	ErrTransient = errors.New("transient failure")
	// ErrUnrecoverable: persisted state is missing or undecodable.
	ErrUnrecoverable = errors.New("unrecoverable state")
)

// AppError is a classified error with a stable code, a human-readable
// message, and an HTTP status for the local API surface.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthenticated creates an error for a missing or expired session.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthenticated,
	}
}

// Forbidden creates an error for a role that may not perform the action.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "AUTHORIZATION_DENIED",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Invalid creates an error for input rejected before reaching the network.
func Invalid(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_REJECTED",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrValidation,
	}
}

// Rejected creates an error for an explicit negative result from the
// backend. This is a normal business outcome, not a fault.
func Rejected(message string) *AppError {
	return &AppError{
		Code:    "REMOTE_REJECTED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrRejected,
	}
}

// Transient creates an error for a network or timeout failure.
func Transient(message string, err error) *AppError {
	return &AppError{
		Code:    "TRANSIENT",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrTransient, err),
	}
}

// Unrecoverable creates an error for lost or undecodable persisted state.
func Unrecoverable(message string, err error) *AppError {
	e := &AppError{
		Code:    "UNRECOVERABLE",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrUnrecoverable,
	}
	if err != nil {
		e.Err = fmt.Errorf("%w: %w", ErrUnrecoverable, err)
	}
	return e
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Retryable reports whether retrying the operation is meaningful for the
// user. Only transient failures qualify; business rejections and auth
// failures will not change on retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Message returns the human-readable message for an error. AppError
// messages are written for end users; anything else falls back to
// Error().
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
