package models

import (
	"errors"
	"fmt"
)

// NotAuthenticated is the message shown when no session is available.
const NotAuthenticated = "Not authenticated"

// AuthError reports a missing or invalid session.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return NotAuthenticated
	}
	return e.Msg
}

// ValidationError reports a request that was rejected before any remote call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UpstreamError reports a failed call to the storage provider. Status is the
// provider's HTTP status when one is known.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrNotAuthenticated is the canonical AuthError.
var ErrNotAuthenticated = &AuthError{}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps err as an UpstreamError for op. Errors that are already
// part of the taxonomy are returned unchanged.
func Upstream(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	if IsAuth(err) || IsValidation(err) {
		return err
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Status: status, Err: err}
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsNotFound reports whether err is an UpstreamError carrying a 404.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == 404
}
