// Package common defines shared constants and sentinel errors used across
// the clouddrive server. Callers should use errors.Is to match these values
// and HTTPStatus to turn any error into a response code.
package common

import (
	"errors"
	"net/http"
	"time"
)

// CodedError is an error that carries the HTTP status it should be reported
// with. Sentinels below are CodedErrors so they survive %w wrapping.
type CodedError struct {
	Code int
	Msg  string
	err  error
}

func (e *CodedError) Error() string {
	if e.err != nil {
		return e.Msg + ": " + e.err.Error()
	}
	return e.Msg
}

func (e *CodedError) Unwrap() error { return e.err }

// StatusCode returns the attached status code.
func (e *CodedError) StatusCode() int { return e.Code }

func newCoded(code int, msg string) *CodedError {
	return &CodedError{Code: code, Msg: msg}
}

var (
	// Repository-level errors.
	ErrorNotFound = newCoded(http.StatusNotFound, "not found")

	// Service-level errors.
	ErrorInternal     = newCoded(http.StatusInternalServerError, "internal error")
	ErrorUnauthorized = newCoded(http.StatusUnauthorized, "unauthorized")
	ErrorForbidden    = newCoded(http.StatusForbidden, "forbidden")
	ErrorBadInput     = newCoded(http.StatusBadRequest, "bad input")

	// Token lifecycle errors.
	ErrInvalidToken   = newCoded(http.StatusUnauthorized, "invalid token")
	ErrTokenExpired   = newCoded(http.StatusUnauthorized, "token expired")
	ErrClientMismatch = newCoded(http.StatusUnauthorized, "client mismatch")

	// Folder locks.
	ErrFolderLocked = newCoded(http.StatusUnauthorized, "folder is locked")

	// Storage errors.
	ErrRangeNotSatisfiable = newCoded(http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
	ErrPayloadTooLarge     = newCoded(http.StatusRequestEntityTooLarge, "payload too large")
	ErrInsufficientStorage = newCoded(http.StatusInsufficientStorage, "insufficient storage")
	ErrBackendFailure      = newCoded(http.StatusInternalServerError, "backend failure")
)

// WithCode wraps err so that HTTPStatus reports code for it.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Msg: http.StatusText(code), err: err}
}

// lockedError keeps errors.Is(err, ErrFolderLocked) working while carrying the date.
type lockedError struct {
	until time.Time
}

func (e *lockedError) Error() string {
	return "The folder it is locked until: " + e.until.UTC().Format(time.RFC3339)
}

func (e *lockedError) Unwrap() error { return ErrFolderLocked }

// ErrFolderLockedUntil reports a folder lock that expires at until.
func ErrFolderLockedUntil(until time.Time) error {
	return &lockedError{until: until}
}

// LockedUntil extracts the lock expiry from an error produced by ErrFolderLockedUntil.
func LockedUntil(err error) (time.Time, bool) {
	var le *lockedError
	if errors.As(err, &le) {
		return le.until, true
	}
	return time.Time{}, false
}

// HTTPStatus maps an error to a response code. Errors without a code become
// 500; codes in [400,599] are used verbatim; anything else becomes 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ce *CodedError
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	if ce.Code >= 400 && ce.Code <= 599 {
		return ce.Code
	}
	return http.StatusInternalServerError
}
