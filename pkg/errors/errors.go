package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	// KindTransient covers network failures, timeouts and upstream rate
	// limits. Safe to retry immediately a bounded number of times.
	KindTransient Kind = "transient"
	// KindAuth marks fulfillment-platform session failures. The session must
	// be re-established before the action itself is retried.
	KindAuth Kind = "auth"
	// KindNotFound marks a matcher miss after the page cap. A normal outcome;
	// a later run may find the transaction once it appears.
	KindNotFound Kind = "not_found"
	// KindSurfaceDrift marks an expected interaction point missing from the
	// platform surface. Retries are unlikely to help on their own.
	KindSurfaceDrift Kind = "surface_drift"
	// KindDuplicateRisk marks an attempt whose external outcome is unknown.
	// The next attempt must verify external state before acting.
	KindDuplicateRisk Kind = "duplicate_risk"
	// KindStore marks a record-store failure. Fatal to the current run.
	KindStore Kind = "store"

	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// AppError is an error carrying a classification kind.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Transient(message string, err error) *AppError {
	return New(KindTransient, message, err)
}

func Auth(message string, err error) *AppError {
	return New(KindAuth, message, err)
}

func NotFound(message string) *AppError {
	return New(KindNotFound, message, nil)
}

func SurfaceDrift(message string, err error) *AppError {
	return New(KindSurfaceDrift, message, err)
}

func DuplicateRisk(message string, err error) *AppError {
	return New(KindDuplicateRisk, message, err)
}

func Store(message string, err error) *AppError {
	return New(KindStore, message, err)
}

func BadRequest(message string, err error) *AppError {
	return New(KindBadRequest, message, err)
}

func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, message, nil)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message, nil)
}

func Internal(err error) *AppError {
	return New(KindInternal, "internal error", err)
}

// KindOf extracts the classification of err, unwrapping as needed.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRecordFailure reports whether an error is a per-record failure that goes
// onto the retry ladder, as opposed to a store failure that aborts the run.
func IsRecordFailure(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindAuth, KindNotFound, KindSurfaceDrift, KindDuplicateRisk:
		return true
	default:
		return false
	}
}
