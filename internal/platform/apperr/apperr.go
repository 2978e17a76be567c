// Package apperr defines the reason codes surfaced by the scheduling service
// and their HTTP mapping. Every user-visible failure is a Code plus a
// human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable failure reason.
type Code string

const (
	CodeInvalidRange            Code = "INVALID_RANGE"
	CodeUnknownHospital         Code = "UNKNOWN_HOSPITAL"
	CodeUnknownPatient          Code = "UNKNOWN_PATIENT"
	CodeUnknownProfessional     Code = "UNKNOWN_PROFESSIONAL"
	CodeSlotFull                Code = "SLOT_FULL"
	CodeProfessionalNotEligible Code = "PROFESSIONAL_NOT_ELIGIBLE"
	CodeInvalidTransition       Code = "INVALID_TRANSITION"
	CodeStorageConflict         Code = "STORAGE_CONFLICT"
	CodeNotFound                Code = "NOT_FOUND"
	CodeValidation              Code = "VALIDATION_FAILED"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeTimeout                 Code = "TIMEOUT"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeInternal                Code = "INTERNAL"
)

// Error carries a Code, a message safe to show to callers, and an optional
// underlying cause that is never serialized.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so the package-level sentinels
// work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidRange            = &Error{Code: CodeInvalidRange}
	ErrUnknownHospital         = &Error{Code: CodeUnknownHospital}
	ErrUnknownPatient          = &Error{Code: CodeUnknownPatient}
	ErrUnknownProfessional     = &Error{Code: CodeUnknownProfessional}
	ErrSlotFull                = &Error{Code: CodeSlotFull}
	ErrProfessionalNotEligible = &Error{Code: CodeProfessionalNotEligible}
	ErrInvalidTransition       = &Error{Code: CodeInvalidTransition}
	ErrStorageConflict         = &Error{Code: CodeStorageConflict}
	ErrNotFound                = &Error{Code: CodeNotFound}
	ErrValidation              = &Error{Code: CodeValidation}
)

func newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidRange(format string, args ...interface{}) *Error {
	return newf(CodeInvalidRange, format, args...)
}

func UnknownHospital(id int64) *Error {
	return newf(CodeUnknownHospital, "hospital %d does not exist", id)
}

func UnknownPatient(id int64) *Error {
	return newf(CodeUnknownPatient, "patient %d does not exist", id)
}

func UnknownProfessional(id int64) *Error {
	return newf(CodeUnknownProfessional, "professional %d does not exist", id)
}

func SlotFull(format string, args ...interface{}) *Error {
	return newf(CodeSlotFull, format, args...)
}

func ProfessionalNotEligible(id int64, status string) *Error {
	return newf(CodeProfessionalNotEligible, "professional %d is %s and cannot be assigned", id, status)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return newf(CodeInvalidTransition, format, args...)
}

// StorageConflict wraps a lost race on an atomic update. Callers retry the
// whole operation.
func StorageConflict(cause error, format string, args ...interface{}) *Error {
	e := newf(CodeStorageConflict, format, args...)
	e.Err = cause
	return e
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(CodeNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newf(CodeValidation, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(CodeForbidden, format, args...)
}

// Internal hides cause from the caller while keeping it for logs.
func Internal(cause error, msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg, Err: cause}
}

// CodeOf returns the Code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Code to the response status used by the API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRange, CodeValidation:
		return http.StatusBadRequest
	case CodeUnknownHospital, CodeUnknownPatient, CodeUnknownProfessional, CodeProfessionalNotEligible:
		return http.StatusUnprocessableEntity
	case CodeSlotFull, CodeInvalidTransition:
		return http.StatusConflict
	case CodeStorageConflict:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus picks a Code for errors raised directly as HTTP statuses
// (router 404s, binder failures, middleware rejections).
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeStorageConflict
	case http.StatusGatewayTimeout:
		return CodeTimeout
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
