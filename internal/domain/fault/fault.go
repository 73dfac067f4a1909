package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable failure classification.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeTenantDenied      Code = "TENANT_DENIED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeIllegalState      Code = "ILLEGAL_STATE"
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodeClaimConflict     Code = "CLAIM_CONFLICT"
	CodeUndoExpired       Code = "UNDO_EXPIRED"
	CodeChainConflict     Code = "CHAIN_CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is the explicit result type carried across every public operation boundary.
// Detail is structured context safe to return to the caller.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches one structured detail entry and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = map[string]any{}
	}
	e.Detail[key] = value
	return e
}

// As extracts a *Error from an error chain, or wraps unknown errors as INTERNAL_ERROR.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(CodeInternal, "internal error", err)
}

// HTTPStatus maps a code to its contract status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeUndoExpired:
		return http.StatusBadRequest
	case CodeTenantDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIllegalState, CodeIllegalTransition, CodeClaimConflict, CodeChainConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is allows errors.Is comparison against a bare code sentinel created by New(code, "").
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return e.Code == fe.Code
}
