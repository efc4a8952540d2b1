// Package errors carries the ledger's typed error codes and how each one is
// surfaced over HTTP and to event consumers.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Ledger rule violations. None of them succeed on retry.
	CodeSettlementUnderflow Code = "SETTLEMENT_UNDERFLOW"
	CodeBalanceUnderflow    Code = "BALANCE_UNDERFLOW"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeNoVerifiedAccount   Code = "NO_VERIFIED_ACCOUNT"
)

// Metadata describes how a code is surfaced. Retryable means the same
// request may succeed later without changes.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = true
	withDetails = true
)

func meta(status int, retry, details bool, public string) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retry, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, false, withDetails, "validation failed"),
	CodeUnauthorized:  meta(http.StatusUnauthorized, false, false, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, false, false, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, false, false, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, retryable, false, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, false, withDetails, "state transition disallowed"),
	CodeIdempotency:   meta(http.StatusConflict, false, withDetails, "idempotency key reused"),
	CodeRateLimit:     meta(http.StatusTooManyRequests, false, false, "rate limit exceeded"),
	CodeInternal:      meta(http.StatusInternalServerError, retryable, false, "internal server error"),
	CodeDependency:    meta(http.StatusServiceUnavailable, retryable, withDetails, "dependency unavailable"),

	CodeSettlementUnderflow: meta(http.StatusUnprocessableEntity, false, withDetails, "settlement would produce negative vendor earnings"),
	CodeBalanceUnderflow:    meta(http.StatusUnprocessableEntity, false, withDetails, "balance would become negative"),
	CodeInsufficientBalance: meta(http.StatusUnprocessableEntity, false, withDetails, "insufficient available balance"),
	CodeNoVerifiedAccount:   meta(http.StatusUnprocessableEntity, false, false, "no verified default bank account"),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// WithDetail adds one key to map details, creating the map when empty.
// Non-map details are replaced.
func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	m, ok := e.details.(map[string]any)
	if !ok {
		m = make(map[string]any, 1)
	}
	m[key] = value
	e.details = m
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether err may succeed if tried again. Untyped errors
// are assumed transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}
