// Package apperr defines the machine-readable error taxonomy returned by the
// access-control and ledger services.
package apperr

import (
	"errors"
	"fmt"
	"log"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	Unauthenticated         Code = "unauthenticated"
	MalformedToken          Code = "malformed_token"
	SignatureInvalid        Code = "signature_invalid"
	Expired                 Code = "expired"
	Revoked                 Code = "revoked"
	Forbidden               Code = "forbidden"
	HierarchyDenied         Code = "hierarchy_denied"
	SelfActionDenied        Code = "self_action_denied"
	LastSuperAdminProtected Code = "last_super_admin_protected"
	AccountBlocked          Code = "account_blocked"
	InvalidCredentials      Code = "invalid_credentials"
	NotFound                Code = "not_found"
	OutOfRange              Code = "out_of_range"
	FutureDateRejected      Code = "future_date_rejected"
	ImmutableConflict       Code = "immutable_conflict"
	OwnershipDenied         Code = "ownership_denied"
	Conflict                Code = "conflict"
	Validation              Code = "validation"
	AlreadyExists           Code = "already_exists"
	Internal                Code = "internal"
)

var statuses = map[Code]int{
	Unauthenticated:         http.StatusUnauthorized,
	MalformedToken:          http.StatusUnauthorized,
	SignatureInvalid:        http.StatusUnauthorized,
	Expired:                 http.StatusUnauthorized,
	Revoked:                 http.StatusUnauthorized,
	InvalidCredentials:      http.StatusUnauthorized,
	Forbidden:               http.StatusForbidden,
	HierarchyDenied:         http.StatusForbidden,
	OwnershipDenied:         http.StatusForbidden,
	AccountBlocked:          http.StatusForbidden,
	SelfActionDenied:        http.StatusBadRequest,
	LastSuperAdminProtected: http.StatusBadRequest,
	OutOfRange:              http.StatusBadRequest,
	FutureDateRejected:      http.StatusBadRequest,
	Validation:              http.StatusBadRequest,
	NotFound:                http.StatusNotFound,
	ImmutableConflict:       http.StatusConflict,
	AlreadyExists:           http.StatusConflict,
	Conflict:                http.StatusConflict,
	Internal:                http.StatusInternalServerError,
}

// HTTPStatus returns the status code a transport should use for c.
func (c Code) HTTPStatus() int {
	if s, ok := statuses[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a structured failure. Details are rendered alongside the message.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinel comparisons work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == "" && t.Err == nil
}

// New builds an error with a message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf builds an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Sentinel returns a bare error usable as an errors.Is target.
func Sentinel(code Code) error { return &Error{Code: code} }

// CodeOf extracts the code of err, defaulting to Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Body renders err as an HTTP status and JSON object. Unknown errors are
// logged and reported as a generic internal failure.
func Body(err error) (int, map[string]any) {
	var e *Error
	if !errors.As(err, &e) {
		log.Printf("internal error: %v", err)
		return http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error", "code": Internal}
	}
	if e.Code == Internal {
		log.Printf("internal error: %v", e)
	}
	body := map[string]any{"ok": false, "error": e.Message, "code": e.Code}
	for k, v := range e.Details {
		body[k] = v
	}
	return e.Code.HTTPStatus(), body
}
