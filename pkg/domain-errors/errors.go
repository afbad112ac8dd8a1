// Package domainerrors carries the error taxonomy shared by services and
// transports. A Code doubles as the tag written in error response bodies.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. The string value is the wire tag.
type Code string

const (
	// access control
	CodeUnauthorized Code = "not_authenticated"
	CodeForbidden    Code = "forbidden"

	// client input and sequencing
	CodeNotFound                Code = "not_found"
	CodeValidation              Code = "invalid_data"
	CodeBadRequest              Code = "bad_request"
	CodeMissingParam            Code = "missing_param"
	CodeUnknownAction           Code = "unknown_action"
	CodeInvalidConfirmationCode Code = "invalid_confirmation_code"
	CodeInvalidStatus           Code = "invalid_fr_status"
	CodeMissingPersonID         Code = "missing_person_id"
	CodeConsentsAlreadyCreated  Code = "all_consents_already_created"
	CodeUnsupportedMediaType    Code = "unsupported_media_type"
	CodeConflict                Code = "conflict"
	CodeInvariantViolation      Code = "invariant_violation"
	CodeTooManyRequests         Code = "too_many_requests"

	// oauth2 token endpoint
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidRequest       Code = "invalid_request"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"

	// external dependencies
	CodeGateway           Code = "internal_gateway_error"
	CodeBackendConnection Code = "backend_connection_error"
	CodeBackendClient     Code = "invalid_backend_client"
	CodeTimeout           Code = "timeout"
	CodeInternal          Code = "internal_error"
)

// Error is a classified failure with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost classified error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost classified error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost classified error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
