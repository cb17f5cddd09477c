package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind string

const (
	KindValidation          Kind = "validation"
	KindAuthentication      Kind = "authentication"
	KindAuthorization       Kind = "authorization"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindInsufficientSupply  Kind = "insufficient_supply"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindPaymentVerification Kind = "payment_verification"
	KindInternal            Kind = "internal"
)

// Error is an application error carrying a kind, a public message and an optional cause
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrAuthorization       = &Error{Kind: KindAuthorization}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrInsufficientSupply  = &Error{Kind: KindInsufficientSupply}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrPaymentVerification = &Error{Kind: KindPaymentVerification}
	ErrInternal            = &Error{Kind: KindInternal}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// ValidationFields reports per-field validation failures
func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func InvalidState(format string, args ...any) *Error { return newf(KindInvalidState, format, args...) }

func InsufficientSupply(format string, args ...any) *Error {
	return newf(KindInsufficientSupply, format, args...)
}

func InsufficientBalance(format string, args ...any) *Error {
	return newf(KindInsufficientBalance, format, args...)
}

func PaymentVerification(format string, args ...any) *Error {
	return newf(KindPaymentVerification, format, args...)
}

// Wrap marks an unexpected error as internal; nil and existing application errors pass through
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to its response status
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindPaymentVerification:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindInsufficientSupply, KindInsufficientBalance:
		return http.StatusConflict
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to clients
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal && ae.Message != "" {
		return ae.Message
	}
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	return string(KindOf(err))
}

// FieldsOf returns validation field errors, if any
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}
