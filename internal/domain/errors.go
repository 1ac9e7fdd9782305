package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a failure the way the marketplace's shared error
// package does, but using FraudGuard's own vocabulary (spec §7) instead
// of a gRPC-facing one: there is no RPC surface here, only HTTP.
type ErrorType string

const (
	ErrorInputInvalid         ErrorType = "InputInvalid"
	ErrorNotFound             ErrorType = "NotFound"
	ErrorConflict             ErrorType = "Conflict"
	ErrorProviderUnavailable  ErrorType = "ProviderUnavailable"
	ErrorProviderParseError   ErrorType = "ProviderParseError"
	ErrorOverloaded           ErrorType = "Overloaded"
	ErrorCancelled            ErrorType = "Cancelled"
	ErrorInternal             ErrorType = "Internal"
)

// Error is the structured error carried through the service, mirroring
// the teacher's shared/errors.Error shape (type + message + optional
// detail + HTTP status), minus the gRPC mapping this service doesn't need.
type Error struct {
	Type    ErrorType
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error kind to the status code spec §7 names.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrorInputInvalid:
		return http.StatusBadRequest
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorConflict:
		return http.StatusConflict
	case ErrorOverloaded:
		return http.StatusServiceUnavailable
	case ErrorCancelled:
		return 499
	case ErrorInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(t ErrorType, message string, cause error) *Error {
	e := &Error{Type: t, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

func InputInvalid(message string) *Error { return New(ErrorInputInvalid, message, nil) }
func NotFound(message string) *Error     { return New(ErrorNotFound, message, nil) }
func Conflict(message string) *Error     { return New(ErrorConflict, message, nil) }
func Overloaded(message string) *Error   { return New(ErrorOverloaded, message, nil) }
func Cancelled(message string) *Error    { return New(ErrorCancelled, message, nil) }
func Internal(message string, cause error) *Error {
	return New(ErrorInternal, message, cause)
}

// IsType reports whether err (or something it wraps) is a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type == t
	}
	return false
}

// Sentinel domain errors used internally by the repository layer before
// being translated into *Error at the service boundary.
var (
	ErrNFTNotFound         = errors.New("nft not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyMinted       = errors.New("nft already minted with a different object id")
	ErrActiveListingExists = errors.New("an active listing already exists for this nft")
	ErrNoActiveListing     = errors.New("no active listing for this nft")
	ErrListingAlreadyDone  = errors.New("listing already deleted")
)
