package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, wire-facing classification of a domain error.
type ErrorKind string

const (
	KindBadRequest          ErrorKind = "BAD_REQUEST"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindForbidden           ErrorKind = "FORBIDDEN"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindConflict            ErrorKind = "CONFLICT"
	KindInsufficientSeats   ErrorKind = "INSUFFICIENT_SEATS"
	KindInvalidBookingState ErrorKind = "INVALID_BOOKING_STATE"
	KindValidationError     ErrorKind = "VALIDATION_ERROR"
	KindServiceUnavailable  ErrorKind = "SERVICE_UNAVAILABLE"
	KindInternal            ErrorKind = "INTERNAL"
)

// AppError is the typed error returned by the command and query cores.
// The transport boundary maps Kind to an HTTP status; it never inspects
// the message string.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details string
	Status  string // current booking status, populated for InvalidBookingState
	err     error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.err
}

// Is makes errors.Is(err, domain.ErrBookingNotFound) match any AppError of
// the same Kind, not just the exact sentinel pointer.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newAppError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

// Sentinel errors. Use errors.Is against these, not string comparison.
var (
	ErrBookingNotFound      = newAppError(KindNotFound, "booking not found")
	ErrInsufficientSeats    = newAppError(KindInsufficientSeats, "seat is not available")
	ErrInvalidBookingState  = newAppError(KindInvalidBookingState, "booking is not in a state that permits this transition")
	ErrReservationExpired   = newAppError(KindInvalidBookingState, "reservation has expired")
	ErrForbidden            = newAppError(KindForbidden, "caller does not own this booking")
	ErrBadRequest           = newAppError(KindBadRequest, "request is invalid")
	ErrConflictVersion      = newAppError(KindConflict, "concurrent modification, retry")
	ErrServiceUnavailable   = newAppError(KindServiceUnavailable, "downstream dependency unavailable")
)

// NewValidationError builds a KindValidationError carrying per-field details.
func NewValidationError(details string) *AppError {
	return &AppError{Kind: KindValidationError, Message: "request failed validation", Details: details}
}

// NewBadRequest builds a KindBadRequest with a specific message.
func NewBadRequest(msg string) *AppError {
	return &AppError{Kind: KindBadRequest, Message: msg}
}

// NewUnauthorized builds a KindUnauthorized with a specific message, used by
// the transport boundary's bearer-token verification (§6).
func NewUnauthorized(msg string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: msg}
}

// NewInvalidState builds a KindInvalidBookingState error carrying the booking's
// current status, per §4.1.3/§4.1.4's "InvalidBookingState (current status reported)".
func NewInvalidState(current BookingStatus, reason string) *AppError {
	return &AppError{
		Kind:    KindInvalidBookingState,
		Message: reason,
		Status:  string(current),
	}
}

// WrapInternal classifies an unexpected infrastructure error. Connection loss
// and broker-down conditions during command execution surface as
// ServiceUnavailable per §7's propagation policy; anything else is Internal.
func WrapInternal(err error, serviceUnavailable bool) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	kind := KindInternal
	if serviceUnavailable {
		kind = KindServiceUnavailable
	}
	return &AppError{Kind: kind, Message: "unexpected error", Details: err.Error(), err: err}
}

func kindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsNotFound reports whether err (or anything it wraps) is a NotFound error.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsConflict reports whether err is a Conflict/InsufficientSeats error.
func IsConflict(err error) bool {
	k := kindOf(err)
	return k == KindConflict || k == KindInsufficientSeats
}

// IsInvalidState reports whether err is an InvalidBookingState error.
func IsInvalidState(err error) bool { return kindOf(err) == KindInvalidBookingState }

// IsForbidden reports whether err is a Forbidden error.
func IsForbidden(err error) bool { return kindOf(err) == KindForbidden }

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool { return kindOf(err) == KindValidationError }

// IsServiceUnavailable reports whether err is a ServiceUnavailable error.
func IsServiceUnavailable(err error) bool { return kindOf(err) == KindServiceUnavailable }
