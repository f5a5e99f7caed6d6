package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "VALIDATION"
	ErrorKindConflict         ErrorKind = "CONFLICT"
	ErrorKindCapacityExceeded ErrorKind = "CAPACITY_EXCEEDED"
	ErrorKindCapacityConflict ErrorKind = "CAPACITY_CONFLICT"
	ErrorKindOverpayment      ErrorKind = "OVERPAYMENT"
	ErrorKindNotFound         ErrorKind = "NOT_FOUND"
	ErrorKindInvalidState     ErrorKind = "INVALID_STATE"
	ErrorKindPermission       ErrorKind = "PERMISSION"
)

// Error is the structured failure surfaced to callers of the core. Every
// rejection carries a kind the presentation layer can switch on.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation   = &Error{Kind: ErrorKindValidation}
	ErrConflict     = &Error{Kind: ErrorKindConflict}
	ErrNotFound     = &Error{Kind: ErrorKindNotFound}
	ErrInvalidState = &Error{Kind: ErrorKindInvalidState}
	ErrPermission   = &Error{Kind: ErrorKindPermission}
)

func ValidationError(format string, args ...any) error {
	return &Error{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...any) error {
	return &Error{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(entity string, id any) error {
	return &Error{Kind: ErrorKindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func InvalidStateError(format string, args ...any) error {
	return &Error{Kind: ErrorKindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func PermissionError(format string, args ...any) error {
	return &Error{Kind: ErrorKindPermission, Message: fmt.Sprintf(format, args...)}
}

// CapacityExceededError is returned when a cold room cannot absorb a reservation.
type CapacityExceededError struct {
	ColdRoomID  string
	RequestedKg decimal.Decimal
	AvailableKg decimal.Decimal
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%s: cold room %s has %s kg available, %s kg requested",
		ErrorKindCapacityExceeded, e.ColdRoomID, e.AvailableKg.String(), e.RequestedKg.String())
}

func (e *CapacityExceededError) Kind() ErrorKind { return ErrorKindCapacityExceeded }

// CapacityConflictError is returned when a cold room's total capacity would be
// reduced below the kilograms currently reserved in it.
type CapacityConflictError struct {
	ColdRoomID       string
	UsedKg           decimal.Decimal
	RequestedTotalKg decimal.Decimal
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("%s: cold room %s holds %s kg, cannot shrink total capacity to %s kg",
		ErrorKindCapacityConflict, e.ColdRoomID, e.UsedKg.String(), e.RequestedTotalKg.String())
}

func (e *CapacityConflictError) Kind() ErrorKind { return ErrorKindCapacityConflict }

// OverpaymentError is returned when a payment would push paidAmount above totalAmount.
type OverpaymentError struct {
	InvoiceID   string
	Attempted   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("%s: invoice %s has %s outstanding, payment of %s rejected",
		ErrorKindOverpayment, e.InvoiceID, e.Outstanding.String(), e.Attempted.String())
}

func (e *OverpaymentError) Kind() ErrorKind { return ErrorKindOverpayment }

// KindOf reports the domain kind of err, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ""
}

// IsDomainError reports whether err is a caller-facing rejection rather than
// an infrastructure failure.
func IsDomainError(err error) bool {
	return KindOf(err) != ""
}
