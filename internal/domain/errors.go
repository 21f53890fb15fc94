package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes fulfillment failures.
type ErrorCode string

const (
	// ErrCodeInvalidSignature rejects a callback whose signature does not verify.
	// Not retryable.
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"

	// ErrCodePaymentNotConfirmed means the gateway does not (yet) report the
	// payment as completed. The caller may retry later.
	ErrCodePaymentNotConfirmed ErrorCode = "PAYMENT_NOT_CONFIRMED"

	// ErrCodeResourceExhausted means the code pool had nothing to claim.
	// Fulfillment degrades to a synthetic code instead of failing.
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// ErrCodeConflict means a write lost a uniqueness race. Reconciled by
	// re-reading, never surfaced to trigger callers.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeDataIntegrity means the order exists but its memorial could not
	// be created. The state is resumable through repair.
	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"

	// ErrCodeNotificationFailure is logged only.
	ErrCodeNotificationFailure ErrorCode = "NOTIFICATION_FAILURE"

	// ErrCodeInvalidTransition rejects a status change the state machine
	// does not allow, such as activating an unsold code.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error is the structured error returned across the fulfillment core.
type Error struct {
	Code      ErrorCode
	Message   string
	Reference string
	OrderID   string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Reference != "" {
		msg += fmt.Sprintf(" (reference=%s)", e.Reference)
	}
	if e.OrderID != "" {
		msg += fmt.Sprintf(" (order=%s)", e.OrderID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err wraps a domain Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the wrapped domain Error, or "" if none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsInvalidSignature(err error) bool    { return IsCode(err, ErrCodeInvalidSignature) }
func IsPaymentNotConfirmed(err error) bool { return IsCode(err, ErrCodePaymentNotConfirmed) }
func IsResourceExhausted(err error) bool   { return IsCode(err, ErrCodeResourceExhausted) }
func IsConflict(err error) bool            { return IsCode(err, ErrCodeConflict) }
func IsDataIntegrity(err error) bool       { return IsCode(err, ErrCodeDataIntegrity) }
func IsInvalidTransition(err error) bool   { return IsCode(err, ErrCodeInvalidTransition) }
func IsNotFound(err error) bool            { return IsCode(err, ErrCodeNotFound) }
func IsInvalidArgument(err error) bool     { return IsCode(err, ErrCodeInvalidArgument) }

// NewInvalidSignatureError wraps a signature verification failure.
func NewInvalidSignatureError(err error) *Error {
	return &Error{Code: ErrCodeInvalidSignature, Message: "callback signature rejected", Err: err}
}

// NewPaymentNotConfirmedError reports a payment the gateway has not settled.
func NewPaymentNotConfirmedError(reference, status, paymentStatus string) *Error {
	return &Error{
		Code:      ErrCodePaymentNotConfirmed,
		Message:   fmt.Sprintf("payment not completed (status=%s, payment_status=%s)", status, paymentStatus),
		Reference: reference,
	}
}

// NewResourceExhaustedError reports an empty or fully contended pool.
func NewResourceExhaustedError(attempts int) *Error {
	return &Error{
		Code:    ErrCodeResourceExhausted,
		Message: fmt.Sprintf("no access code claimed after %d attempts", attempts),
	}
}

// NewConflictError reports a lost uniqueness race.
func NewConflictError(reference string, err error) *Error {
	return &Error{Code: ErrCodeConflict, Message: "concurrent write won", Reference: reference, Err: err}
}

// NewDataIntegrityError reports an order left without its memorial.
func NewDataIntegrityError(reference, orderID string, err error) *Error {
	return &Error{
		Code:      ErrCodeDataIntegrity,
		Message:   "order recorded without memorial; run repair",
		Reference: reference,
		OrderID:   orderID,
		Err:       err,
	}
}

// NewNotificationError wraps a failed notification dispatch.
func NewNotificationError(orderID string, err error) *Error {
	return &Error{Code: ErrCodeNotificationFailure, Message: "notification failed", OrderID: orderID, Err: err}
}

// NewInvalidTransitionError reports a rejected state machine step.
func NewInvalidTransitionError(entity, key string, from, to any) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("%s %q cannot move from %v to %v", entity, key, from, to),
	}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, key string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", entity, key)}
}

// NewInvalidArgumentError reports rejected caller input.
func NewInvalidArgumentError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}
