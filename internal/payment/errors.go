package payment

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match on these with errors.Is; they never reach end users.
var (
	ErrConfiguration    = errors.New("payment settings incomplete")
	ErrMissingReference = errors.New("missing order reference")
	ErrUpstream         = errors.New("upstream communication failed")
	ErrOrderNotFound    = errors.New("order not found")
	ErrVerification     = errors.New("order verification failed")
	ErrNotSettled       = errors.New("contribution not settled")
	ErrCapacity         = errors.New("capacity exhausted")
	ErrPaymentFinal     = errors.New("payment already final")
	ErrStateConflict    = errors.New("payment state changed concurrently")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// Verification reasons, each distinct and each an ErrVerification.
var (
	ErrDestinationMismatch = fmt.Errorf("%w: destination mismatch", ErrVerification)
	ErrAmountMissing       = fmt.Errorf("%w: amount missing", ErrVerification)
	ErrAmountMismatch      = fmt.Errorf("%w: amount mismatch", ErrVerification)
	ErrCurrencyMismatch    = fmt.Errorf("%w: currency mismatch", ErrVerification)
	ErrRecurring           = fmt.Errorf("%w: recurring contribution", ErrVerification)
	ErrStatusMissing       = fmt.Errorf("%w: status missing", ErrVerification)
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrDestinationMismatch, "destination_mismatch"},
	{ErrAmountMissing, "amount_missing"},
	{ErrAmountMismatch, "amount_mismatch"},
	{ErrCurrencyMismatch, "currency_mismatch"},
	{ErrRecurring, "recurring"},
	{ErrStatusMissing, "status_missing"},
	{ErrVerification, "verification_failed"},
	{ErrNotSettled, "not_settled"},
	{ErrCapacity, "capacity_exhausted"},
}

// ReasonCode maps an error to the machine code stored in the audit payload.
func ReasonCode(err error) string {
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "error"
}

// Error is the single user-visible error type. Message is safe to show to a
// buyer; the wrapped cause stays available to errors.Is and to logs.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a user-facing message.
func NewError(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}

var defaultMessages = []struct {
	err error
	msg string
}{
	{ErrConfiguration, "The payment provider settings are incomplete. Please contact the organizer."},
	{ErrMissingReference, "The payment provider did not return an order reference. Please try again."},
	{ErrOrderNotFound, "The contribution could not be found."},
	{ErrUpstream, "The payment provider could not be reached. Please try again later."},
	{ErrVerification, "The contribution does not match this payment."},
	{ErrNotSettled, "The contribution was not completed."},
	{ErrCapacity, "The payment was received but the order could not be completed because it is no longer available. We will contact you."},
	{ErrPaymentFinal, "This payment has already been processed."},
	{ErrPaymentNotFound, "The payment could not be found."},
	{ErrStateConflict, "This payment is already being processed. Please reload the page in a moment."},
}

// AsUserError returns err as an *Error, choosing a generic message by kind
// when err does not already carry one.
func AsUserError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	for _, dm := range defaultMessages {
		if errors.Is(err, dm.err) {
			return NewError(dm.msg, err)
		}
	}
	return NewError("The payment could not be processed.", err)
}
