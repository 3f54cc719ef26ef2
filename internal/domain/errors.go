package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a contribution or payout id is unknown.
	ErrNotFound = errors.New("record not found")
	// ErrNoEligiblePayout is a refusal: no verified contribution in the trailing week.
	ErrNoEligiblePayout = errors.New("no eligible payout")
	// ErrPayoutInFlight rejects a second concurrent processing attempt on one payout.
	ErrPayoutInFlight = errors.New("payout processing already in flight")
	// ErrPayoutNotRetryable is returned when a retry targets a payout that is not failed.
	ErrPayoutNotRetryable = errors.New("payout is not in a retryable state")
	// ErrInvalidTransition guards the payout state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnsupportedChain is returned for settlement networks outside SupportedChains.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrUnauthorizedAccount reports that the researcher account cannot receive funds right now.
	ErrUnauthorizedAccount = errors.New("researcher account not authorized")
)

// ValidationError rejects bad input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError for the named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AttestationError reports a failed attestation call. The contribution stays pending.
type AttestationError struct {
	ContributionID string
	Err            error
}

func (e *AttestationError) Error() string {
	return fmt.Sprintf("attest contribution %s: %v", e.ContributionID, e.Err)
}

func (e *AttestationError) Unwrap() error { return e.Err }

// PaymentError reports a failed payment call. The payout is left failed.
type PaymentError struct {
	PayoutID string
	Err      error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("send payout %s: %v", e.PayoutID, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
