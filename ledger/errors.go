/*
errors.go - Centralized error types for the billing and payroll ledger

PURPOSE:
  All error kinds in one place so callers (HTTP handlers, batch jobs)
  can react to a specific failure instead of a generic one, e.g. show
  "already billed this month" rather than "something went wrong".

ERROR CATEGORIES:
  1. Validation errors  - Malformed input (missing party, empty items, bad period)
  2. State errors       - Operation not permitted in the current status
  3. Amount errors      - Zero, negative or over-limit money amounts
  4. Idempotency errors - Second generation for an already-billed period
  5. Store errors       - Not found, concurrent modification

USAGE:
  Structured errors unwrap to a sentinel, so both styles work:

    if errors.Is(err, ledger.ErrDuplicatePeriod) { ... }

    var stateErr *ledger.StateError
    if errors.As(err, &stateErr) {
        log.Printf("invoice %s is %s", stateErr.ID, stateErr.Status)
    }

SEE ALSO:
  - invoice/invoice.go: Invoice state machine
  - payout/payment.go: TeacherPayment state machine
  - api/handlers.go: Maps error kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation is not permitted in the
	// current status of a ledger entry.
	ErrInvalidState = errors.New("operation not permitted in current status")

	// ErrInvalidAmount is returned for zero, negative or over-limit amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicatePeriod is returned when an entry already exists for the
	// same party and billing period. A retried generation hits this.
	ErrDuplicatePeriod = errors.New("entry already exists for period")

	// ErrDisputeOpen is returned when a payment is recorded on a disputed invoice.
	ErrDisputeOpen = errors.New("dispute is open")

	// ErrMissingReference is returned when a payout is processed without a reference.
	ErrMissingReference = errors.New("payment reference is required")

	// ErrNoSessions is returned when a payout is calculated from an empty batch.
	ErrNoSessions = errors.New("no validated sessions")

	// ErrNotFound is returned when a referenced entry doesn't exist.
	ErrNotFound = errors.New("entry not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input field is malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError reports an operation attempted in a status that does not allow it.
type StateError struct {
	Entity    string // "invoice" or "payment"
	ID        string
	Status    string
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %q", e.Operation, e.Entity, e.ID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// InvalidAmountError reports an amount outside the accepted range.
// Limit is the largest acceptable amount, when one applies.
type InvalidAmountError struct {
	Amount Money
	Limit  Money
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: %s", e.Amount, e.Reason)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// DuplicatePeriodError reports an existing entry for the same party and period.
// It matches both ErrDuplicatePeriod and ErrValidation.
type DuplicatePeriodError struct {
	Scope      string
	ExistingID string
	Number     string
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("%s already billed as %s", e.Scope, e.Number)
}

func (e *DuplicatePeriodError) Unwrap() []error {
	return []error{ErrDuplicatePeriod, ErrValidation}
}

// DisputeOpenError reports a payment attempt on an invoice with an open dispute.
type DisputeOpenError struct {
	InvoiceID string
	Reason    string
}

func (e *DisputeOpenError) Error() string {
	return fmt.Sprintf("invoice %s has an open dispute: %s", e.InvoiceID, e.Reason)
}

func (e *DisputeOpenError) Unwrap() error { return ErrDisputeOpen }

// NotFoundError names the missing entry.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a stale write detected by a repository.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: expected version %d, stored version %d",
		e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingReference) ||
		errors.Is(err, ErrNoSessions)
}

// IsConflict returns true if the error conflicts with the current state of an entry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrDisputeOpen) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
