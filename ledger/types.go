/*
Package ledger provides the shared core of the billing and payroll engines.

PURPOSE:
  The invoice and payout engines are two independent ledgers over the same
  stream of tutoring sessions: the payer side bills a parent, the payee side
  pays a teacher. This package holds what both sides agree on: money math,
  billing periods, document numbering, the error taxonomy and the event sink.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An amount in minor currency units (always an integer)
  - SessionCharge: One validated session priced at an hourly rate
  - Sequencer: Persisted, atomically incremented numbering counter

DESIGN PRINCIPLES:
  1. Integers for money: every stored amount is a whole number of minor units
  2. Precision: rates and intermediate products use decimal.Decimal
  3. One rounding step: each formula rounds once, at the end, half-to-even
  4. Stateless helpers: nothing in this package keeps mutable globals

USAGE:
  charge := ledger.NewSessionCharge("sess-1", 60000, 90) // 600.00/h for 1h30
  fmt.Println(charge.Amount)                              // 90000

SEE ALSO:
  - money.go: Discount, tax, bonus and withholding formulas
  - period.go: Billing months, academic years, due dates
  - numbering.go: Invoice and payout numbers
  - events.go: Domain events emitted by the engines
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Minor currency units
// =============================================================================

// Money is an amount in minor currency units (cents, centimes, ...).
type Money int64

// Decimal returns the amount as a decimal for further arithmetic.
func (m Money) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(m)) }

// IsPositive returns true for amounts above zero.
func (m Money) IsPositive() bool { return m > 0 }

// IsNegative returns true for amounts below zero.
func (m Money) IsNegative() bool { return m < 0 }

// Sum adds a list of amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// =============================================================================
// SESSION CHARGE - A validated session priced by the hour
// =============================================================================

// SessionCharge is one tutoring session as billed to a payer (an invoice line
// item) or paid to a teacher (a payout line). Validation of the session itself
// happens upstream; a SessionCharge is always already approved.
type SessionCharge struct {
	SessionID       string    `json:"session_id"`
	StudentID       string    `json:"student_id,omitempty"`
	TeacherID       string    `json:"teacher_id,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	HeldAt          time.Time `json:"held_at"`
	HourlyRate      Money     `json:"hourly_rate"`
	DurationMinutes int       `json:"duration_minutes"`
	Amount          Money     `json:"amount"`
}

// NewSessionCharge prices a session from its hourly rate and duration.
func NewSessionCharge(sessionID string, hourlyRate Money, durationMinutes int) SessionCharge {
	c := SessionCharge{
		SessionID:       sessionID,
		HourlyRate:      hourlyRate,
		DurationMinutes: durationMinutes,
	}
	c.Amount = c.ComputedAmount()
	return c
}

// ComputedAmount returns hourlyRate × duration, rounded once.
func (c SessionCharge) ComputedAmount() Money {
	return ChargeAmount(c.HourlyRate, c.DurationMinutes)
}

// Validate checks a charge is billable as given.
func (c SessionCharge) Validate() error {
	if c.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "is required"}
	}
	if c.HourlyRate.IsNegative() {
		return &ValidationError{Field: "hourly_rate", Message: fmt.Sprintf("must not be negative (got %d)", c.HourlyRate)}
	}
	if c.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration_minutes", Message: fmt.Sprintf("must be positive (got %d)", c.DurationMinutes)}
	}
	return nil
}

// TotalMinutes sums the duration of a list of charges.
func TotalMinutes(charges []SessionCharge) int {
	total := 0
	for _, c := range charges {
		total += c.DurationMinutes
	}
	return total
}

// TotalAmount sums the amount of a list of charges.
func TotalAmount(charges []SessionCharge) Money {
	var total Money
	for _, c := range charges {
		total += c.Amount
	}
	return total
}

// =============================================================================
// SEQUENCER - Persisted numbering counter
// =============================================================================

// Sequencer hands out the next value of a counter scoped by key (see
// SequenceScope). Implementations must increment atomically and persist the
// counter, so two generations for the same scope never share a number.
type Sequencer interface {
	NextSequence(ctx context.Context, scope string) (int, error)
}

// Clock returns the current time. Engines take one instead of calling time.Now.
type Clock func() time.Time

// UTCNow is the default Clock.
func UTCNow() time.Time { return time.Now().UTC() }
