/*
Package payout computes and tracks teacher payments.

PURPOSE:
  A Payment pays one teacher for the validated sessions of one billing
  month. It is the payee-side view of the same sessions the invoice engine
  bills to parents.

STATE MACHINE:
  calculated → validated → paid
  rejected and suspended are reachable from calculated and validated, and
  end the payment for this cycle: a corrected calculation creates a NEW
  payment, a rejected one is never edited.

NO DRIFT:
  Payment stores only inputs: sessions, bonuses, deductions, tax rate and
  social rate. BaseAmount, GrossAmount, TaxAmount, SocialAmount and
  NetAmount are methods that recompute from those inputs on every read,
  so editing a bonus before validation can never leave a stale net amount.

    gross  = base + Σ bonuses - Σ deductions
    tax    = gross × taxRate%
    social = gross × socialRate%
    net    = gross - tax - social

SEE ALSO:
  - rules.go: Bonus/deduction rules
  - service.go: Repository + event sink orchestration
  - ledger/money.go: ApplyBonusesAndWithholding
*/
package payout

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
)

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	TeacherID string `json:"teacher_id"`

	Period       ledger.BillingPeriod `json:"period"`
	AcademicYear string               `json:"academic_year"`
	PeriodStart  time.Time            `json:"period_start"`
	PeriodEnd    time.Time            `json:"period_end"`

	Currency   string                 `json:"currency"`
	Sessions   []ledger.SessionCharge `json:"sessions"`
	Bonuses    []Bonus                `json:"bonuses"`
	Deductions []Deduction            `json:"deductions"`
	TaxRate    decimal.Decimal        `json:"tax_rate"`
	SocialRate decimal.Decimal        `json:"social_rate"`

	Status       Status     `json:"status"`
	CalculatedAt time.Time  `json:"calculated_at"`
	ValidatedAt  *time.Time `json:"validated_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	SuspendedAt  *time.Time `json:"suspended_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`

	ValidatedBy      string `json:"validated_by,omitempty"`
	PayslipRef       string `json:"payslip_ref,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`

	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// DERIVED AMOUNTS - Recomputed on every read
// =============================================================================

// SessionCount is the number of validated sessions paid.
func (p Payment) SessionCount() int { return len(p.Sessions) }

// TotalMinutes is the total duration of the sessions paid.
func (p Payment) TotalMinutes() int { return ledger.TotalMinutes(p.Sessions) }

// BaseAmount is Σ hourlyRate × duration over the sessions.
func (p Payment) BaseAmount() ledger.Money {
	var base ledger.Money
	for _, s := range p.Sessions {
		base += s.ComputedAmount()
	}
	return base
}

// TotalBonuses sums the bonus amounts.
func (p Payment) TotalBonuses() ledger.Money {
	var total ledger.Money
	for _, b := range p.Bonuses {
		total += b.Amount
	}
	return total
}

// TotalDeductions sums the deduction amounts.
func (p Payment) TotalDeductions() ledger.Money {
	var total ledger.Money
	for _, d := range p.Deductions {
		total += d.Amount
	}
	return total
}

// Withholding returns every derived amount at once.
func (p Payment) Withholding() ledger.Withholding {
	return ledger.ApplyBonusesAndWithholding(p.BaseAmount(), p.TotalBonuses(), p.TotalDeductions(), p.TaxRate, p.SocialRate)
}

// GrossAmount is base plus bonuses minus deductions.
func (p Payment) GrossAmount() ledger.Money { return p.Withholding().Gross }

// TaxAmount is the income tax withheld from gross pay.
func (p Payment) TaxAmount() ledger.Money { return p.Withholding().Tax }

// SocialAmount is the social contribution withheld from gross pay.
func (p Payment) SocialAmount() ledger.Money { return p.Withholding().Social }

// NetAmount is gross pay after withholding, the amount transferred.
func (p Payment) NetAmount() ledger.Money { return p.Withholding().Net }

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateInput is the batch a payout is computed from.
type CalculateInput struct {
	TeacherID  string
	Period     ledger.BillingPeriod
	Sessions   []ledger.SessionCharge
	Rules      RuleSet
	TaxRate    decimal.Decimal
	SocialRate decimal.Decimal

	// Bonuses and Deductions are manual adjustments applied after the rules.
	Bonuses    []Bonus
	Deductions []Deduction
}

// Validate checks the input is well-formed.
func (in CalculateInput) Validate() error {
	if strings.TrimSpace(in.TeacherID) == "" {
		return &ledger.ValidationError{Field: "teacher_id", Message: "is required"}
	}
	if err := in.Period.Validate(); err != nil {
		return err
	}
	if len(in.Sessions) == 0 {
		return fmt.Errorf("teacher %s for %s: %w", in.TeacherID, in.Period, ledger.ErrNoSessions)
	}
	seen := make(map[string]bool, len(in.Sessions))
	for i, s := range in.Sessions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
		if seen[s.SessionID] {
			return &ledger.ValidationError{Field: "sessions", Message: fmt.Sprintf("session %s paid twice", s.SessionID)}
		}
		seen[s.SessionID] = true
	}
	if err := ledger.ValidateRate("tax_rate", in.TaxRate); err != nil {
		return err
	}
	if err := ledger.ValidateRate("social_rate", in.SocialRate); err != nil {
		return err
	}
	if in.TaxRate.Add(in.SocialRate).GreaterThan(decimal.NewFromInt(100)) {
		return &ledger.ValidationError{Field: "social_rate", Message: "tax and social rates exceed 100%"}
	}
	for _, b := range in.Bonuses {
		if !b.Type.Valid() {
			return unknownBonusType(b.Type)
		}
		if b.Amount <= 0 {
			return &ledger.InvalidAmountError{Amount: b.Amount, Reason: "bonus must be positive"}
		}
	}
	for _, d := range in.Deductions {
		if !d.Type.Valid() {
			return unknownDeductionType(d.Type)
		}
		if d.Amount <= 0 {
			return &ledger.InvalidAmountError{Amount: d.Amount, Reason: "deduction must be positive"}
		}
		if strings.TrimSpace(d.Reason) == "" {
			return &ledger.ValidationError{Field: "deductions.reason", Message: "is required for deductions"}
		}
	}
	return nil
}

// Calculate builds a payment in status calculated. The duplicate-period
// check belongs to the Service.
func Calculate(in CalculateInput, id, number string, policy Policy, at time.Time) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}

	sessions := make([]ledger.SessionCharge, len(in.Sessions))
	for i, s := range in.Sessions {
		s.Amount = s.ComputedAmount()
		sessions[i] = s
	}
	base := ledger.TotalAmount(sessions)

	bonuses, err := ApplyBonusRules(in.Rules.Bonuses, base, len(sessions))
	if err != nil {
		return Payment{}, err
	}
	deductions, err := ApplyDeductionRules(in.Rules.Deductions, base, len(sessions))
	if err != nil {
		return Payment{}, err
	}
	for _, b := range in.Bonuses {
		if b.Type == "" {
			b.Type = BonusOther
		}
		bonuses = append(bonuses, b)
	}
	for _, d := range in.Deductions {
		if d.Type == "" {
			d.Type = DeductionOther
		}
		deductions = append(deductions, d)
	}

	p := Payment{
		ID:           id,
		Number:       number,
		TeacherID:    in.TeacherID,
		Period:       in.Period,
		AcademicYear: in.Period.AcademicYearLabel(policy.AcademicYearStartMonth),
		PeriodStart:  in.Period.Start(),
		PeriodEnd:    in.Period.End(),
		Currency:     policy.Currency,
		Sessions:     sessions,
		Bonuses:      bonuses,
		Deductions:   deductions,
		TaxRate:      in.TaxRate,
		SocialRate:   in.SocialRate,
		Status:       StatusCalculated,
		CalculatedAt: at,
		Version:      1,
		UpdatedAt:    at,
	}
	if err := p.checkGross(); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// =============================================================================
// ADJUSTMENTS - Only while calculated
// =============================================================================

// AddBonus adds a bonus before validation.
func (p Payment) AddBonus(b Bonus, at time.Time) (Payment, error) {
	if p.Status != StatusCalculated {
		return Payment{}, p.stateError("add bonus to")
	}
	if !b.Type.Valid() {
		return Payment{}, unknownBonusType(b.Type)
	}
	if b.Amount <= 0 {
		return Payment{}, &ledger.InvalidAmountError{Amount: b.Amount, Reason: "bonus must be positive"}
	}
	if b.Type == "" {
		b.Type = BonusOther
	}
	next := p.clone()
	next.Bonuses = append(next.Bonuses, b)
	next.touch(at)
	return next, nil
}

// AddDeduction adds a deduction before validation. Gross pay may not go
// negative.
func (p Payment) AddDeduction(d Deduction, at time.Time) (Payment, error) {
	if p.Status != StatusCalculated {
		return Payment{}, p.stateError("add deduction to")
	}
	if !d.Type.Valid() {
		return Payment{}, unknownDeductionType(d.Type)
	}
	if d.Amount <= 0 {
		return Payment{}, &ledger.InvalidAmountError{Amount: d.Amount, Reason: "deduction must be positive"}
	}
	if strings.TrimSpace(d.Reason) == "" {
		return Payment{}, &ledger.ValidationError{Field: "reason", Message: "is required for deductions"}
	}
	if d.Type == "" {
		d.Type = DeductionOther
	}
	next := p.clone()
	next.Deductions = append(next.Deductions, d)
	if err := next.checkGross(); err != nil {
		return Payment{}, err
	}
	next.touch(at)
	return next, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Validate approves the calculation. payslipRef comes from the external
// payslip generator.
func (p Payment) Validate(validator, payslipRef string, at time.Time) (Payment, error) {
	if p.Status != StatusCalculated {
		return Payment{}, p.stateError("validate")
	}
	if strings.TrimSpace(validator) == "" {
		return Payment{}, &ledger.ValidationError{Field: "validator", Message: "is required"}
	}
	next := p.clone()
	if err := next.transition(StatusValidated, "validate"); err != nil {
		return Payment{}, err
	}
	next.ValidatedBy = validator
	next.PayslipRef = payslipRef
	next.ValidatedAt = timePtr(at)
	next.touch(at)
	return next, nil
}

// Process records the money transfer to the teacher.
func (p Payment) Process(method, reference string, at time.Time) (Payment, error) {
	if p.Status != StatusValidated {
		return Payment{}, p.stateError("process")
	}
	if strings.TrimSpace(reference) == "" {
		return Payment{}, fmt.Errorf("payment %s: %w", p.ID, ledger.ErrMissingReference)
	}
	next := p.clone()
	if err := next.transition(StatusPaid, "process"); err != nil {
		return Payment{}, err
	}
	next.PaymentMethod = method
	next.PaymentReference = reference
	next.PaidAt = timePtr(at)
	next.touch(at)
	return next, nil
}

// Reject ends the payment for this cycle.
func (p Payment) Reject(reason string, at time.Time) (Payment, error) {
	return p.halt(StatusRejected, "reject", reason, at)
}

// Suspend puts the payment on hold for this cycle.
func (p Payment) Suspend(reason string, at time.Time) (Payment, error) {
	return p.halt(StatusSuspended, "suspend", reason, at)
}

func (p Payment) halt(to Status, op, reason string, at time.Time) (Payment, error) {
	if !CanTransition(p.Status, to) {
		return Payment{}, p.stateError(op)
	}
	if strings.TrimSpace(reason) == "" {
		return Payment{}, &ledger.ValidationError{Field: "reason", Message: "is required"}
	}
	next := p.clone()
	next.Status = to
	next.Reason = reason
	if to == StatusRejected {
		next.RejectedAt = timePtr(at)
	} else {
		next.SuspendedAt = timePtr(at)
	}
	next.touch(at)
	return next, nil
}

// Archive hides a payment that reached a terminal status.
func (p Payment) Archive(at time.Time) (Payment, error) {
	if !p.Status.IsTerminal() || p.Archived {
		return Payment{}, p.stateError("archive")
	}
	next := p.clone()
	next.Archived = true
	next.ArchivedAt = timePtr(at)
	next.touch(at)
	return next, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (p Payment) checkGross() error {
	if gross := p.GrossAmount(); gross < 0 {
		return &ledger.InvalidAmountError{Amount: gross, Reason: "deductions exceed base pay and bonuses"}
	}
	return nil
}

func (p *Payment) transition(to Status, op string) error {
	if !CanTransition(p.Status, to) {
		return p.stateError(op)
	}
	p.Status = to
	return nil
}

func (p Payment) stateError(op string) error {
	return &ledger.StateError{Entity: "payment", ID: p.ID, Status: string(p.Status), Operation: op}
}

func (p *Payment) touch(at time.Time) {
	p.Version++
	p.UpdatedAt = at
}

func (p Payment) clone() Payment {
	next := p
	next.Sessions = append([]ledger.SessionCharge(nil), p.Sessions...)
	next.Bonuses = append([]Bonus(nil), p.Bonuses...)
	next.Deductions = append([]Deduction(nil), p.Deductions...)
	return next
}

func timePtr(t time.Time) *time.Time { return &t }
