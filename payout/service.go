package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
)

// =============================================================================
// POLICY AND COLLABORATORS
// =============================================================================

// Policy holds payroll defaults used when a calculation doesn't override them.
type Policy struct {
	Currency               string
	TaxRate                decimal.Decimal
	SocialRate             decimal.Decimal
	Rules                  RuleSet
	AcademicYearStartMonth time.Month
}

// DefaultPolicy returns 10% tax, 5% social contributions and no rules.
func DefaultPolicy() Policy {
	return Policy{
		Currency:               "EUR",
		TaxRate:                decimal.NewFromInt(10),
		SocialRate:             decimal.NewFromInt(5),
		AcademicYearStartMonth: time.September,
	}
}

// PayslipIssuer produces the payslip document for a validated payment and
// returns an opaque reference (URL, storage key). Rendering is external.
type PayslipIssuer interface {
	IssuePayslip(ctx context.Context, p Payment) (string, error)
}

// ReferencePayslips returns "payslip:{number}" without rendering anything.
type ReferencePayslips struct{}

func (ReferencePayslips) IssuePayslip(_ context.Context, p Payment) (string, error) {
	return "payslip:" + p.Number, nil
}

// Repository persists payments. SaveTeacherPayment follows the same
// optimistic contract as invoice.Repository.SaveInvoice: Version 1 inserts
// (failing with *ledger.DuplicatePeriodError when a non-rejected payment
// exists for teacher+period), later versions replace Version-1.
type Repository interface {
	ledger.Sequencer

	LoadTeacherPayment(ctx context.Context, id string) (*Payment, error)
	SaveTeacherPayment(ctx context.Context, p Payment) error
	TeacherPaymentsForPeriod(ctx context.Context, teacherID string, period ledger.BillingPeriod) ([]Payment, error)
	ListTeacherPayments(ctx context.Context, filter Filter) ([]Payment, error)
}

// Filter narrows ListTeacherPayments.
type Filter struct {
	TeacherID       string
	Statuses        []Status
	Period          *ledger.BillingPeriod
	IncludeArchived bool
}

// Match applies the filter to one payment.
func (f Filter) Match(p Payment) bool {
	if p.Archived && !f.IncludeArchived {
		return false
	}
	if f.TeacherID != "" && p.TeacherID != f.TeacherID {
		return false
	}
	if f.Period != nil && p.Period != *f.Period {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if p.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// BlocksPeriod returns true if p prevents another calculation for the same
// teacher and period. Only rejected payments make room for a recalculation.
func BlocksPeriod(p Payment) bool {
	return p.Status != StatusRejected
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs payout operations against a repository and an event sink.
type Service struct {
	Repo     Repository
	Events   ledger.EventSink
	Payslips PayslipIssuer
	Policy   Policy
	Clock    ledger.Clock
	Logger   zerolog.Logger
	NewID    func() string
}

// NewService creates a Service with UTC wall clock and UUID identifiers.
func NewService(repo Repository, events ledger.EventSink, policy Policy, logger zerolog.Logger) *Service {
	if events == nil {
		events = ledger.DiscardSink{}
	}
	return &Service{
		Repo:     repo,
		Events:   events,
		Payslips: ReferencePayslips{},
		Policy:   policy,
		Clock:    ledger.UTCNow,
		Logger:   logger.With().Str("component", "payout").Logger(),
		NewID:    uuid.NewString,
	}
}

// CalculateRequest is a calculation with optional overrides of the policy.
// Nil rates and a nil rule set fall back to the policy.
type CalculateRequest struct {
	TeacherID  string
	Period     ledger.BillingPeriod
	Sessions   []ledger.SessionCharge
	Rules      *RuleSet
	TaxRate    *decimal.Decimal
	SocialRate *decimal.Decimal
	Bonuses    []Bonus
	Deductions []Deduction
}

func (s *Service) input(req CalculateRequest) CalculateInput {
	in := CalculateInput{
		TeacherID:  req.TeacherID,
		Period:     req.Period,
		Sessions:   req.Sessions,
		Rules:      s.Policy.Rules,
		TaxRate:    s.Policy.TaxRate,
		SocialRate: s.Policy.SocialRate,
		Bonuses:    req.Bonuses,
		Deductions: req.Deductions,
	}
	if req.Rules != nil {
		in.Rules = *req.Rules
	}
	if req.TaxRate != nil {
		in.TaxRate = *req.TaxRate
	}
	if req.SocialRate != nil {
		in.SocialRate = *req.SocialRate
	}
	return in
}

// Calculate computes a teacher's payment for a period.
func (s *Service) Calculate(ctx context.Context, req CalculateRequest) (*Payment, error) {
	in := s.input(req)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Repo.TeacherPaymentsForPeriod(ctx, in.TeacherID, in.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payments: %w", err)
	}
	for _, p := range existing {
		if BlocksPeriod(p) {
			return nil, &ledger.DuplicatePeriodError{
				Scope:      fmt.Sprintf("teacher %s for %s", in.TeacherID, in.Period),
				ExistingID: p.ID,
				Number:     p.Number,
			}
		}
	}

	seq, err := s.Repo.NextSequence(ctx, ledger.SequenceScope(ledger.PaymentPrefix, in.TeacherID, in.Period))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate payment number: %w", err)
	}
	number := ledger.PaymentNumber(in.TeacherID, in.Period.Year, int(in.Period.Month), seq)

	p, err := Calculate(in, s.NewID(), number, s.Policy, s.Clock())
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveTeacherPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	w := p.Withholding()
	s.Logger.Info().
		Str("payment", p.Number).
		Str("teacher", p.TeacherID).
		Int("sessions", p.SessionCount()).
		Int64("gross", int64(w.Gross)).
		Int64("net", int64(w.Net)).
		Msg("payment calculated")
	s.publish(ctx, ledger.EventPaymentCalculated, p, nil)
	return &p, nil
}

// Get loads a payment.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.Repo.LoadTeacherPayment(ctx, id)
}

// List returns payments matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Payment, error) {
	return s.Repo.ListTeacherPayments(ctx, filter)
}

// AddBonus adds a bonus to a calculated payment.
func (s *Service) AddBonus(ctx context.Context, id string, b Bonus) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.AddBonus(b, at)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// AddDeduction adds a deduction to a calculated payment.
func (s *Service) AddDeduction(ctx context.Context, id string, d Deduction) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.AddDeduction(d, at)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Validate approves a calculated payment and issues its payslip.
func (s *Service) Validate(ctx context.Context, id, validator string) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		if p.Status != StatusCalculated {
			return Payment{}, p.stateError("validate")
		}
		ref, err := s.Payslips.IssuePayslip(ctx, p)
		if err != nil {
			return Payment{}, fmt.Errorf("failed to issue payslip: %w", err)
		}
		return p.Validate(validator, ref, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventPaymentValidated, next, map[string]string{"validator": validator, "payslip": next.PayslipRef})
	return &next, nil
}

// Process records the transfer of a validated payment.
func (s *Service) Process(ctx context.Context, id, method, reference string) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.Process(method, reference, at)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info().
		Str("payment", next.Number).
		Str("reference", reference).
		Int64("net", int64(next.NetAmount())).
		Msg("payment processed")
	s.publish(ctx, ledger.EventPaymentProcessed, next, map[string]string{"method": method, "reference": reference})
	return &next, nil
}

// Reject ends a payment for this cycle.
func (s *Service) Reject(ctx context.Context, id, reason string) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.Reject(reason, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventPaymentRejected, next, map[string]string{"reason": reason})
	return &next, nil
}

// Suspend puts a payment on hold for this cycle.
func (s *Service) Suspend(ctx context.Context, id, reason string) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.Suspend(reason, at)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.EventPaymentSuspended, next, map[string]string{"reason": reason})
	return &next, nil
}

// Archive hides a terminal payment.
func (s *Service) Archive(ctx context.Context, id string) (*Payment, error) {
	next, err := s.mutate(ctx, id, func(p Payment, at time.Time) (Payment, error) {
		return p.Archive(at)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) mutate(ctx context.Context, id string, op func(Payment, time.Time) (Payment, error)) (Payment, error) {
	current, err := s.Repo.LoadTeacherPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	next, err := op(*current, s.Clock())
	if err != nil {
		return Payment{}, err
	}
	if err := s.Repo.SaveTeacherPayment(ctx, next); err != nil {
		return Payment{}, fmt.Errorf("failed to save payment: %w", err)
	}
	return next, nil
}

func (s *Service) publish(ctx context.Context, kind ledger.EventKind, p Payment, meta map[string]string) {
	s.Events.Publish(ctx, ledger.Event{
		Kind:     kind,
		EntityID: p.ID,
		Number:   p.Number,
		PartyID:  p.TeacherID,
		Amount:   p.NetAmount(),
		At:       p.UpdatedAt,
		Meta:     meta,
	})
}
