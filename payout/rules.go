package payout

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
)

// =============================================================================
// BONUSES AND DEDUCTIONS
// =============================================================================

type BonusType string

const (
	BonusPerformance BonusType = "performance"
	BonusPunctuality BonusType = "punctuality"
	BonusSeniority   BonusType = "seniority"
	BonusOther       BonusType = "other"
)

type DeductionType string

const (
	DeductionLateness DeductionType = "lateness"
	DeductionAbsence  DeductionType = "absence"
	DeductionPenalty  DeductionType = "penalty"
	DeductionOther    DeductionType = "other"
)

// Valid returns true for a known bonus type. Empty is valid and read as other.
func (t BonusType) Valid() bool {
	switch t {
	case "", BonusPerformance, BonusPunctuality, BonusSeniority, BonusOther:
		return true
	}
	return false
}

// Valid returns true for a known deduction type. Empty is valid and read as other.
func (t DeductionType) Valid() bool {
	switch t {
	case "", DeductionLateness, DeductionAbsence, DeductionPenalty, DeductionOther:
		return true
	}
	return false
}

func unknownBonusType(t BonusType) error {
	return &ledger.ValidationError{Field: "bonuses.type", Message: fmt.Sprintf("unknown bonus type %q", t)}
}

func unknownDeductionType(t DeductionType) error {
	return &ledger.ValidationError{Field: "deductions.type", Message: fmt.Sprintf("unknown deduction type %q", t)}
}

// Bonus is an amount added to a teacher's base pay.
type Bonus struct {
	Type      BonusType    `json:"type"`
	Amount    ledger.Money `json:"amount"`
	Reason    string       `json:"reason,omitempty"`
	AwardedBy string       `json:"awarded_by,omitempty"`
	RuleID    string       `json:"rule_id,omitempty"`
}

// Deduction is an amount withheld from a teacher's base pay.
type Deduction struct {
	Type   DeductionType `json:"type"`
	Amount ledger.Money  `json:"amount"`
	Reason string        `json:"reason"`
	RuleID string        `json:"rule_id,omitempty"`
}

// =============================================================================
// RULES - How bonuses and deductions are derived from a session batch
// =============================================================================

// RuleKind selects how a rule turns a session batch into an amount.
type RuleKind string

const (
	// RuleFixed yields Amount once.
	RuleFixed RuleKind = "fixed"
	// RulePercentOfBase yields Rate% of the base amount.
	RulePercentOfBase RuleKind = "percent_of_base"
	// RulePerSession yields Amount for every session in the batch.
	RulePerSession RuleKind = "per_session"
)

// Rule is the common shape of bonus and deduction rules. A rule with
// MinSessions > 0 only applies when the batch has at least that many sessions.
type Rule struct {
	ID          string          `json:"id"`
	Kind        RuleKind        `json:"kind"`
	Amount      ledger.Money    `json:"amount,omitempty"`
	Rate        decimal.Decimal `json:"rate,omitempty"`
	MinSessions int             `json:"min_sessions,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// BonusRule derives a Bonus.
type BonusRule struct {
	Rule
	Type      BonusType `json:"type"`
	AwardedBy string    `json:"awarded_by,omitempty"`
}

// DeductionRule derives a Deduction.
type DeductionRule struct {
	Rule
	Type DeductionType `json:"type"`
}

// Validate checks the rule can be evaluated.
func (r Rule) Validate() error {
	switch r.Kind {
	case RuleFixed, RulePerSession:
		if r.Amount.IsNegative() {
			return &ledger.ValidationError{Field: "rule." + r.ID, Message: "amount must not be negative"}
		}
	case RulePercentOfBase:
		if err := ledger.ValidateRate("rule."+r.ID+".rate", r.Rate); err != nil {
			return err
		}
	default:
		return &ledger.ValidationError{Field: "rule." + r.ID, Message: fmt.Sprintf("unknown kind %q", r.Kind)}
	}
	if r.MinSessions < 0 {
		return &ledger.ValidationError{Field: "rule." + r.ID, Message: "min_sessions must not be negative"}
	}
	return nil
}

// Evaluate returns the rule's amount for a batch and whether it applies.
func (r Rule) Evaluate(base ledger.Money, sessions int) (ledger.Money, bool) {
	if r.MinSessions > 0 && sessions < r.MinSessions {
		return 0, false
	}
	switch r.Kind {
	case RuleFixed:
		return r.Amount, true
	case RulePercentOfBase:
		return ledger.Percent(base, r.Rate), true
	case RulePerSession:
		return r.Amount * ledger.Money(sessions), true
	}
	return 0, false
}

// ApplyBonusRules evaluates every rule against a batch.
func ApplyBonusRules(rules []BonusRule, base ledger.Money, sessions int) ([]Bonus, error) {
	var out []Bonus
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		amount, ok := rule.Evaluate(base, sessions)
		if !ok || amount == 0 {
			continue
		}
		t := rule.Type
		if t == "" {
			t = BonusOther
		}
		out = append(out, Bonus{Type: t, Amount: amount, Reason: rule.Reason, AwardedBy: rule.AwardedBy, RuleID: rule.ID})
	}
	return out, nil
}

// ApplyDeductionRules evaluates every rule against a batch.
func ApplyDeductionRules(rules []DeductionRule, base ledger.Money, sessions int) ([]Deduction, error) {
	var out []Deduction
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		amount, ok := rule.Evaluate(base, sessions)
		if !ok || amount == 0 {
			continue
		}
		t := rule.Type
		if t == "" {
			t = DeductionOther
		}
		out = append(out, Deduction{Type: t, Amount: amount, Reason: rule.Reason, RuleID: rule.ID})
	}
	return out, nil
}

// RuleSet bundles the rules applied to a payout calculation.
type RuleSet struct {
	Bonuses    []BonusRule
	Deductions []DeductionRule
}
