/*
Package factory provides JSON to Go payroll rule conversion.

PURPOSE:
  Converts JSON payroll definitions into payout.RuleSet values, so the
  office can change bonus and deduction rules (and withholding rates)
  without a code change. The server loads one definition at startup from
  payroll.rules_file.

JSON SCHEMA:
  {
    "id": "standard-2025",
    "name": "Standard payroll 2025-2026",
    "tax_rate": "10",
    "social_rate": "5",
    "bonuses": [
      {"id": "busy-month", "type": "performance", "kind": "fixed",
       "amount": 50000, "min_sessions": 20, "reason": "20+ sessions"},
      {"id": "loyalty", "type": "seniority", "kind": "percent_of_base", "rate": "2.5"}
    ],
    "deductions": [
      {"id": "equipment", "type": "other", "kind": "per_session",
       "amount": 100, "reason": "room and material fee"}
    ]
  }

  Amounts are minor currency units. Rates are percentages and may be JSON
  numbers or strings. Omitted rates leave the configured defaults alone.

USAGE:
  f := factory.NewRuleFactory()
  payroll, err := f.ParseRuleSet(jsonString)
  policy.Rules = payroll.Rules

SEE ALSO:
  - payout/rules.go: Rule evaluation
  - config/config.go: payroll.rules_file
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PayrollJSON is the JSON representation of a payroll definition.
type PayrollJSON struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	SocialRate *decimal.Decimal `json:"social_rate,omitempty"`
	Bonuses    []RuleJSON       `json:"bonuses,omitempty"`
	Deductions []RuleJSON       `json:"deductions,omitempty"`
}

// RuleJSON represents one bonus or deduction rule.
type RuleJSON struct {
	ID          string          `json:"id"`
	Type        string          `json:"type,omitempty"`
	Kind        string          `json:"kind"` // fixed, percent_of_base, per_session
	Amount      int64           `json:"amount,omitempty"`
	Rate        decimal.Decimal `json:"rate,omitempty"`
	MinSessions int             `json:"min_sessions,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	AwardedBy   string          `json:"awarded_by,omitempty"`
}

// Payroll is a parsed payroll definition. Nil rates mean "not set".
type Payroll struct {
	ID         string
	Name       string
	Rules      payout.RuleSet
	TaxRate    *decimal.Decimal
	SocialRate *decimal.Decimal
}

// Apply copies the definition onto a policy.
func (p *Payroll) Apply(policy *payout.Policy) {
	policy.Rules = p.Rules
	if p.TaxRate != nil {
		policy.TaxRate = *p.TaxRate
	}
	if p.SocialRate != nil {
		policy.SocialRate = *p.SocialRate
	}
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON payroll definitions to rule sets.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// LoadFile reads and parses a payroll definition file.
func (f *RuleFactory) LoadFile(path string) (*Payroll, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payroll rules: %w", err)
	}
	return f.ParseRuleSet(string(data))
}

// ParseRuleSet parses a JSON string into a Payroll.
func (f *RuleFactory) ParseRuleSet(jsonStr string) (*Payroll, error) {
	var pj PayrollJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse payroll JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PayrollJSON to a validated Payroll.
func (f *RuleFactory) FromJSON(pj PayrollJSON) (*Payroll, error) {
	payroll := &Payroll{
		ID:         pj.ID,
		Name:       pj.Name,
		TaxRate:    pj.TaxRate,
		SocialRate: pj.SocialRate,
	}
	if pj.TaxRate != nil {
		if err := ledger.ValidateRate("tax_rate", *pj.TaxRate); err != nil {
			return nil, err
		}
	}
	if pj.SocialRate != nil {
		if err := ledger.ValidateRate("social_rate", *pj.SocialRate); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	for i, rj := range pj.Bonuses {
		rule, err := parseRule(rj, "bonuses", i, seen)
		if err != nil {
			return nil, err
		}
		t, err := parseBonusType(rj.Type)
		if err != nil {
			return nil, err
		}
		payroll.Rules.Bonuses = append(payroll.Rules.Bonuses, payout.BonusRule{Rule: rule, Type: t, AwardedBy: rj.AwardedBy})
	}
	for i, rj := range pj.Deductions {
		rule, err := parseRule(rj, "deductions", i, seen)
		if err != nil {
			return nil, err
		}
		t, err := parseDeductionType(rj.Type)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rule.Reason) == "" {
			return nil, &ledger.ValidationError{Field: "deductions." + rule.ID, Message: "reason is required"}
		}
		payroll.Rules.Deductions = append(payroll.Rules.Deductions, payout.DeductionRule{Rule: rule, Type: t})
	}
	return payroll, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRule(rj RuleJSON, list string, index int, seen map[string]bool) (payout.Rule, error) {
	id := strings.TrimSpace(rj.ID)
	if id == "" {
		return payout.Rule{}, &ledger.ValidationError{Field: fmt.Sprintf("%s[%d].id", list, index), Message: "is required"}
	}
	if seen[id] {
		return payout.Rule{}, &ledger.ValidationError{Field: fmt.Sprintf("%s[%d].id", list, index), Message: fmt.Sprintf("duplicate rule id %q", id)}
	}
	seen[id] = true

	rule := payout.Rule{
		ID:          id,
		Kind:        payout.RuleKind(rj.Kind),
		Amount:      ledger.Money(rj.Amount),
		Rate:        rj.Rate,
		MinSessions: rj.MinSessions,
		Reason:      rj.Reason,
	}
	if err := rule.Validate(); err != nil {
		return payout.Rule{}, err
	}
	return rule, nil
}

func parseBonusType(s string) (payout.BonusType, error) {
	t := payout.BonusType(s)
	if !t.Valid() {
		return "", &ledger.ValidationError{Field: "bonuses.type", Message: fmt.Sprintf("unknown bonus type %q", s)}
	}
	if t == "" {
		t = payout.BonusOther
	}
	return t, nil
}

func parseDeductionType(s string) (payout.DeductionType, error) {
	t := payout.DeductionType(s)
	if !t.Valid() {
		return "", &ledger.ValidationError{Field: "deductions.type", Message: fmt.Sprintf("unknown deduction type %q", s)}
	}
	if t == "" {
		t = payout.DeductionOther
	}
	return t, nil
}
