package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY MATH - The only place amounts are derived
// =============================================================================
//
// Every formula works on exact decimals and rounds once at the end with
// banker's rounding (half to even) on minor units. Intermediate terms are
// never rounded, so the same inputs always give the same totals no matter
// which call site computes them.

var (
	hundred       = decimal.NewFromInt(100)
	minutesInHour = decimal.NewFromInt(60)
)

// round converts an exact decimal amount to minor units, half to even.
func round(d decimal.Decimal) Money {
	return Money(d.RoundBank(0).IntPart())
}

// percentOf returns the exact (unrounded) rate% of amount.
func percentOf(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// Percent returns rate% of amount, rounded once.
func Percent(amount Money, rate decimal.Decimal) Money {
	return round(percentOf(amount.Decimal(), rate))
}

// ChargeAmount prices durationMinutes at an hourly rate.
func ChargeAmount(hourlyRate Money, durationMinutes int) Money {
	exact := hourlyRate.Decimal().Mul(decimal.NewFromInt(int64(durationMinutes))).Div(minutesInHour)
	return round(exact)
}

// ValidateRate checks a percentage lies in [0, 100].
func ValidateRate(field string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between 0 and 100 (got %s)", rate)}
	}
	return nil
}

// =============================================================================
// INVOICE TOTALS
// =============================================================================

// Breakdown is the money side of an invoice derived from its subtotal.
type Breakdown struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money
}

// ApplyDiscountThenTax discounts the subtotal, then taxes the discounted amount.
// Discount and tax are each rounded once from exact inputs, and
// Total = Subtotal - Discount + Tax holds exactly on the rounded values.
func ApplyDiscountThenTax(subtotal Money, discountRate, taxRate decimal.Decimal) Breakdown {
	exactDiscount := percentOf(subtotal.Decimal(), discountRate)
	exactTax := percentOf(subtotal.Decimal().Sub(exactDiscount), taxRate)

	discount := round(exactDiscount)
	tax := round(exactTax)
	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    subtotal - discount + tax,
	}
}

// =============================================================================
// PAYOUT WITHHOLDING
// =============================================================================

// Withholding is the money side of a teacher payout.
type Withholding struct {
	Base       Money
	Bonuses    Money
	Deductions Money
	Gross      Money
	Tax        Money
	Social     Money
	Net        Money
}

// ApplyBonusesAndWithholding computes gross, tax, social and net pay.
//
//	gross  = base + bonuses - deductions
//	tax    = gross × taxRate%
//	social = gross × socialRate%
//	net    = gross - tax - social
//
// It is a pure function: the same inputs give the same result bit for bit.
func ApplyBonusesAndWithholding(base, bonuses, deductions Money, taxRate, socialRate decimal.Decimal) Withholding {
	gross := base + bonuses - deductions
	tax := Percent(gross, taxRate)
	social := Percent(gross, socialRate)
	return Withholding{
		Base:       base,
		Bonuses:    bonuses,
		Deductions: deductions,
		Gross:      gross,
		Tax:        tax,
		Social:     social,
		Net:        gross - tax - social,
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatMoney renders minor units with two decimals and a currency code,
// e.g. FormatMoney(75000, "EUR") == "750.00 EUR". Thousands are grouped by
// spaces. Rendering for documents belongs to the exporter; this is for logs
// and API payloads.
func FormatMoney(amount Money, currency string) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	units := int64(amount) / 100
	cents := int64(amount) % 100

	digits := fmt.Sprintf("%d", units)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(r)
	}

	s := fmt.Sprintf("%s.%02d", grouped.String(), cents)
	if negative {
		s = "-" + s
	}
	if currency != "" {
		s += " " + currency
	}
	return s
}
