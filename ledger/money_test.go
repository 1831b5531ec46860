package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/tutoring-ledger/ledger"
)

func pct(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// =============================================================================
// SESSION CHARGES
// =============================================================================

func TestSessionCharge_PricedByTheHour(t *testing.T) {
	// GIVEN: 600.00/h for 90 minutes
	charge := ledger.NewSessionCharge("sess-1", 60000, 90)

	// THEN: 900.00
	assert.Equal(t, ledger.Money(90000), charge.Amount)
	assert.NoError(t, charge.Validate())
}

func TestChargeAmount_RoundsHalfToEvenOnce(t *testing.T) {
	tests := []struct {
		name     string
		rate     ledger.Money
		minutes  int
		expected ledger.Money
	}{
		{"exact", 6000, 60, 6000},
		{"third of an hour", 1000, 20, 333},
		{"one minute rounds up", 1000, 1, 17},
		{"half rounds to even below", 5, 30, 2},
		{"half rounds to even above", 7, 30, 4},
		{"half at odd", 3, 30, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ledger.ChargeAmount(tt.rate, tt.minutes))
		})
	}
}

func TestSessionCharge_Validate(t *testing.T) {
	assert.ErrorIs(t, ledger.SessionCharge{HourlyRate: 100, DurationMinutes: 60}.Validate(), ledger.ErrValidation)
	assert.ErrorIs(t, ledger.NewSessionCharge("s", -1, 60).Validate(), ledger.ErrValidation)
	assert.ErrorIs(t, ledger.NewSessionCharge("s", 100, 0).Validate(), ledger.ErrValidation)
}

func TestTotals(t *testing.T) {
	charges := []ledger.SessionCharge{
		ledger.NewSessionCharge("a", 6000, 60),
		ledger.NewSessionCharge("b", 6000, 30),
	}
	assert.Equal(t, ledger.Money(9000), ledger.TotalAmount(charges))
	assert.Equal(t, 90, ledger.TotalMinutes(charges))
	assert.Equal(t, ledger.Money(6), ledger.Sum(1, 2, 3))
}

// =============================================================================
// INVOICE TOTALS
// =============================================================================

func TestApplyDiscountThenTax_NoRates(t *testing.T) {
	b := ledger.ApplyDiscountThenTax(75000, decimal.Zero, decimal.Zero)

	assert.Equal(t, ledger.Breakdown{Subtotal: 75000, Total: 75000}, b)
}

func TestApplyDiscountThenTax_TaxesTheDiscountedAmount(t *testing.T) {
	// GIVEN: 1000.00 with 10% discount and 20% tax
	b := ledger.ApplyDiscountThenTax(100000, pct(10), pct(20))

	// THEN: discount 100.00, tax on 900.00 = 180.00
	assert.Equal(t, ledger.Money(10000), b.Discount)
	assert.Equal(t, ledger.Money(18000), b.Tax)
	assert.Equal(t, ledger.Money(108000), b.Total)
}

func TestApplyDiscountThenTax_RoundsEachTermFromExactInputs(t *testing.T) {
	// GIVEN: a discount of exactly 100.5 minor units
	b := ledger.ApplyDiscountThenTax(1005, pct(10), pct(20))

	// THEN: the discount rounds to even, the tax is taken on the exact 904.5
	assert.Equal(t, ledger.Money(100), b.Discount)
	assert.Equal(t, ledger.Money(181), b.Tax)
	assert.Equal(t, b.Subtotal-b.Discount+b.Tax, b.Total)
}

func TestPercent_HalfToEven(t *testing.T) {
	assert.Equal(t, ledger.Money(50), ledger.Percent(101, pct(50)))
	assert.Equal(t, ledger.Money(52), ledger.Percent(103, pct(50)))
	assert.Equal(t, ledger.Money(0), ledger.Percent(0, pct(20)))
}

func TestValidateRate(t *testing.T) {
	assert.NoError(t, ledger.ValidateRate("rate", decimal.Zero))
	assert.NoError(t, ledger.ValidateRate("rate", pct(100)))
	assert.ErrorIs(t, ledger.ValidateRate("rate", pct(-1)), ledger.ErrValidation)
	assert.ErrorIs(t, ledger.ValidateRate("rate", decimal.RequireFromString("100.01")), ledger.ErrValidation)
}

// =============================================================================
// PAYOUT WITHHOLDING
// =============================================================================

func TestApplyBonusesAndWithholding_TeacherPayout(t *testing.T) {
	// GIVEN: base 2400.00, bonus 500.00, no deduction, 10% tax, 5% social
	w := ledger.ApplyBonusesAndWithholding(240000, 50000, 0, pct(10), pct(5))

	// THEN
	assert.Equal(t, ledger.Money(290000), w.Gross)
	assert.Equal(t, ledger.Money(29000), w.Tax)
	assert.Equal(t, ledger.Money(14500), w.Social)
	assert.Equal(t, ledger.Money(246500), w.Net)
}

func TestApplyBonusesAndWithholding_IsDeterministic(t *testing.T) {
	tax := decimal.RequireFromString("12.5")
	social := decimal.RequireFromString("7.3")

	first := ledger.ApplyBonusesAndWithholding(123457, 1001, 333, tax, social)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ledger.ApplyBonusesAndWithholding(123457, 1001, 333, tax, social))
	}
	assert.Equal(t, first.Gross-first.Tax-first.Social, first.Net)
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "750.00 EUR", ledger.FormatMoney(75000, "EUR"))
	assert.Equal(t, "1 234 567.89", ledger.FormatMoney(123456789, ""))
	assert.Equal(t, "-0.05 EUR", ledger.FormatMoney(-5, "EUR"))
	assert.Equal(t, "0.00 XOF", ledger.FormatMoney(0, "XOF"))
}
