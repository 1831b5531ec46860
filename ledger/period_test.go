package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tutoring-ledger/ledger"
)

func TestBillingPeriod_Bounds(t *testing.T) {
	p := ledger.BillingPeriod{Year: 2024, Month: time.February}

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC), p.End())
	assert.True(t, p.Contains(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBillingPeriod_NextPrevious(t *testing.T) {
	jan := ledger.BillingPeriod{Year: 2025, Month: time.January}

	assert.Equal(t, ledger.BillingPeriod{Year: 2024, Month: time.December}, jan.Previous())
	assert.Equal(t, ledger.BillingPeriod{Year: 2025, Month: time.February}, jan.Next())
	assert.True(t, jan.Previous().Before(jan))
	assert.False(t, jan.Before(jan))
}

func TestBillingPeriod_Formats(t *testing.T) {
	p := ledger.BillingPeriod{Year: 2025, Month: time.March}

	assert.Equal(t, "202503", p.Key())
	assert.Equal(t, "2025-03", p.String())
}

func TestParsePeriod(t *testing.T) {
	p, err := ledger.ParsePeriod("2025-03")
	require.NoError(t, err)
	assert.Equal(t, ledger.BillingPeriod{Year: 2025, Month: time.March}, p)

	for _, bad := range []string{"", "2025-13", "03-2025", "2025/03"} {
		_, err := ledger.ParsePeriod(bad)
		assert.ErrorIs(t, err, ledger.ErrValidation, bad)
	}
}

func TestBillingPeriod_Validate(t *testing.T) {
	assert.NoError(t, ledger.BillingPeriod{Year: 2025, Month: time.May}.Validate())
	assert.ErrorIs(t, ledger.BillingPeriod{Year: 2025}.Validate(), ledger.ErrValidation)
	assert.ErrorIs(t, ledger.BillingPeriod{Year: 1999, Month: time.May}.Validate(), ledger.ErrValidation)
}

func TestAcademicYearLabel(t *testing.T) {
	tests := []struct {
		period   ledger.BillingPeriod
		start    time.Month
		expected string
	}{
		{ledger.BillingPeriod{Year: 2025, Month: time.October}, time.September, "2025-2026"},
		{ledger.BillingPeriod{Year: 2026, Month: time.February}, time.September, "2025-2026"},
		{ledger.BillingPeriod{Year: 2025, Month: time.September}, time.September, "2025-2026"},
		{ledger.BillingPeriod{Year: 2025, Month: time.August}, time.September, "2024-2025"},
		{ledger.BillingPeriod{Year: 2026, Month: time.March}, time.January, "2026"},
		{ledger.BillingPeriod{Year: 2026, Month: time.March}, 0, "2025-2026"},
	}
	for _, tt := range tests {
		t.Run(tt.period.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.period.AcademicYearLabel(tt.start))
		})
	}
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

func TestDaysBetween_CountsCalendarDays(t *testing.T) {
	lateEvening := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	nextMorning := time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, ledger.DaysBetween(lateEvening, nextMorning))
	assert.Equal(t, -1, ledger.DaysBetween(nextMorning, lateEvening))
	assert.Equal(t, 0, ledger.DaysBetween(lateEvening, lateEvening))
	assert.Equal(t, 31, ledger.DaysBetween(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDaysBetween_StepsByOnePerDay(t *testing.T) {
	start := time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC)
	for n := 0; n < 60; n++ {
		assert.Equal(t, n, ledger.DaysBetween(start, start.AddDate(0, 0, n)))
	}
}

func TestIsPast(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, ledger.IsPast(ref.Add(-time.Second), ref))
	assert.False(t, ledger.IsPast(ref, ref))
	assert.False(t, ledger.IsPast(ref.Add(time.Second), ref))
}

func TestDueDate_EndOfDayAfterTerms(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	due := ledger.DueDate(from, 15)

	assert.Equal(t, time.Date(2025, 3, 16, 23, 59, 59, 999999999, time.UTC), due)
}
