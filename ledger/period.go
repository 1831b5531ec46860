package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// BILLING PERIOD - One calendar month
// =============================================================================

// BillingPeriod identifies the month an invoice or payout covers.
// Invoices and payouts are unique per (party, BillingPeriod).
type BillingPeriod struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) BillingPeriod {
	t = t.UTC()
	return BillingPeriod{Year: t.Year(), Month: t.Month()}
}

// Validate rejects months outside 1-12 and implausible years.
func (p BillingPeriod) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return &ValidationError{Field: "period.month", Message: fmt.Sprintf("must be 1-12 (got %d)", p.Month)}
	}
	if p.Year < 2000 || p.Year > 9999 {
		return &ValidationError{Field: "period.year", Message: fmt.Sprintf("out of range (got %d)", p.Year)}
	}
	return nil
}

// Start returns the first instant of the period (UTC).
func (p BillingPeriod) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last instant of the period (UTC).
func (p BillingPeriod) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Contains returns true if t falls inside the period.
func (p BillingPeriod) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && !t.After(p.End())
}

// Next returns the following month.
func (p BillingPeriod) Next() BillingPeriod { return PeriodOf(p.Start().AddDate(0, 1, 0)) }

// Previous returns the preceding month.
func (p BillingPeriod) Previous() BillingPeriod { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

// Before orders periods chronologically.
func (p BillingPeriod) Before(other BillingPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Key renders the period as YYYYMM, the form used in document numbers.
func (p BillingPeriod) Key() string { return fmt.Sprintf("%04d%02d", p.Year, int(p.Month)) }

// String renders the period as YYYY-MM.
func (p BillingPeriod) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// ParsePeriod reads a YYYY-MM string.
func ParsePeriod(s string) (BillingPeriod, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return BillingPeriod{}, &ValidationError{Field: "period", Message: fmt.Sprintf("expected YYYY-MM (got %q)", s)}
	}
	return PeriodOf(t), nil
}

// =============================================================================
// ACADEMIC YEAR - Like a fiscal year, starting on a configurable month
// =============================================================================

// AcademicYearLabel returns the "2025-2026" label of the academic year the
// period belongs to, for an academic year starting on startMonth.
// A period before the start month belongs to the previous academic year.
func (p BillingPeriod) AcademicYearLabel(startMonth time.Month) string {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.September
	}
	startYear := p.Year
	if p.Month < startMonth {
		startYear--
	}
	if startMonth == time.January {
		return fmt.Sprintf("%d", startYear)
	}
	return fmt.Sprintf("%d-%d", startYear, startYear+1)
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b (negative when b is before a).
// Both sides are taken as UTC dates, so the count steps by exactly one at
// each midnight regardless of the time of day.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}

// IsPast returns true if date is strictly before reference.
func IsPast(date, reference time.Time) bool {
	return date.Before(reference)
}

// DueDate returns the end of the day termDays after from.
func DueDate(from time.Time, termDays int) time.Time {
	return EndOfDay(from.AddDate(0, 0, termDays))
}

// EndOfDay returns the last instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
