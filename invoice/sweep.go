package invoice

import (
	"sort"
	"time"

	"github.com/warp/tutoring-ledger/ledger"
)

// =============================================================================
// POLICY - Payment terms and reminder schedule
// =============================================================================

// Policy holds the billing terms applied to newly generated invoices and
// the reminder schedule used by the sweep.
type Policy struct {
	Currency               string
	PaymentTermDays        int
	GracePeriodDays        int
	ReminderOffsets        []int // days past the grace period, e.g. 3, 7, 14
	AcademicYearStartMonth time.Month
}

// DefaultPolicy returns 15-day terms, no grace period and reminders at
// +3, +7 and +14 days past due.
func DefaultPolicy() Policy {
	return Policy{
		Currency:               "EUR",
		PaymentTermDays:        15,
		GracePeriodDays:        0,
		ReminderOffsets:        []int{3, 7, 14},
		AcademicYearStartMonth: time.September,
	}
}

// offsets returns the positive reminder offsets, sorted and deduplicated.
func (p Policy) offsets() []int {
	seen := make(map[int]bool)
	var out []int
	for _, o := range p.ReminderOffsets {
		if o > 0 && !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	sort.Ints(out)
	return out
}

// =============================================================================
// SWEEP - Scheduled overdue transition and reminders
// =============================================================================

// SweepResult says what a sweep changed on one invoice.
type SweepResult struct {
	BecameOverdue bool
	// RemindersDue is the number of reminder offsets newly crossed.
	RemindersDue int
	// Offset is the largest offset crossed so far, when RemindersDue > 0.
	Offset      int
	OverdueDays int
}

// Changed returns true if the sweep mutated the invoice.
func (r SweepResult) Changed() bool { return r.BecameOverdue || r.RemindersDue > 0 }

// Sweep moves a sent or pending invoice to overdue once the due date plus
// grace period has passed, and advances the reminder schedule. Reminder
// offsets count from the end of the grace period, so no reminder is sent
// while the invoice is still in grace.
//
// ReminderCount always equals the number of offsets crossed, so running the
// sweep again on the same day (or after a missed run) never sends twice for
// the same offset.
func (inv Invoice) Sweep(now time.Time, policy Policy) (Invoice, SweepResult) {
	result := SweepResult{}
	if inv.Archived || !inv.EvaluateOverdue(now) {
		return inv, result
	}
	if inv.Status != StatusSent && inv.Status != StatusPending && inv.Status != StatusOverdue {
		return inv, result
	}

	next := inv.clone()
	days := inv.OverdueDays(now)
	result.OverdueDays = days

	graceEnds := inv.DueDate.AddDate(0, 0, inv.GracePeriodDays)
	if next.Status != StatusOverdue && now.After(graceEnds) {
		if err := next.transition(StatusOverdue, "mark overdue"); err == nil {
			result.BecameOverdue = true
		}
	}

	late := 0
	if now.After(graceEnds) {
		late = ledger.DaysBetween(graceEnds, now)
	}
	crossed := 0
	for _, offset := range policy.offsets() {
		if late >= offset {
			crossed++
			result.Offset = offset
		}
	}
	if crossed > next.ReminderCount {
		result.RemindersDue = crossed - next.ReminderCount
		next.ReminderCount = crossed
		next.LastReminderAt = timePtr(now)
		if next.Timeline.FirstReminderAt == nil {
			next.Timeline.FirstReminderAt = timePtr(now)
		}
		if crossed >= 2 && next.Timeline.SecondReminderAt == nil {
			next.Timeline.SecondReminderAt = timePtr(now)
		}
	}

	if !result.Changed() {
		return inv, result
	}
	next.touch(now)
	return next, result
}
