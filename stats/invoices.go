/*
Package stats derives portfolio metrics from ledger snapshots.

PURPOSE:
  Read-only aggregation over a slice of invoices or payments supplied by
  the caller. Nothing here queries storage or reads the clock: "now" is a
  parameter, so the same snapshot always yields the same figures.

RATES:
  Rates are percentages with two decimals, 0 when the denominator is 0.

    payment rate    = paid invoices / invoices × 100
    collection rate = Σ amount paid / Σ total billed × 100

  Cancelled invoices count towards the invoice count (and the status
  breakdown) but not towards billed money.

AGING:
  Outstanding invoices are bucketed by days since creation (not by days
  past due): 0-30, 31-60, 61-90, 90+.

SEE ALSO:
  - payouts.go: Teacher payment aggregates
  - api/handlers.go: /api/stats endpoints
*/
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
)

// DefaultTopN is the ranking length used when a caller passes 0.
const DefaultTopN = 5

// =============================================================================
// TYPES
// =============================================================================

// StatusTotals aggregates the invoices in one status.
type StatusTotals struct {
	Count int          `json:"count"`
	Total ledger.Money `json:"total"`
	Paid  ledger.Money `json:"paid"`
	Due   ledger.Money `json:"due"`
}

// AgingBucket counts outstanding invoices of a given creation age.
// MaxDays is -1 for the open-ended last bucket.
type AgingBucket struct {
	Label   string       `json:"label"`
	MinDays int          `json:"min_days"`
	MaxDays int          `json:"max_days"`
	Count   int          `json:"count"`
	Due     ledger.Money `json:"due"`
}

// Ranking is one entry of a top-N list.
type Ranking struct {
	PartyID string       `json:"party_id"`
	Amount  ledger.Money `json:"amount"`
	Count   int          `json:"count"`
}

// Disputes counts invoices that went through a dispute.
type Disputes struct {
	Open     int `json:"open"`
	Resolved int `json:"resolved"`
}

// Growth compares one period with the one before. Percent is nil when the
// previous period is zero.
type Growth struct {
	Period   ledger.BillingPeriod `json:"period"`
	Current  ledger.Money         `json:"current"`
	Previous ledger.Money         `json:"previous"`
	Percent  *decimal.Decimal     `json:"percent,omitempty"`
}

// InvoiceStats is the full invoice portfolio report.
type InvoiceStats struct {
	Count          int                             `json:"count"`
	ByStatus       map[invoice.Status]StatusTotals `json:"by_status"`
	Billed         ledger.Money                    `json:"billed"`
	Collected      ledger.Money                    `json:"collected"`
	Outstanding    ledger.Money                    `json:"outstanding"`
	Overdue        int                             `json:"overdue"`
	PaymentRate    decimal.Decimal                 `json:"payment_rate"`
	CollectionRate decimal.Decimal                 `json:"collection_rate"`
	Aging          []AgingBucket                   `json:"aging"`
	TopPayers      []Ranking                       `json:"top_payers"`
	Disputes       Disputes                        `json:"disputes"`
	Growth         *Growth                         `json:"growth,omitempty"`
}

// =============================================================================
// INVOICE STATISTICS
// =============================================================================

// Invoices aggregates a snapshot. topN <= 0 uses DefaultTopN. Growth is
// computed for the period of now against the previous one.
func Invoices(invs []invoice.Invoice, now time.Time, topN int) InvoiceStats {
	s := InvoiceStats{
		Count:    len(invs),
		ByStatus: make(map[invoice.Status]StatusTotals),
	}

	paid := 0
	for _, inv := range invs {
		t := s.ByStatus[inv.Status]
		t.Count++
		t.Total += inv.Total
		t.Paid += inv.AmountPaid
		t.Due += inv.AmountDue
		s.ByStatus[inv.Status] = t

		if inv.Status == invoice.StatusPaid {
			paid++
		}
		if inv.Status != invoice.StatusCancelled {
			s.Billed += inv.Total
			s.Collected += inv.AmountPaid
		}
		if inv.Status.IsOutstanding() {
			s.Outstanding += inv.AmountDue
			if inv.EvaluateOverdue(now) {
				s.Overdue++
			}
		}
		if inv.Dispute != nil {
			if inv.Dispute.IsOpen() {
				s.Disputes.Open++
			} else {
				s.Disputes.Resolved++
			}
		}
	}

	s.PaymentRate = Rate(int64(paid), int64(len(invs)))
	s.CollectionRate = Rate(int64(s.Collected), int64(s.Billed))
	s.Aging = Aging(invs, now)
	s.TopPayers = TopPayers(invs, topN)
	g := BilledGrowth(invs, ledger.PeriodOf(now))
	s.Growth = &g
	return s
}

// Rate returns part/whole as a percentage with two decimals.
func Rate(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(whole)).Round(2)
}

// =============================================================================
// AGING
// =============================================================================

var agingBounds = []struct {
	label string
	min, max int
}{
	{"0-30", 0, 30},
	{"31-60", 31, 60},
	{"61-90", 61, 90},
	{"90+", 91, -1},
}

// BucketFor returns the aging label for an age in days.
func BucketFor(days int) string {
	return agingBounds[bucketIndex(days)].label
}

func bucketIndex(days int) int {
	for i, b := range agingBounds {
		if days >= b.min && (b.max < 0 || days <= b.max) {
			return i
		}
	}
	return 0
}

// Aging buckets outstanding invoices with money still due by creation age.
// All four buckets are always present.
func Aging(invs []invoice.Invoice, now time.Time) []AgingBucket {
	buckets := make([]AgingBucket, len(agingBounds))
	for i, b := range agingBounds {
		buckets[i] = AgingBucket{Label: b.label, MinDays: b.min, MaxDays: b.max}
	}
	for _, inv := range invs {
		if !inv.Status.IsOutstanding() || inv.AmountDue <= 0 {
			continue
		}
		i := bucketIndex(inv.AgeDays(now))
		buckets[i].Count++
		buckets[i].Due += inv.AmountDue
	}
	return buckets
}

// =============================================================================
// RANKINGS AND TRENDS
// =============================================================================

// TopPayers ranks payers by total billed, cancelled invoices excluded.
func TopPayers(invs []invoice.Invoice, n int) []Ranking {
	totals := make(map[string]*Ranking)
	for _, inv := range invs {
		if inv.Status == invoice.StatusCancelled {
			continue
		}
		r, ok := totals[inv.PayerID]
		if !ok {
			r = &Ranking{PartyID: inv.PayerID}
			totals[inv.PayerID] = r
		}
		r.Amount += inv.Total
		r.Count++
	}
	return top(totals, n)
}

// BilledGrowth compares money billed in period with the previous period.
func BilledGrowth(invs []invoice.Invoice, period ledger.BillingPeriod) Growth {
	g := Growth{Period: period}
	prev := period.Previous()
	for _, inv := range invs {
		if inv.Status == invoice.StatusCancelled {
			continue
		}
		switch inv.Period {
		case period:
			g.Current += inv.Total
		case prev:
			g.Previous += inv.Total
		}
	}
	g.Percent = GrowthPercent(g.Current, g.Previous)
	return g
}

// GrowthPercent returns (current - previous) / previous × 100, or nil when
// previous is zero.
func GrowthPercent(current, previous ledger.Money) *decimal.Decimal {
	if previous == 0 {
		return nil
	}
	pct := Rate(int64(current-previous), int64(previous))
	return &pct
}

func top(totals map[string]*Ranking, n int) []Ranking {
	if n <= 0 {
		n = DefaultTopN
	}
	out := make([]Ranking, 0, len(totals))
	for _, r := range totals {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].PartyID < out[j].PartyID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
