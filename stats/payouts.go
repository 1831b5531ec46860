package stats

import (
	"github.com/shopspring/decimal"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
)

// PayoutTotals aggregates the payments in one status.
type PayoutTotals struct {
	Count  int          `json:"count"`
	Gross  ledger.Money `json:"gross"`
	Tax    ledger.Money `json:"tax"`
	Social ledger.Money `json:"social"`
	Net    ledger.Money `json:"net"`
}

// PayoutStats is the teacher payroll report. Money totals and rankings
// leave rejected payments out.
type PayoutStats struct {
	Count       int                            `json:"count"`
	ByStatus    map[payout.Status]PayoutTotals `json:"by_status"`
	Sessions    int                            `json:"sessions"`
	Minutes     int                            `json:"minutes"`
	Base        ledger.Money                   `json:"base"`
	Bonuses     ledger.Money                   `json:"bonuses"`
	Deductions  ledger.Money                   `json:"deductions"`
	Gross       ledger.Money                   `json:"gross"`
	Withholding ledger.Money                   `json:"withholding"`
	Net         ledger.Money                   `json:"net"`
	PaidNet     ledger.Money                   `json:"paid_net"`
	PaymentRate decimal.Decimal                `json:"payment_rate"`
	TopEarners  []Ranking                      `json:"top_earners"`
}

// Payouts aggregates a payment snapshot. topN <= 0 uses DefaultTopN.
func Payouts(ps []payout.Payment, topN int) PayoutStats {
	s := PayoutStats{
		Count:    len(ps),
		ByStatus: make(map[payout.Status]PayoutTotals),
	}
	earners := make(map[string]*Ranking)

	paid := 0
	for _, p := range ps {
		w := p.Withholding()

		t := s.ByStatus[p.Status]
		t.Count++
		t.Gross += w.Gross
		t.Tax += w.Tax
		t.Social += w.Social
		t.Net += w.Net
		s.ByStatus[p.Status] = t

		if p.Status == payout.StatusRejected {
			continue
		}
		if p.Status == payout.StatusPaid {
			paid++
			s.PaidNet += w.Net
		}
		s.Sessions += p.SessionCount()
		s.Minutes += p.TotalMinutes()
		s.Base += w.Base
		s.Bonuses += w.Bonuses
		s.Deductions += w.Deductions
		s.Gross += w.Gross
		s.Withholding += w.Tax + w.Social
		s.Net += w.Net

		r, ok := earners[p.TeacherID]
		if !ok {
			r = &Ranking{PartyID: p.TeacherID}
			earners[p.TeacherID] = r
		}
		r.Amount += w.Net
		r.Count++
	}

	s.PaymentRate = Rate(int64(paid), int64(len(ps)))
	s.TopEarners = top(earners, topN)
	return s
}
