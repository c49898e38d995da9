package ledger

import "feeledger/internal/core"

// Summary is the dashboard headline over the raw ledger, independent of any
// selection.
type Summary struct {
	Students  int
	Active    int
	Collected core.Money
	Dues      core.Money
	// Receipts counts distinct receipt numbers among Paid lines.
	Receipts int
}

// Summarize sums Paid and Due record totals and counts the roster.
func Summarize(students []core.Student, payments []core.FeePaymentRecord) Summary {
	s := Summary{Students: len(students)}
	receipts := make(map[string]struct{})
	for _, st := range students {
		if st.Status == core.StudentActive || st.Status == "" {
			s.Active++
		}
	}
	for _, p := range payments {
		switch p.Status {
		case core.StatusPaid:
			s.Collected = s.Collected.Add(p.Total)
			if p.ReceiptNo != "" {
				receipts[p.ReceiptNo] = struct{}{}
			}
		case core.StatusDue:
			s.Dues = s.Dues.Add(p.Total)
		}
	}
	s.Receipts = len(receipts)
	return s
}
