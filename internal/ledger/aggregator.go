// Package ledger computes fee dues from a student roster, a fee structure
// table and the payment ledger.
//
// Aggregate is a pure function: it reads its inputs, allocates its result and
// touches nothing else, so callers can recompute it on every change.
// Missing or malformed data never fails the computation; it contributes
// nothing instead.
package ledger

import (
	"feeledger/internal/core"
)

type (
	MonthlyDue struct {
		Month    core.Month
		Category string
		Amount   core.Money
	}

	FixedDue struct {
		Category string
		Amount   core.Money
	}

	// StudentDue is one student's position under a selection.
	StudentDue struct {
		StudentID        string
		Name             string
		Class            string
		Section          string
		Collected        core.Money
		TotalDue         core.Money
		MonthlyBreakdown []MonthlyDue
		FixedBreakdown   []FixedDue
		IsDefaulter      bool
	}

	Report struct {
		TotalCollected   core.Money
		TotalOutstanding core.Money
		PerStudent       []StudentDue
	}
)

// Aggregate evaluates every selected obligation for every student.
//
// For each (category, month) or one-time category:
//   - the structure amount for (student class, category) is looked up; zero
//     or missing skips the obligation entirely;
//   - a Paid ledger record for the student and category (and month, for
//     monthly fees) adds its Total to the collected sum;
//   - otherwise the structure amount is outstanding and itemized.
func Aggregate(students []core.Student, structures []core.FeeStructureEntry, payments []core.FeePaymentRecord, sel Selection) Report {
	table := NewStructureTable(structures)
	paid := NewPaidIndex(payments)
	pairs := sel.Pairs()
	oneTime := sel.OneTime()

	report := Report{PerStudent: make([]StudentDue, 0, len(students))}
	for _, st := range students {
		row := StudentDue{
			StudentID: st.ID,
			Name:      st.Name,
			Class:     st.Class,
			Section:   st.Section,
		}

		for _, p := range pairs {
			amount := table.Amount(st.Class, p.Category)
			if !amount.IsPositive() {
				continue
			}
			if rec, ok := paid.Monthly(st.ID, p.Category, p.Month.String()); ok {
				row.Collected = row.Collected.Add(rec.Total)
				continue
			}
			row.TotalDue = row.TotalDue.Add(amount)
			row.MonthlyBreakdown = append(row.MonthlyBreakdown, MonthlyDue{Month: p.Month, Category: p.Category, Amount: amount})
		}

		for _, category := range oneTime {
			amount := table.Amount(st.Class, category)
			if !amount.IsPositive() {
				continue
			}
			if rec, ok := paid.OneTime(st.ID, category); ok {
				row.Collected = row.Collected.Add(rec.Total)
				continue
			}
			row.TotalDue = row.TotalDue.Add(amount)
			row.FixedBreakdown = append(row.FixedBreakdown, FixedDue{Category: category, Amount: amount})
		}

		row.IsDefaulter = row.TotalDue.IsPositive()
		report.TotalCollected = report.TotalCollected.Add(row.Collected)
		report.TotalOutstanding = report.TotalOutstanding.Add(row.TotalDue)
		report.PerStudent = append(report.PerStudent, row)
	}
	return report
}

// ForClass returns the rows of students in class, in roster order.
// Report totals are not affected.
func (r Report) ForClass(class string) []StudentDue {
	var out []StudentDue
	for _, s := range r.PerStudent {
		if s.Class == class {
			out = append(out, s)
		}
	}
	return out
}

// Defaulters returns the rows with a positive total due.
func (r Report) Defaulters() []StudentDue {
	var out []StudentDue
	for _, s := range r.PerStudent {
		if s.IsDefaulter {
			out = append(out, s)
		}
	}
	return out
}

// Student returns one student's row.
func (r Report) Student(id string) (StudentDue, bool) {
	for _, s := range r.PerStudent {
		if s.StudentID == id {
			return s, true
		}
	}
	return StudentDue{}, false
}

// ClearanceRate is the rounded percentage of students with nothing due.
func (r Report) ClearanceRate() int {
	n := len(r.PerStudent)
	if n == 0 {
		return 0
	}
	clear := n - len(r.Defaulters())
	return (clear*100 + n/2) / n
}
