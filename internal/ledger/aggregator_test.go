package ledger

import (
	"reflect"
	"testing"

	"feeledger/internal/core"
)

const tuition = "Monthly Tuition Fee"

func class1Fixture() ([]core.Student, []core.FeeStructureEntry) {
	students := []core.Student{{ID: "S1", Name: "Asha", Class: "Class 1", Status: core.StudentActive}}
	structures := []core.FeeStructureEntry{{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)}}
	return students, structures
}

func paid(student, feeType, month string, total int64) core.FeePaymentRecord {
	return core.FeePaymentRecord{
		ReceiptNo: "REC-" + student + month,
		StudentID: student,
		FeeType:   feeType,
		Month:     month,
		Amount:    core.Rupees(total),
		Total:     core.Rupees(total),
		Status:    core.StatusPaid,
	}
}

func TestAggregatePaidAndUnpaidMonth(t *testing.T) {
	students, structures := class1Fixture()
	payments := []core.FeePaymentRecord{paid("S1", tuition, "Baishakh", 2600)}
	sel := NewSelection().SetMonths(tuition, core.Baishakh, core.Jestha)

	r := Aggregate(students, structures, payments, sel)

	if r.TotalCollected != core.Rupees(2600) {
		t.Fatalf("collected = %s", r.TotalCollected)
	}
	if r.TotalOutstanding != core.Rupees(2600) {
		t.Fatalf("outstanding = %s", r.TotalOutstanding)
	}
	row := r.PerStudent[0]
	if !row.IsDefaulter || row.TotalDue != core.Rupees(2600) {
		t.Fatalf("unexpected row %+v", row)
	}
	want := []MonthlyDue{{Month: core.Jestha, Category: tuition, Amount: core.Rupees(2600)}}
	if !reflect.DeepEqual(row.MonthlyBreakdown, want) {
		t.Fatalf("breakdown = %+v", row.MonthlyBreakdown)
	}
	if len(row.FixedBreakdown) != 0 {
		t.Fatalf("unexpected fixed dues %+v", row.FixedBreakdown)
	}
}

func TestAggregateOneTimeIgnoresMonth(t *testing.T) {
	students := []core.Student{{ID: "S1", Class: "Class 1"}}
	structures := []core.FeeStructureEntry{{Class: "Class 1", FeeType: "Admission Fee", Amount: core.Rupees(5000)}}
	payments := []core.FeePaymentRecord{paid("S1", "Admission Fee", "Shrawan", 4500)}
	sel := NewSelection().ToggleOneTime("Admission Fee")

	r := Aggregate(students, structures, payments, sel)

	if r.TotalCollected != core.Rupees(4500) || r.TotalOutstanding.Paisa != 0 {
		t.Fatalf("collected=%s outstanding=%s", r.TotalCollected, r.TotalOutstanding)
	}
	if r.PerStudent[0].IsDefaulter {
		t.Fatalf("student should not be a defaulter")
	}
}

func TestAggregateMissingStructureContributesNothing(t *testing.T) {
	students := []core.Student{{ID: "S1", Class: "Class 9"}}
	structures := []core.FeeStructureEntry{
		{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)},
		{Class: "Class 9", FeeType: "Bus Fee", Amount: core.Money{}},
	}
	payments := []core.FeePaymentRecord{
		paid("S1", tuition, "Baishakh", 2600),
		paid("S1", "Bus Fee", "Baishakh", 800),
	}
	sel := NewSelection().
		SetMonths(tuition, core.Baishakh).
		SetMonths("Bus Fee", core.Baishakh)

	r := Aggregate(students, structures, payments, sel)

	row := r.PerStudent[0]
	if row.TotalDue.Paisa != 0 || row.IsDefaulter || len(row.MonthlyBreakdown) != 0 {
		t.Fatalf("expected nothing due, got %+v", row)
	}
	// Paid records for an unpriced obligation are not counted as collected.
	if r.TotalCollected.Paisa != 0 {
		t.Fatalf("collected = %s", r.TotalCollected)
	}
}

func TestAggregateMatching(t *testing.T) {
	students, structures := class1Fixture()
	sel := NewSelection().SetMonths(tuition, core.Baishakh)

	cases := []struct {
		name      string
		record    core.FeePaymentRecord
		collected int64
		due       int64
	}{
		{"exact", paid("S1", tuition, "Baishakh", 2600), 2600, 0},
		{"discounted total counts", paid("S1", tuition, "Baishakh", 2000), 2000, 0},
		{"month case differs", paid("S1", tuition, "baishakh", 2600), 0, 2600},
		{"fee type case differs", paid("S1", "monthly tuition fee", "Baishakh", 2600), 0, 2600},
		{"other student", paid("S2", tuition, "Baishakh", 2600), 0, 2600},
		{"other month", paid("S1", tuition, "Jestha", 2600), 0, 2600},
		{"due status", func() core.FeePaymentRecord {
			r := paid("S1", tuition, "Baishakh", 2600)
			r.Status = core.StatusDue
			return r
		}(), 0, 2600},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Aggregate(students, structures, []core.FeePaymentRecord{tc.record}, sel)
			if r.TotalCollected != core.Rupees(tc.collected) {
				t.Errorf("collected = %s, want %d", r.TotalCollected, tc.collected)
			}
			if r.TotalOutstanding != core.Rupees(tc.due) {
				t.Errorf("outstanding = %s, want %d", r.TotalOutstanding, tc.due)
			}
		})
	}
}

func TestAggregateFirstMatchWins(t *testing.T) {
	students := []core.Student{{ID: "S1", Class: "Class 1"}}
	structures := []core.FeeStructureEntry{
		{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)},
		{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(9999)},
	}
	payments := []core.FeePaymentRecord{
		paid("S1", tuition, "Baishakh", 2500),
		paid("S1", tuition, "Baishakh", 2600),
	}
	sel := NewSelection().SetMonths(tuition, core.Baishakh, core.Jestha)

	r := Aggregate(students, structures, payments, sel)

	if r.TotalCollected != core.Rupees(2500) {
		t.Fatalf("collected = %s, want first record only", r.TotalCollected)
	}
	if r.TotalOutstanding != core.Rupees(2600) {
		t.Fatalf("outstanding = %s, want first structure entry", r.TotalOutstanding)
	}
}

func TestAggregateEmptySelection(t *testing.T) {
	students, structures := class1Fixture()
	students = append(students, core.Student{ID: "S2", Class: "Class 1"})

	r := Aggregate(students, structures, nil, NewSelection())

	if r.TotalCollected.Paisa != 0 || r.TotalOutstanding.Paisa != 0 {
		t.Fatalf("expected zero totals, got %+v", r)
	}
	if len(r.PerStudent) != 2 {
		t.Fatalf("every student gets a row, got %d", len(r.PerStudent))
	}
	for _, row := range r.PerStudent {
		if row.IsDefaulter {
			t.Fatalf("no student should be a defaulter: %+v", row)
		}
	}

	// A monthly category with no months contributes nothing either.
	r = Aggregate(students, structures, nil, NewSelection().ToggleMonthly(tuition))
	if r.TotalOutstanding.Paisa != 0 {
		t.Fatalf("outstanding = %s", r.TotalOutstanding)
	}
}

func TestAggregateBreakdownOrder(t *testing.T) {
	students := []core.Student{{ID: "S1", Class: "Class 1"}}
	structures := []core.FeeStructureEntry{
		{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)},
		{Class: "Class 1", FeeType: "Bus Fee", Amount: core.Rupees(800)},
		{Class: "Class 1", FeeType: "Exam Fee", Amount: core.Rupees(500)},
	}
	sel := NewSelection().
		SetMonths("Bus Fee", core.Jestha, core.Baishakh).
		SetMonths(tuition, core.Baishakh).
		ToggleOneTime("Exam Fee")

	row := Aggregate(students, structures, nil, sel).PerStudent[0]

	want := []MonthlyDue{
		{Month: core.Baishakh, Category: "Bus Fee", Amount: core.Rupees(800)},
		{Month: core.Baishakh, Category: tuition, Amount: core.Rupees(2600)},
		{Month: core.Jestha, Category: "Bus Fee", Amount: core.Rupees(800)},
	}
	if !reflect.DeepEqual(row.MonthlyBreakdown, want) {
		t.Fatalf("breakdown = %+v", row.MonthlyBreakdown)
	}
	if len(row.FixedBreakdown) != 1 || row.FixedBreakdown[0].Category != "Exam Fee" {
		t.Fatalf("fixed = %+v", row.FixedBreakdown)
	}
	if row.TotalDue != core.Rupees(4700) {
		t.Fatalf("total due = %s", row.TotalDue)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	students, structures := class1Fixture()
	payments := []core.FeePaymentRecord{paid("S1", tuition, "Baishakh", 2600)}
	sel := NewSelection().SetMonths(tuition, core.Months()...)

	a := Aggregate(students, structures, payments, sel)
	b := Aggregate(students, structures, payments, sel)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestAggregateAddingPaymentNeverIncreasesDue(t *testing.T) {
	students, structures := class1Fixture()
	sel := NewSelection().SetMonths(tuition, core.Baishakh, core.Jestha, core.Ashadh)

	var payments []core.FeePaymentRecord
	prev := Aggregate(students, structures, payments, sel)
	for _, m := range []string{"Jestha", "Baishakh", "Ashadh"} {
		payments = append(payments, paid("S1", tuition, m, 2600))
		next := Aggregate(students, structures, payments, sel)
		if next.TotalOutstanding.Paisa > prev.TotalOutstanding.Paisa {
			t.Fatalf("outstanding grew after paying %s: %s -> %s", m, prev.TotalOutstanding, next.TotalOutstanding)
		}
		prev = next
	}
	if prev.TotalOutstanding.Paisa != 0 || prev.PerStudent[0].IsDefaulter {
		t.Fatalf("expected cleared student, got %+v", prev.PerStudent[0])
	}
}

func TestAggregateDiscountedPaymentMovesBothTotals(t *testing.T) {
	students, structures := class1Fixture()
	sel := NewSelection().SetMonths(tuition, core.Baishakh, core.Jestha)

	before := Aggregate(students, structures, nil, sel)

	discounted := paid("S1", tuition, "Jestha", 2600)
	discounted.Discount = core.Rupees(600)
	discounted.Total = core.Rupees(2000)
	after := Aggregate(students, structures, []core.FeePaymentRecord{discounted}, sel)

	// Outstanding drops by the structure price, collected rises by the total.
	if got := before.TotalOutstanding.Sub(after.TotalOutstanding); got != core.Rupees(2600) {
		t.Fatalf("outstanding dropped by %s, want 2600", got)
	}
	if got := after.TotalCollected.Sub(before.TotalCollected); got != core.Rupees(2000) {
		t.Fatalf("collected rose by %s, want 2000", got)
	}
	row := after.PerStudent[0]
	if row.TotalDue != core.Rupees(2600) || len(row.MonthlyBreakdown) != 1 || row.MonthlyBreakdown[0].Month != core.Baishakh {
		t.Fatalf("row = %+v", row)
	}
}

func TestAggregateDoesNotMutateInputs(t *testing.T) {
	students, structures := class1Fixture()
	payments := []core.FeePaymentRecord{paid("S1", tuition, "Baishakh", 2600)}
	sel := NewSelection().SetMonths(tuition, core.Baishakh, core.Jestha)

	sCopy := append([]core.Student(nil), students...)
	fCopy := append([]core.FeeStructureEntry(nil), structures...)
	pCopy := append([]core.FeePaymentRecord(nil), payments...)
	selBefore := sel.Monthly()

	Aggregate(students, structures, payments, sel)

	if !reflect.DeepEqual(students, sCopy) || !reflect.DeepEqual(structures, fCopy) || !reflect.DeepEqual(payments, pCopy) {
		t.Fatalf("inputs mutated")
	}
	if !reflect.DeepEqual(sel.Monthly(), selBefore) {
		t.Fatalf("selection mutated")
	}
}

func TestReportViews(t *testing.T) {
	students := []core.Student{
		{ID: "S1", Class: "Class 1"},
		{ID: "S2", Class: "Class 2"},
		{ID: "S3", Class: "Class 1"},
	}
	structures := []core.FeeStructureEntry{
		{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)},
		{Class: "Class 2", FeeType: tuition, Amount: core.Rupees(2800)},
	}
	payments := []core.FeePaymentRecord{paid("S3", tuition, "Baishakh", 2600)}
	r := Aggregate(students, structures, payments, NewSelection().SetMonths(tuition, core.Baishakh))

	if got := r.ForClass("Class 1"); len(got) != 2 || got[0].StudentID != "S1" || got[1].StudentID != "S3" {
		t.Fatalf("ForClass = %+v", got)
	}
	if got := r.Defaulters(); len(got) != 2 {
		t.Fatalf("Defaulters = %+v", got)
	}
	if row, ok := r.Student("S2"); !ok || row.TotalDue != core.Rupees(2800) {
		t.Fatalf("Student(S2) = %+v, %v", row, ok)
	}
	if _, ok := r.Student("S9"); ok {
		t.Fatalf("unknown student found")
	}
	if got := r.ClearanceRate(); got != 33 {
		t.Fatalf("ClearanceRate = %d, want 33", got)
	}
	if (Report{}).ClearanceRate() != 0 {
		t.Fatalf("empty report clearance should be 0")
	}
}
