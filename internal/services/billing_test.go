package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/sheets/memory"
)

const (
	tuition   = "Monthly Tuition Fee"
	annual    = "Annual Fee"
	admission = "Admission Fee"
)

var paidOn = core.BSDate{Year: 2081, Month: core.Jestha, Day: 12}

func newTestStore() *memory.Store {
	return memory.New(
		[]core.Student{
			{ID: "S1", Name: "Asha Thapa", Class: "Class 1", Section: "A", Status: core.StudentActive},
			{ID: "S2", Name: "Bikash Rai", Class: "Class 2", Status: core.StudentActive},
		},
		[]core.FeeStructureEntry{
			{Class: "Class 1", FeeType: tuition, Amount: core.Rupees(2600)},
			{Class: "Class 1", FeeType: annual, Amount: core.Rupees(1200)},
			{Class: "Class 2", FeeType: tuition, Amount: core.Rupees(2800)},
		},
		nil,
	)
}

func price(rupees int64) *core.Money {
	m := core.Rupees(rupees)
	return &m
}

func newTestBilling(store *memory.Store) *BillingService {
	svc := NewBillingService(store, store)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_123_456) }
	return svc
}

func TestCreateBill(t *testing.T) {
	store := newTestStore()
	svc := newTestBilling(store)
	invalidated := 0
	svc.OnWrite(func() { invalidated++ })

	bill, err := svc.CreateBill(context.Background(), BillRequest{
		StudentID: "S1",
		Items: []BillItem{
			{FeeType: tuition, Month: "Baishakh"},
			{FeeType: annual, Amount: price(1500), Discount: core.Rupees(300)},
		},
		PaidDate:    paidOn,
		CollectedBy: "admin",
	})
	if err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}

	if bill.ReceiptNo != "REC-123456" {
		t.Errorf("ReceiptNo = %q, want REC-123456", bill.ReceiptNo)
	}
	if bill.Total != core.Rupees(3800) {
		t.Errorf("Total = %v, want 3800", bill.Total)
	}
	if invalidated != 1 {
		t.Errorf("OnWrite hooks ran %d times, want 1", invalidated)
	}

	records, _ := store.ListPayments(context.Background())
	if len(records) != 2 {
		t.Fatalf("stored %d records, want 2", len(records))
	}
	first := records[0]
	if first.Amount != core.Rupees(2600) || first.Month != "Baishakh" || first.StudentName != "Asha Thapa" || first.Class != "Class 1" {
		t.Errorf("tuition line = %+v", first)
	}
	if first.PaymentMode != "Cash" || first.Status != core.StatusPaid || first.PaidDate != paidOn {
		t.Errorf("tuition line defaults = %+v", first)
	}
	second := records[1]
	if second.Month != "" || second.Total != core.Rupees(1200) || second.ReceiptNo != bill.ReceiptNo {
		t.Errorf("annual line = %+v", second)
	}
}

func TestCreateBillRejects(t *testing.T) {
	tests := []struct {
		name string
		req  BillRequest
		want error
	}{
		{
			name: "no items",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn},
			want: ErrNoBillItems,
		},
		{
			name: "unknown student",
			req:  BillRequest{StudentID: "S9", PaidDate: paidOn, Items: []BillItem{{FeeType: annual}}},
			want: ErrStudentNotFound,
		},
		{
			name: "missing paid date",
			req:  BillRequest{StudentID: "S1", Items: []BillItem{{FeeType: annual}}},
			want: ErrInvalidBill,
		},
		{
			name: "monthly fee without month",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: tuition}}},
			want: core.ErrInvalidMonth,
		},
		{
			name: "one-time fee with month",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual, Month: "Magh"}}},
			want: core.ErrInvalidMonth,
		},
		{
			name: "no structure price",
			req:  BillRequest{StudentID: "S2", PaidDate: paidOn, Items: []BillItem{{FeeType: admission}}},
			want: core.ErrInvalidAmount,
		},
		{
			name: "discount above amount",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual, Discount: core.Rupees(5000)}}},
			want: core.ErrDiscountExceedsAmount,
		},
		{
			name: "unknown category",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: "Pony Fee", Amount: price(10)}}},
			want: ErrInvalidBill,
		},
		{
			name: "explicit zero amount",
			req:  BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual, Amount: price(0)}}},
			want: core.ErrInvalidAmount,
		},
		{
			name: "same month billed twice",
			req: BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{
				{FeeType: tuition, Month: "Baishakh"},
				{FeeType: tuition, Month: "Baishakh", Amount: price(2000)},
			}},
			want: ErrInvalidBill,
		},
		{
			name: "one-time fee billed twice",
			req: BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{
				{FeeType: annual},
				{FeeType: annual},
			}},
			want: ErrInvalidBill,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			svc := newTestBilling(store)

			_, err := svc.CreateBill(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateBill() error = %v, want %v", err, tt.want)
			}
			if records, _ := store.ListPayments(context.Background()); len(records) != 0 {
				t.Fatalf("rejected bill stored %d records", len(records))
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) AppendPayments(context.Context, []core.FeePaymentRecord) error {
	return errors.New("sheet unavailable")
}

func TestCreateBillWriterFailure(t *testing.T) {
	store := newTestStore()
	svc := NewBillingService(store, failingWriter{})
	called := false
	svc.OnWrite(func() { called = true })

	_, err := svc.CreateBill(context.Background(), BillRequest{
		StudentID: "S1",
		PaidDate:  paidOn,
		Items:     []BillItem{{FeeType: annual}},
	})
	if err == nil {
		t.Fatal("expected error from writer")
	}
	if called {
		t.Error("OnWrite must not run when the write fails")
	}
}

func TestCreateBillRefusesPaidFees(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := newTestBilling(store)

	first := BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{
		{FeeType: tuition, Month: "Baishakh"},
		{FeeType: annual},
	}}
	if _, err := svc.CreateBill(ctx, first); err != nil {
		t.Fatalf("first bill: %v", err)
	}

	tests := []struct {
		name  string
		items []BillItem
	}{
		{"paid month", []BillItem{{FeeType: tuition, Month: "Baishakh"}}},
		{"paid one-time fee", []BillItem{{FeeType: annual, Amount: price(1000)}}},
		{"paid month among new ones", []BillItem{{FeeType: tuition, Month: "Jestha"}, {FeeType: tuition, Month: "Baishakh"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBill(ctx, BillRequest{StudentID: "S1", PaidDate: paidOn, Items: tt.items})
			if !errors.Is(err, ErrAlreadyPaid) || !errors.Is(err, ErrInvalidBill) {
				t.Fatalf("CreateBill() error = %v, want ErrAlreadyPaid", err)
			}
		})
	}

	// Another month, or the same month for another student, is still billable.
	if _, err := svc.CreateBill(ctx, BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: tuition, Month: "Jestha"}}}); err != nil {
		t.Fatalf("Jestha bill: %v", err)
	}
	if _, err := svc.CreateBill(ctx, BillRequest{StudentID: "S2", PaidDate: paidOn, Items: []BillItem{{FeeType: tuition, Month: "Baishakh"}}}); err != nil {
		t.Fatalf("S2 bill: %v", err)
	}
	if records, _ := store.ListPayments(ctx); len(records) != 4 {
		t.Fatalf("ledger has %d records, want 4", len(records))
	}
}

func TestCreateBillSkipsUsedReceiptNumbers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	// The clock wrapped: a bill from 1000 seconds earlier holds REC-123456.
	err := store.AppendPayments(ctx, []core.FeePaymentRecord{{
		ReceiptNo: "REC-123456", StudentID: "S2", Month: "Baishakh", FeeType: tuition,
		Amount: core.Rupees(2800), Total: core.Rupees(2800), Status: core.StatusPaid,
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestBilling(store)

	bill, err := svc.CreateBill(ctx, BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual}}})
	if err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}
	if bill.ReceiptNo != "REC-123457" {
		t.Fatalf("ReceiptNo = %q, want REC-123457", bill.ReceiptNo)
	}

	// Same clock again: the next free number is taken.
	bill, err = svc.CreateBill(ctx, BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: tuition, Month: "Magh"}}})
	if err != nil || bill.ReceiptNo != "REC-123458" {
		t.Fatalf("second bill = %q, %v; want REC-123458", bill.ReceiptNo, err)
	}
}

// racingWriter reports the first receipt number as taken, as another
// process writing the same ledger would.
type racingWriter struct {
	*memory.Store
	tried []string
}

func (w *racingWriter) AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error {
	w.tried = append(w.tried, records[0].ReceiptNo)
	if len(w.tried) == 1 {
		return fmt.Errorf("insert: %w", core.ErrDuplicateReceipt)
	}
	return w.Store.AppendPayments(ctx, records)
}

func TestCreateBillRetriesTakenReceipt(t *testing.T) {
	store := newTestStore()
	writer := &racingWriter{Store: store}
	svc := NewBillingService(store, writer)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_999_999) }

	bill, err := svc.CreateBill(context.Background(), BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual}}})
	if err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}
	if len(writer.tried) != 2 || writer.tried[0] != "REC-999999" || bill.ReceiptNo != "REC-000000" {
		t.Fatalf("tried %v, got %q", writer.tried, bill.ReceiptNo)
	}
	records, _ := store.ListPayments(context.Background())
	if len(records) != 1 || records[0].ReceiptNo != "REC-000000" {
		t.Fatalf("stored %+v", records)
	}
}
