package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/sheets/memory"
)

// countingSource counts roster reads to observe snapshot caching.
type countingSource struct {
	*memory.Store
	reads atomic.Int32
	err   error
}

func (c *countingSource) ListStudents(ctx context.Context) ([]core.Student, error) {
	c.reads.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.ListStudents(ctx)
}

func TestDuesServiceAggregates(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	err := store.AppendPayments(ctx, []core.FeePaymentRecord{{
		ReceiptNo: "REC-000001", StudentID: "S1", Month: "Baishakh", FeeType: tuition,
		Amount: core.Rupees(2600), Total: core.Rupees(2600), Status: core.StatusPaid,
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewDuesService(store, 0)
	sel := ledger.NewSelection().
		SetMonths(tuition, core.Baishakh, core.Jestha).
		ToggleOneTime(annual)

	report, err := svc.Dues(ctx, sel)
	if err != nil {
		t.Fatalf("Dues() error = %v", err)
	}
	if report.TotalCollected != core.Rupees(2600) {
		t.Errorf("TotalCollected = %v, want 2600", report.TotalCollected)
	}
	// S1 owes Jestha tuition and the annual fee, S2 owes two months.
	if want := core.Rupees(2600 + 1200 + 2800*2); report.TotalOutstanding != want {
		t.Errorf("TotalOutstanding = %v, want %v", report.TotalOutstanding, want)
	}

	due, err := svc.StudentDue(ctx, "S1", sel)
	if err != nil {
		t.Fatalf("StudentDue() error = %v", err)
	}
	if len(due.MonthlyBreakdown) != 1 || due.MonthlyBreakdown[0].Month != core.Jestha {
		t.Errorf("S1 breakdown = %+v", due.MonthlyBreakdown)
	}

	if _, err := svc.StudentDue(ctx, "S9", sel); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("StudentDue(S9) error = %v, want ErrStudentNotFound", err)
	}
}

func TestDuesServiceRejectsMistaggedSelection(t *testing.T) {
	svc := NewDuesService(newTestStore(), 0)

	_, err := svc.Dues(context.Background(), ledger.NewSelection().SetMonths(annual, core.Magh))
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("Dues() error = %v, want ErrInvalidSelection", err)
	}
}

func TestDuesServiceSnapshotCache(t *testing.T) {
	src := &countingSource{Store: newTestStore()}
	svc := NewDuesService(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Summary(ctx); err != nil {
			t.Fatalf("Summary() error = %v", err)
		}
	}
	if got := src.reads.Load(); got != 1 {
		t.Fatalf("source read %d times, want 1", got)
	}

	svc.Invalidate()
	if _, err := svc.Students(ctx, ""); err != nil {
		t.Fatalf("Students() error = %v", err)
	}
	if got := src.reads.Load(); got != 2 {
		t.Fatalf("source read %d times after invalidate, want 2", got)
	}

	uncached := NewDuesService(src, 0)
	_, _ = uncached.Summary(ctx)
	_, _ = uncached.Summary(ctx)
	if got := src.reads.Load(); got != 4 {
		t.Fatalf("uncached service read %d times in total, want 4", got)
	}
	if uncached.Cache() != nil {
		t.Error("zero ttl should disable the cache")
	}
}

// stallingSource reads the ledger, then holds the result until released.
type stallingSource struct {
	*memory.Store
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingSource) ListPayments(ctx context.Context) ([]core.FeePaymentRecord, error) {
	records, err := s.Store.ListPayments(ctx)
	stall := false
	s.once.Do(func() { stall = true })
	if stall {
		close(s.read)
		<-s.release
	}
	return records, err
}

func TestDuesServiceInvalidateDuringLoad(t *testing.T) {
	store := newTestStore()
	src := &stallingSource{Store: store, read: make(chan struct{}), release: make(chan struct{})}
	dues := NewDuesService(src, time.Minute)
	billing := newTestBilling(store)
	billing.OnWrite(dues.Invalidate)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := dues.Snapshot(ctx)
		done <- err
	}()
	<-src.read

	_, err := billing.CreateBill(ctx, BillRequest{StudentID: "S1", PaidDate: paidOn, Items: []BillItem{{FeeType: annual}}})
	if err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	snap, err := dues.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Payments) != 1 {
		t.Fatalf("snapshot has %d payments after the bill, want 1", len(snap.Payments))
	}
}

func TestDuesServiceSourceError(t *testing.T) {
	src := &countingSource{Store: newTestStore(), err: errors.New("sheet down")}
	svc := NewDuesService(src, time.Minute)

	if _, err := svc.Summary(context.Background()); err == nil {
		t.Fatal("expected source error")
	}
	if svc.Cache().Size() != 0 {
		t.Error("failed load must not be cached")
	}
}

func TestDuesServiceStudentsByClass(t *testing.T) {
	svc := NewDuesService(newTestStore(), 0)

	students, err := svc.Students(context.Background(), "Class 2")
	if err != nil || len(students) != 1 || students[0].ID != "S2" {
		t.Fatalf("Students(Class 2) = %+v, %v", students, err)
	}
	catalog, err := svc.Catalog(context.Background())
	if err != nil || catalog.Len() != core.DefaultCatalog().Len() {
		t.Fatalf("Catalog() = %v, %v", catalog, err)
	}
}
