package adapters

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"feeledger/internal/core"
	"feeledger/internal/services"
	"feeledger/internal/storage"
)

func TestSQLiteAdapterRoundTrip(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "feeledger.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	svc := services.NewReceiptService(repo, nil)
	defer svc.Close()
	a := NewSQLiteAdapter(repo, svc)
	ctx := context.Background()

	if err := repo.ReplaceStudents(ctx, []core.Student{{ID: "S1", Name: "Asha", Class: "Class 1"}}); err != nil {
		t.Fatalf("seed students: %v", err)
	}
	if err := repo.ReplaceStructures(ctx, []core.FeeStructureEntry{{Class: "Class 1", FeeType: "Annual Fee", Amount: core.Rupees(1200)}}); err != nil {
		t.Fatalf("seed structures: %v", err)
	}

	rec := core.FeePaymentRecord{
		ReceiptNo: "REC-000001", StudentID: "S1", FeeType: "Annual Fee",
		Amount: core.Rupees(1200), Total: core.Rupees(1200), Status: core.StatusPaid,
	}
	if err := a.AppendPayments(ctx, []core.FeePaymentRecord{rec}); err != nil {
		t.Fatalf("AppendPayments() error = %v", err)
	}

	students, _ := a.ListStudents(ctx)
	structures, _ := a.ListStructures(ctx)
	payments, _ := a.ListPayments(ctx)
	cats, _ := a.ListCategories(ctx)
	if len(students) != 1 || len(structures) != 1 || len(payments) != 1 || len(cats) == 0 {
		t.Fatalf("reads: %d students, %d structures, %d payments, %d categories",
			len(students), len(structures), len(payments), len(cats))
	}
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if err := a.SaveStudent(ctx, core.Student{ID: "S2", Name: "Bikash", Class: "Class 2", Status: core.StudentActive}); err != nil {
		t.Fatalf("SaveStudent() error = %v", err)
	}
	if err := a.SaveStructure(ctx, core.FeeStructureEntry{Class: "Class 1", FeeType: "Annual Fee", Amount: core.Rupees(1500)}); err != nil {
		t.Fatalf("SaveStructure() error = %v", err)
	}
	if err := a.SaveCategory(ctx, core.Category{Name: "Swimming Fee", Kind: core.Monthly}); err != nil {
		t.Fatalf("SaveCategory() error = %v", err)
	}
	students, _ = a.ListStudents(ctx)
	structures, _ = a.ListStructures(ctx)
	if len(students) != 2 || len(structures) != 1 || structures[0].Amount != core.Rupees(1500) {
		t.Fatalf("after saves: students %+v structures %+v", students, structures)
	}
	edits, _ := repo.PendingReferenceEdits(ctx)
	if edits.Len() != 3 {
		t.Fatalf("pending edits = %d, want 3", edits.Len())
	}

	// A second bill under the same number is refused, not appended.
	if err := a.AppendPayments(ctx, []core.FeePaymentRecord{rec}); !errors.Is(err, core.ErrDuplicateReceipt) {
		t.Fatalf("reused receipt: err = %v", err)
	}
}
