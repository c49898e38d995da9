package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"feeledger/internal/core"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := New([]core.Student{{ID: "S1", Name: "Asha", Class: "Class 1"}}, nil, nil)
	ctx := context.Background()

	rec := core.FeePaymentRecord{
		ReceiptNo: "REC-000001",
		StudentID: "S1",
		FeeType:   "Monthly Tuition Fee",
		Month:     "Baishakh",
		Amount:    core.Rupees(2600),
		Total:     core.Rupees(2600),
		Status:    core.StatusPaid,
	}
	if err := s.AppendPayments(ctx, []core.FeePaymentRecord{rec}); err != nil {
		t.Fatalf("append: %v", err)
	}

	bad := rec
	bad.Total = core.Rupees(1)
	if err := s.AppendPayments(ctx, []core.FeePaymentRecord{rec, bad}); err == nil {
		t.Fatalf("expected validation error")
	}

	again := rec
	again.Month = "Jestha"
	if err := s.AppendPayments(ctx, []core.FeePaymentRecord{again}); !errors.Is(err, core.ErrDuplicateReceipt) {
		t.Fatalf("reused receipt: err = %v, want ErrDuplicateReceipt", err)
	}

	got, err := s.ListPayments(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected ledger: %v err=%v", got, err)
	}

	cats, _ := s.ListCategories(ctx)
	if len(cats) != core.DefaultCatalog().Len() {
		t.Fatalf("expected default catalog, got %d categories", len(cats))
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	students, _ := s.ListStudents(context.Background())
	if len(students) != 0 {
		t.Fatalf("expected empty roster when files missing")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_students.txt", "# id|name|class\nS1|Asha|Class 1|A|1\nS2|Bikash|Class 2\nbroken\n")
	mustWrite("seed_structures.txt", "Class 1|Monthly Tuition Fee|2600\nClass 2|Bus/Transportation Fee|abc\n")
	mustWrite("seed_categories.txt", "Monthly Tuition Fee|monthly\nSwimming Fee|monthly|Pool access\nPicnic Fee\n")

	s = NewFromFiles(dir)
	ctx := context.Background()

	students, _ = s.ListStudents(ctx)
	if len(students) != 2 || students[0].Section != "A" || students[0].RollNo != "1" {
		t.Fatalf("unexpected students: %+v", students)
	}
	structures, _ := s.ListStructures(ctx)
	if len(structures) != 1 || structures[0].Amount != core.Rupees(2600) {
		t.Fatalf("unexpected structures: %+v", structures)
	}
	cats, _ := s.ListCategories(ctx)
	if len(cats) != 3 {
		t.Fatalf("unexpected categories: %+v", cats)
	}
	if cats[1].Kind != core.Monthly || cats[1].Description != "Pool access" {
		t.Fatalf("explicit kind lost: %+v", cats[1])
	}
	if cats[2].Kind != core.OneTime {
		t.Fatalf("untagged category should be one-time: %+v", cats[2])
	}
}

func TestMemoryStoreSaves(t *testing.T) {
	ctx := context.Background()
	s := New(
		[]core.Student{{ID: "S1", Name: "Asha", Class: "Class 1", Status: core.StudentActive}},
		[]core.FeeStructureEntry{
			{Class: "Class 1", FeeType: "Monthly Tuition Fee", Amount: core.Rupees(2600)},
			{Class: "Class 1", FeeType: "Monthly Tuition Fee", Amount: core.Rupees(9999)},
		},
		nil,
	)

	tests := []struct {
		name    string
		save    func() error
		wantErr bool
	}{
		{"update student", func() error {
			return s.SaveStudent(ctx, core.Student{ID: "S1", Name: "Asha Thapa", Class: "Class 2", Status: core.StudentActive})
		}, false},
		{"new student", func() error {
			return s.SaveStudent(ctx, core.Student{ID: "S2", Name: "Bikash", Class: "Class 1", Status: core.StudentLeft})
		}, false},
		{"student without name", func() error {
			return s.SaveStudent(ctx, core.Student{ID: "S3", Class: "Class 1", Status: core.StudentActive})
		}, true},
		{"reprice first entry", func() error {
			return s.SaveStructure(ctx, core.FeeStructureEntry{Class: "Class 1", FeeType: "Monthly Tuition Fee", Amount: core.Rupees(2700)})
		}, false},
		{"new structure", func() error {
			return s.SaveStructure(ctx, core.FeeStructureEntry{Class: "Class 2", FeeType: "Annual Fee", Amount: core.Rupees(1200)})
		}, false},
		{"retag category", func() error {
			return s.SaveCategory(ctx, core.Category{Name: "Library Fee", Kind: core.Monthly})
		}, false},
		{"new category", func() error {
			return s.SaveCategory(ctx, core.Category{Name: "Swimming Fee", Kind: core.Monthly, Description: "Pool"})
		}, false},
		{"category without kind", func() error {
			return s.SaveCategory(ctx, core.Category{Name: "Picnic Fee"})
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.save(); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	students, _ := s.ListStudents(ctx)
	if len(students) != 2 || students[0].Name != "Asha Thapa" || students[0].Class != "Class 2" || students[1].Status != core.StudentLeft {
		t.Fatalf("students = %+v", students)
	}
	structures, _ := s.ListStructures(ctx)
	if len(structures) != 3 || structures[0].Amount != core.Rupees(2700) || structures[1].Amount != core.Rupees(9999) {
		t.Fatalf("structures = %+v", structures)
	}
	cats, _ := s.ListCategories(ctx)
	if len(cats) != core.DefaultCatalog().Len()+1 {
		t.Fatalf("catalog has %d categories", len(cats))
	}
	for _, c := range cats {
		if c.Name == "Library Fee" && c.Kind != core.Monthly {
			t.Fatalf("Library Fee kind = %s", c.Kind)
		}
	}
}
