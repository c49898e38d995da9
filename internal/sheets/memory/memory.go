package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"feeledger/internal/core"
)

// Store keeps the roster, structures, categories and ledger in memory.
type Store struct {
	mu         sync.Mutex
	students   []core.Student
	structures []core.FeeStructureEntry
	catalog    *core.Catalog
	records    []core.FeePaymentRecord
}

func New(students []core.Student, structures []core.FeeStructureEntry, categories []core.Category) *Store {
	catalog := core.DefaultCatalog()
	if len(categories) > 0 {
		catalog = core.NewCatalog(categories)
	}
	return &Store{
		students:   append([]core.Student(nil), students...),
		structures: append([]core.FeeStructureEntry(nil), structures...),
		catalog:    catalog,
	}
}

// NewFromFiles seeds the store from pipe separated text files in base:
//
//	seed_students.txt    ID|Name|Class[|Section|RollNo]
//	seed_structures.txt  Class|FeeType|Amount
//	seed_categories.txt  Name[|monthly|one-time[|Description]]
//
// Missing files leave the corresponding data empty; categories fall back to
// the default catalog. Malformed lines are skipped.
func NewFromFiles(base string) *Store {
	var students []core.Student
	for _, f := range readLines(filepath.Join(base, "seed_students.txt")) {
		if len(f) < 3 {
			continue
		}
		st := core.Student{ID: f[0], Name: f[1], Class: f[2], Status: core.StudentActive}
		if len(f) > 3 {
			st.Section = f[3]
		}
		if len(f) > 4 {
			st.RollNo = f[4]
		}
		students = append(students, st)
	}

	var structures []core.FeeStructureEntry
	for _, f := range readLines(filepath.Join(base, "seed_structures.txt")) {
		if len(f) < 3 {
			continue
		}
		amount, err := core.ParseAmount(f[2])
		if err != nil {
			continue
		}
		structures = append(structures, core.FeeStructureEntry{Class: f[0], FeeType: f[1], Amount: amount})
	}

	var categories []core.Category
	for _, f := range readLines(filepath.Join(base, "seed_categories.txt")) {
		c := core.Category{Name: f[0]}
		if len(f) > 1 {
			c.Kind, _ = core.ParseFeeKind(f[1])
		}
		if len(f) > 2 {
			c.Description = f[2]
		}
		categories = append(categories, c)
	}
	return New(students, structures, categories)
}

func (s *Store) ListStudents(_ context.Context) ([]core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Student(nil), s.students...), nil
}

func (s *Store) ListStructures(_ context.Context) ([]core.FeeStructureEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FeeStructureEntry(nil), s.structures...), nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.All(), nil
}

func (s *Store) ListPayments(_ context.Context) ([]core.FeePaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FeePaymentRecord(nil), s.records...), nil
}

// AppendPayments validates every record first and stores all or nothing.
// A receipt number already in the ledger is refused.
func (s *Store) AppendPayments(_ context.Context, records []core.FeePaymentRecord) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.records {
		for _, r := range records {
			if r.ReceiptNo != "" && r.ReceiptNo == stored.ReceiptNo {
				return fmt.Errorf("%s: %w", r.ReceiptNo, core.ErrDuplicateReceipt)
			}
		}
	}
	s.records = append(s.records, records...)
	return nil
}

// SaveStudent replaces the student with the same ID or adds a new one.
func (s *Store) SaveStudent(_ context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.students {
		if s.students[i].ID == st.ID {
			s.students[i] = st
			return nil
		}
	}
	s.students = append(s.students, st)
	return nil
}

// SaveStructure sets the price of the first entry for the class and fee
// type, which is the one lookups read, or adds a new entry.
func (s *Store) SaveStructure(_ context.Context, e core.FeeStructureEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.structures {
		if s.structures[i].Class == e.Class && s.structures[i].FeeType == e.FeeType {
			s.structures[i].Amount = e.Amount
			return nil
		}
	}
	s.structures = append(s.structures, e)
	return nil
}

// SaveCategory replaces the category with the same name or appends it to
// the catalog.
func (s *Store) SaveCategory(_ context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cats := s.catalog.All()
	replaced := false
	for i := range cats {
		if cats[i].Name == c.Name {
			cats[i] = c
			replaced = true
		}
	}
	if !replaced {
		cats = append(cats, c)
	}
	s.catalog = core.NewCatalog(cats)
	return nil
}

func readLines(path string) [][]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" {
			continue
		}
		out = append(out, fields)
	}
	return out
}
