package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"feeledger/internal/core"
	"feeledger/internal/log"
	"feeledger/internal/sheets"
)

var ErrInvalidReference = errors.New("invalid reference data")

// ReferenceService saves edits to the roster, the fee structure and the
// category catalog.
type ReferenceService struct {
	categories sheets.CategoryReader
	writer     sheets.ReferenceWriter
	onWrite    []func()
}

func NewReferenceService(categories sheets.CategoryReader, writer sheets.ReferenceWriter) *ReferenceService {
	return &ReferenceService{categories: categories, writer: writer}
}

// OnWrite registers fn to run after every saved edit.
func (s *ReferenceService) OnWrite(fn func()) {
	s.onWrite = append(s.onWrite, fn)
}

// SaveStudent adds or replaces a student. A blank status means Active.
func (s *ReferenceService) SaveStudent(ctx context.Context, st core.Student) (core.Student, error) {
	st.ID = strings.TrimSpace(st.ID)
	st.RollNo = strings.TrimSpace(st.RollNo)
	st.Name = strings.TrimSpace(st.Name)
	st.Class = strings.TrimSpace(st.Class)
	st.Section = strings.TrimSpace(st.Section)
	if st.Status == "" {
		st.Status = core.StudentActive
	}
	if err := st.Validate(); err != nil {
		return core.Student{}, fmt.Errorf("%w: student: %w", ErrInvalidReference, err)
	}
	if !core.IsKnownClass(st.Class) {
		return core.Student{}, fmt.Errorf("%w: unknown class %q", ErrInvalidReference, st.Class)
	}
	if err := s.writer.SaveStudent(ctx, st); err != nil {
		return core.Student{}, fmt.Errorf("save student: %w", err)
	}
	s.saved(ctx, "student", st.ID)
	return st, nil
}

// SaveStructure sets the price of a fee type for a class. The fee type must
// be a known category.
func (s *ReferenceService) SaveStructure(ctx context.Context, e core.FeeStructureEntry) (core.FeeStructureEntry, error) {
	e.Class = strings.TrimSpace(e.Class)
	e.FeeType = strings.TrimSpace(e.FeeType)
	if err := e.Validate(); err != nil {
		return core.FeeStructureEntry{}, fmt.Errorf("%w: fee structure: %w", ErrInvalidReference, err)
	}
	if !core.IsKnownClass(e.Class) {
		return core.FeeStructureEntry{}, fmt.Errorf("%w: unknown class %q", ErrInvalidReference, e.Class)
	}
	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		return core.FeeStructureEntry{}, fmt.Errorf("list categories: %w", err)
	}
	if _, ok := core.NewCatalog(cats).Lookup(e.FeeType); !ok {
		return core.FeeStructureEntry{}, fmt.Errorf("%w: unknown fee category %q", ErrInvalidReference, e.FeeType)
	}
	if err := s.writer.SaveStructure(ctx, e); err != nil {
		return core.FeeStructureEntry{}, fmt.Errorf("save fee structure: %w", err)
	}
	s.saved(ctx, "fee_structure", e.Class+"/"+e.FeeType)
	return e, nil
}

// SaveCategory adds or replaces a fee category. Retagging a category changes
// how existing ledger lines for it are matched.
func (s *ReferenceService) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: category: %w", ErrInvalidReference, err)
	}
	if err := s.writer.SaveCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("save fee category: %w", err)
	}
	s.saved(ctx, "fee_category", c.Name)
	return c, nil
}

func (s *ReferenceService) saved(ctx context.Context, kind, key string) {
	for _, fn := range s.onWrite {
		fn()
	}
	log.FromContext(ctx).WithComponent(log.ComponentReference).InfoContext(ctx, "Reference data saved",
		append(log.NewFields().WithOperation(log.OpSave).ToSlice(), "kind", kind, "key", key)...)
}
