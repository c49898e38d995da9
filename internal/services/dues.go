package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/sheets"
)

var ErrInvalidSelection = errors.New("invalid selection")

const snapshotKey = "snapshot"

// Snapshot is one consistent read of every input the aggregator needs.
type Snapshot struct {
	Students   []core.Student
	Structures []core.FeeStructureEntry
	Payments   []core.FeePaymentRecord
	Catalog    *core.Catalog
}

// DuesService answers dues queries. The aggregation always runs fresh; only
// the loaded snapshot is cached, for ttl.
type DuesService struct {
	source sheets.Snapshotter
	cache  *cache.LRUCache[Snapshot]

	// gen is bumped by Invalidate. A load only caches its result if no
	// invalidation happened while it was reading.
	mu  sync.Mutex
	gen uint64
}

// NewDuesService caches snapshots for ttl. A ttl of zero or less reads the
// source on every call.
func NewDuesService(source sheets.Snapshotter, ttl time.Duration) *DuesService {
	s := &DuesService{source: source}
	if ttl > 0 {
		s.cache = cache.NewLRUCache[Snapshot](1, ttl)
	}
	return s
}

// Cache exposes the snapshot cache for registration with a cleanup manager.
// It is nil when caching is disabled.
func (s *DuesService) Cache() *cache.LRUCache[Snapshot] {
	return s.cache
}

// Invalidate drops the cached snapshot so the next query rereads the source.
func (s *DuesService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *DuesService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// store caches snap unless the source changed since gen was read.
func (s *DuesService) store(gen uint64, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.cache.Set(snapshotKey, snap)
	}
}

// Snapshot loads the four inputs concurrently.
func (s *DuesService) Snapshot(ctx context.Context) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(snapshotKey); ok {
			return snap, nil
		}
	}

	gen := s.generation()
	var (
		snap Snapshot
		cats []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if snap.Students, err = s.source.ListStudents(gctx); err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if snap.Structures, err = s.source.ListStructures(gctx); err != nil {
			return fmt.Errorf("list structures: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if snap.Payments, err = s.source.ListPayments(gctx); err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cats, err = s.source.ListCategories(gctx); err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.Catalog = core.NewCatalog(cats)

	if s.cache != nil {
		s.store(gen, snap)
	}
	return snap, nil
}

// Dues aggregates the whole roster under sel.
func (s *DuesService) Dues(ctx context.Context, sel ledger.Selection) (ledger.Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	if err := sel.Validate(snap.Catalog); err != nil {
		return ledger.Report{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	return ledger.Aggregate(snap.Students, snap.Structures, snap.Payments, sel), nil
}

// StudentDue is one student's row of Dues.
func (s *DuesService) StudentDue(ctx context.Context, studentID string, sel ledger.Selection) (ledger.StudentDue, error) {
	report, err := s.Dues(ctx, sel)
	if err != nil {
		return ledger.StudentDue{}, err
	}
	due, ok := report.Student(studentID)
	if !ok {
		return ledger.StudentDue{}, fmt.Errorf("%w: %s", ErrStudentNotFound, studentID)
	}
	return due, nil
}

func (s *DuesService) Summary(ctx context.Context) (ledger.Summary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(snap.Students, snap.Payments), nil
}

// Students lists the roster, optionally restricted to one class.
func (s *DuesService) Students(ctx context.Context, class string) ([]core.Student, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if class == "" {
		return snap.Students, nil
	}
	out := make([]core.Student, 0, len(snap.Students))
	for _, st := range snap.Students {
		if st.Class == class {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *DuesService) Catalog(ctx context.Context) (*core.Catalog, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Catalog, nil
}
