package adapters

import (
	"context"

	"feeledger/internal/core"
	"feeledger/internal/services"
	"feeledger/internal/sheets"
	"feeledger/internal/storage"
)

var (
	_ sheets.Snapshotter     = (*SQLiteAdapter)(nil)
	_ sheets.PaymentWriter   = (*SQLiteAdapter)(nil)
	_ sheets.ReferenceWriter = (*SQLiteAdapter)(nil)
)

// SQLiteAdapter adapts SQLiteRepository and ReceiptService to the sheets
// ports, so the HTTP layer works unchanged on the SQLite + AMQP backend.
// Reads come from the local mirror; writes are queued for the sheet.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.ReceiptService
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.ReceiptService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// AppendPayments implements sheets.PaymentWriter
func (a *SQLiteAdapter) AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error {
	return a.service.AppendPayments(ctx, records)
}

// ListStudents implements sheets.StudentReader
func (a *SQLiteAdapter) ListStudents(ctx context.Context) ([]core.Student, error) {
	return a.storage.ListStudents(ctx)
}

// ListStructures implements sheets.StructureReader
func (a *SQLiteAdapter) ListStructures(ctx context.Context) ([]core.FeeStructureEntry, error) {
	return a.storage.ListStructures(ctx)
}

// ListPayments implements sheets.PaymentLister
func (a *SQLiteAdapter) ListPayments(ctx context.Context) ([]core.FeePaymentRecord, error) {
	return a.storage.ListPayments(ctx)
}

// ListCategories implements sheets.CategoryReader
func (a *SQLiteAdapter) ListCategories(ctx context.Context) ([]core.Category, error) {
	return a.storage.ListCategories(ctx)
}

// SaveStudent implements sheets.StudentWriter. The edit reaches the sheet on
// the worker's next mirror.
func (a *SQLiteAdapter) SaveStudent(ctx context.Context, s core.Student) error {
	return a.storage.SaveStudent(ctx, s)
}

// SaveStructure implements sheets.StructureWriter
func (a *SQLiteAdapter) SaveStructure(ctx context.Context, e core.FeeStructureEntry) error {
	return a.storage.SaveStructure(ctx, e)
}

// SaveCategory implements sheets.CategoryWriter
func (a *SQLiteAdapter) SaveCategory(ctx context.Context, c core.Category) error {
	return a.storage.SaveCategory(ctx, c)
}

// Ping reports whether the local database is reachable.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}
