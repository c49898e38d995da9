package sheets

import (
	"context"

	"feeledger/internal/core"
)

// Ports for outbound adapters.
type (
	StudentReader interface {
		ListStudents(ctx context.Context) ([]core.Student, error)
	}

	StructureReader interface {
		ListStructures(ctx context.Context) ([]core.FeeStructureEntry, error)
	}

	// PaymentLister returns the whole fee ledger in stored order.
	PaymentLister interface {
		ListPayments(ctx context.Context) ([]core.FeePaymentRecord, error)
	}

	// PaymentWriter appends ledger lines. Records sharing a receipt number are
	// written together and never rewritten.
	PaymentWriter interface {
		AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error
	}

	// CategoryReader returns the configured fee categories with their kind
	// already resolved.
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	// StudentWriter saves a student, replacing the one with the same ID.
	StudentWriter interface {
		SaveStudent(ctx context.Context, s core.Student) error
	}

	// StructureWriter sets the price of a fee type for a class.
	StructureWriter interface {
		SaveStructure(ctx context.Context, e core.FeeStructureEntry) error
	}

	// CategoryWriter saves a fee category, replacing the one with the same name.
	CategoryWriter interface {
		SaveCategory(ctx context.Context, c core.Category) error
	}

	ReferenceWriter interface {
		StudentWriter
		StructureWriter
		CategoryWriter
	}

	// Snapshotter groups every read port a report needs.
	Snapshotter interface {
		StudentReader
		StructureReader
		PaymentLister
		CategoryReader
	}
)
