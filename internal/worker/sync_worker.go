package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"feeledger/internal/amqp"
	"feeledger/internal/log"
	"feeledger/internal/sheets"
	"feeledger/internal/storage"
)

// SyncWorker copies locally stored receipts to the spreadsheet and mirrors
// the spreadsheet's reference data into SQLite.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	sheets    sheets.PaymentWriter
	source    sheets.Snapshotter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer sheets.PaymentWriter, source sheets.Snapshotter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		storage:   storage,
		sheets:    writer,
		source:    source,
		batchSize: batchSize,
	}
}

// HandleReceiptSync processes a single receipt sync message from AMQP. A
// returned error requeues the message.
func (w *SyncWorker) HandleReceiptSync(ctx context.Context, msg *amqp.ReceiptSyncMessage) error {
	slog.InfoContext(ctx, "Processing receipt sync message",
		"receipt_no", msg.ReceiptNo,
		"timestamp", msg.Timestamp)

	return w.syncReceipt(ctx, msg.ReceiptNo)
}

// syncReceipt is idempotent: a receipt already marked synced is skipped, so
// a redelivered message never appends the same lines twice.
func (w *SyncWorker) syncReceipt(ctx context.Context, receiptNo string) error {
	status, err := w.storage.ReceiptSyncStatus(ctx, receiptNo)
	if errors.Is(err, sql.ErrNoRows) {
		slog.WarnContext(ctx, "Receipt not found locally, dropping", "receipt_no", receiptNo)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get receipt status: %w", err)
	}
	if status == storage.SyncSynced {
		slog.DebugContext(ctx, "Receipt already synced", "receipt_no", receiptNo)
		return nil
	}

	// Lines imported from the sheet under the same number are already there.
	records, err := w.storage.UnsyncedReceiptRecords(ctx, receiptNo)
	if err != nil {
		return fmt.Errorf("get receipt from storage: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := w.sheets.AppendPayments(ctx, records); err != nil {
		if markErr := w.storage.MarkReceiptSyncError(ctx, receiptNo); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "receipt_no", receiptNo, "error", markErr)
		}
		return fmt.Errorf("append receipt %s to sheet: %w", receiptNo, err)
	}

	if err := w.storage.MarkReceiptSynced(ctx, receiptNo); err != nil {
		return fmt.Errorf("mark receipt synced: %w", err)
	}

	slog.InfoContext(ctx, "Receipt synced to sheet",
		"receipt_no", receiptNo,
		"lines", len(records))
	return nil
}

// ProcessPendingReceipts syncs one batch of receipts that haven't reached the
// sheet yet. This is a backup mechanism in case AMQP messages are lost.
// It returns the number of receipts synced.
func (w *SyncWorker) ProcessPendingReceipts(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.storage.GetPendingReceipts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending receipts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending receipts", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.syncReceipt(ctx, p.ReceiptNo); err != nil {
			log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Failed to sync receipt", err,
				log.ComponentWorker, log.OpSync, log.LogFields{log.FieldReceiptNo: p.ReceiptNo})
			continue
		}
		synced++
	}
	return synced, nil
}

// StartupSync mirrors reference data and flushes a larger batch of pending
// receipts, to recover from worker downtime.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	if err := w.MirrorReferenceData(ctx); err != nil {
		// Billing still works from the last mirror.
		slog.WarnContext(ctx, "Failed to mirror reference data", "error", err)
	}

	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

// MirrorReferenceData pushes reference rows edited locally, replaces the
// local students, structures and categories with the sheet's, and imports
// ledger lines entered directly on the sheet.
func (w *SyncWorker) MirrorReferenceData(ctx context.Context) error {
	if w.source == nil {
		return errors.New("no sheet source configured")
	}

	if dst, ok := w.sheets.(sheets.ReferenceWriter); ok {
		if err := w.pushReferenceEdits(ctx, dst); err != nil {
			return err
		}
	}

	students, err := w.source.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("load students from sheet: %w", err)
	}
	if err := w.storage.ReplaceStudents(ctx, students); err != nil {
		return err
	}

	structures, err := w.source.ListStructures(ctx)
	if err != nil {
		return fmt.Errorf("load fee structure from sheet: %w", err)
	}
	if err := w.storage.ReplaceStructures(ctx, structures); err != nil {
		return err
	}

	cats, err := w.source.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("load categories from sheet: %w", err)
	}
	if err := w.storage.ReplaceCategories(ctx, cats); err != nil {
		return err
	}

	payments, err := w.source.ListPayments(ctx)
	if err != nil {
		return fmt.Errorf("load fee records from sheet: %w", err)
	}
	imported, err := w.storage.ImportPayments(ctx, payments)
	if err != nil {
		return fmt.Errorf("import fee records: %w", err)
	}

	slog.InfoContext(ctx, "Reference data mirrored from sheet",
		"students", len(students),
		"structures", len(structures),
		"categories", len(cats),
		"imported_records", imported)
	return nil
}

// pushReferenceEdits writes locally saved reference rows to the sheet. On
// failure the rows stay dirty and survive the next mirror.
func (w *SyncWorker) pushReferenceEdits(ctx context.Context, dst sheets.ReferenceWriter) error {
	edits, err := w.storage.PendingReferenceEdits(ctx)
	if err != nil {
		return err
	}
	if edits.Len() == 0 {
		return nil
	}
	for _, s := range edits.Students {
		if err := dst.SaveStudent(ctx, s); err != nil {
			return fmt.Errorf("push student %s: %w", s.ID, err)
		}
	}
	for _, e := range edits.Structures {
		if err := dst.SaveStructure(ctx, e); err != nil {
			return fmt.Errorf("push fee structure %s/%s: %w", e.Class, e.FeeType, err)
		}
	}
	for _, c := range edits.Categories {
		if err := dst.SaveCategory(ctx, c); err != nil {
			return fmt.Errorf("push fee category %s: %w", c.Name, err)
		}
	}
	if err := w.storage.MarkReferenceClean(ctx, edits); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Reference edits pushed to sheet",
		"students", len(edits.Students),
		"structures", len(edits.Structures),
		"categories", len(edits.Categories))
	return nil
}
