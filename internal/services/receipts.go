package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"feeledger/internal/core"
	"feeledger/internal/storage"
)

// ReceiptPublisher announces a stored receipt to the sync worker.
type ReceiptPublisher interface {
	PublishReceiptSync(ctx context.Context, receiptNo string) error
}

// ReceiptService stores bills in SQLite and queues them for the spreadsheet.
type ReceiptService struct {
	storage   *storage.SQLiteRepository
	publisher ReceiptPublisher
}

// NewReceiptService accepts a nil publisher; receipts then wait for the
// worker's pending sweep.
func NewReceiptService(storage *storage.SQLiteRepository, publisher ReceiptPublisher) *ReceiptService {
	return &ReceiptService{
		storage:   storage,
		publisher: publisher,
	}
}

// AppendPayments saves the records locally, then publishes one sync message
// per receipt. A failed publish is logged and does not fail the write.
func (s *ReceiptService) AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error {
	if err := s.storage.AppendPayments(ctx, records); err != nil {
		return fmt.Errorf("save payments: %w", err)
	}

	for _, receiptNo := range receiptNumbers(records) {
		if err := s.publish(ctx, receiptNo); err != nil {
			slog.ErrorContext(ctx, "Failed to publish receipt sync message",
				"receipt_no", receiptNo, "error", err)
		}
	}
	return nil
}

func (s *ReceiptService) publish(ctx context.Context, receiptNo string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, receipt left for pending sweep", "receipt_no", receiptNo)
		return nil
	}
	return s.publisher.PublishReceiptSync(ctx, receiptNo)
}

func receiptNumbers(records []core.FeePaymentRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, r := range records {
		if _, ok := seen[r.ReceiptNo]; ok {
			continue
		}
		seen[r.ReceiptNo] = struct{}{}
		out = append(out, r.ReceiptNo)
	}
	return out
}

// Close closes both storage and the publisher connection.
func (s *ReceiptService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close receipt service: %v", errs)
	}

	return nil
}
