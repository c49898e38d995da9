package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
	"feeledger/internal/sheets"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrNoBillItems     = errors.New("bill has no items")
	ErrInvalidBill     = errors.New("invalid bill")
	ErrAlreadyPaid     = errors.New("fee already paid")
)

const (
	defaultPaymentMode = "Cash"
	receiptSpace       = 1_000_000
	receiptAttempts    = 3
)

type (
	// BillItem is one fee line. A nil Amount takes the class structure price.
	BillItem struct {
		FeeType  string
		Month    string
		Amount   *core.Money
		Discount core.Money
	}

	BillRequest struct {
		StudentID   string
		Items       []BillItem
		PaidDate    core.BSDate
		PaymentMode string
		CollectedBy string
	}

	// Bill is a stored receipt: every record shares ReceiptNo.
	Bill struct {
		ReceiptNo string
		Records   []core.FeePaymentRecord
		Total     core.Money
	}
)

// BillingService turns a bill request into Paid ledger lines. It is the
// ledger's only writer: bills are serialized so the paid check and the
// receipt number both see every earlier bill.
type BillingService struct {
	source  sheets.Snapshotter
	writer  sheets.PaymentWriter
	now     func() time.Time
	onWrite []func()
	mu      sync.Mutex
}

func NewBillingService(source sheets.Snapshotter, writer sheets.PaymentWriter) *BillingService {
	return &BillingService{
		source: source,
		writer: writer,
		now:    time.Now,
	}
}

// OnWrite registers fn to run after every stored bill.
func (s *BillingService) OnWrite(fn func()) {
	s.onWrite = append(s.onWrite, fn)
}

// CreateBill validates the request against the roster, the catalog, the fee
// structure and the ledger, then appends one record per item under a single
// receipt. A fee already paid, or billed twice in the request, is refused.
func (s *BillingService) CreateBill(ctx context.Context, req BillRequest) (Bill, error) {
	if len(req.Items) == 0 {
		return Bill{}, ErrNoBillItems
	}
	if err := req.PaidDate.Validate(); err != nil {
		return Bill{}, fmt.Errorf("%w: paid date: %w", ErrInvalidBill, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, err := s.findStudent(ctx, req.StudentID)
	if err != nil {
		return Bill{}, err
	}

	cats, err := s.source.ListCategories(ctx)
	if err != nil {
		return Bill{}, fmt.Errorf("list categories: %w", err)
	}
	catalog := core.NewCatalog(cats)

	entries, err := s.source.ListStructures(ctx)
	if err != nil {
		return Bill{}, fmt.Errorf("list structures: %w", err)
	}
	table := ledger.NewStructureTable(entries)

	payments, err := s.source.ListPayments(ctx)
	if err != nil {
		return Bill{}, fmt.Errorf("list payments: %w", err)
	}
	paid := ledger.NewPaidIndex(payments)

	mode := strings.TrimSpace(req.PaymentMode)
	if mode == "" {
		mode = defaultPaymentMode
	}

	var bill Bill
	billed := make(map[[2]string]struct{}, len(req.Items))
	for i, item := range req.Items {
		rec, err := buildRecord(item, student, catalog, table)
		if err != nil {
			return Bill{}, fmt.Errorf("%w: item %d: %w", ErrInvalidBill, i+1, err)
		}
		key := [2]string{rec.FeeType, rec.Month}
		if _, dup := billed[key]; dup {
			return Bill{}, fmt.Errorf("%w: item %d: %s %s is billed twice", ErrInvalidBill, i+1, rec.FeeType, rec.Month)
		}
		billed[key] = struct{}{}
		if prior, ok := paidBefore(paid, rec); ok {
			return Bill{}, fmt.Errorf("%w: %w: item %d: %s %s is on receipt %s",
				ErrInvalidBill, ErrAlreadyPaid, i+1, rec.FeeType, rec.Month, prior.ReceiptNo)
		}
		rec.PaidDate = req.PaidDate
		rec.PaymentMode = mode
		rec.CollectedBy = strings.TrimSpace(req.CollectedBy)
		if err := rec.Validate(); err != nil {
			return Bill{}, fmt.Errorf("%w: item %d: %w", ErrInvalidBill, i+1, err)
		}
		bill.Records = append(bill.Records, rec)
		bill.Total = bill.Total.Add(rec.Total)
	}

	used := receiptsInUse(payments)
	for attempt := 1; ; attempt++ {
		no, err := s.receiptNumber(used)
		if err != nil {
			return Bill{}, err
		}
		bill.ReceiptNo = no
		for i := range bill.Records {
			bill.Records[i].ReceiptNo = no
		}
		err = s.writer.AppendPayments(ctx, bill.Records)
		if err == nil {
			break
		}
		if !errors.Is(err, core.ErrDuplicateReceipt) || attempt == receiptAttempts {
			return Bill{}, fmt.Errorf("append payments: %w", err)
		}
		// Taken by a writer outside this process; try the next number.
		used[no] = struct{}{}
	}
	for _, fn := range s.onWrite {
		fn()
	}

	log.NewStructuredLogger(log.FromContext(ctx)).
		LogReceiptCreated(ctx, bill.ReceiptNo, student.ID, len(bill.Records), bill.Total.Paisa)
	return bill, nil
}

func paidBefore(paid ledger.PaidIndex, rec core.FeePaymentRecord) (core.FeePaymentRecord, bool) {
	if rec.Month == "" {
		return paid.OneTime(rec.StudentID, rec.FeeType)
	}
	return paid.Monthly(rec.StudentID, rec.FeeType, rec.Month)
}

func receiptsInUse(payments []core.FeePaymentRecord) map[string]struct{} {
	used := make(map[string]struct{}, len(payments))
	for _, p := range payments {
		used[p.ReceiptNo] = struct{}{}
	}
	return used
}

func (s *BillingService) findStudent(ctx context.Context, id string) (core.Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Student{}, fmt.Errorf("%w: %w", ErrInvalidBill, core.ErrEmptyStudentID)
	}
	students, err := s.source.ListStudents(ctx)
	if err != nil {
		return core.Student{}, fmt.Errorf("list students: %w", err)
	}
	for _, st := range students {
		if st.ID == id {
			return st, nil
		}
	}
	return core.Student{}, fmt.Errorf("%w: %s", ErrStudentNotFound, id)
}

// receiptNumber is REC- followed by the last six digits of the millisecond
// clock. The six digits wrap every 1000 seconds, so a number already in the
// ledger is skipped by counting up from the clock value.
func (s *BillingService) receiptNumber(used map[string]struct{}) (string, error) {
	base := s.now().UnixMilli() % receiptSpace
	for i := int64(0); i < receiptSpace; i++ {
		no := fmt.Sprintf("REC-%06d", (base+i)%receiptSpace)
		if _, taken := used[no]; !taken {
			return no, nil
		}
	}
	return "", errors.New("no free receipt number")
}

func buildRecord(item BillItem, student core.Student, catalog *core.Catalog, table ledger.StructureTable) (core.FeePaymentRecord, error) {
	feeType := strings.TrimSpace(item.FeeType)
	if feeType == "" {
		return core.FeePaymentRecord{}, core.ErrEmptyFeeType
	}
	kind, ok := catalog.Kind(feeType)
	if !ok {
		return core.FeePaymentRecord{}, fmt.Errorf("unknown fee category %q", feeType)
	}

	var month string
	switch kind {
	case core.Monthly:
		m, err := core.ParseMonth(item.Month)
		if err != nil {
			return core.FeePaymentRecord{}, fmt.Errorf("%s needs a month: %w", feeType, err)
		}
		month = m.String()
	case core.OneTime:
		if strings.TrimSpace(item.Month) != "" {
			return core.FeePaymentRecord{}, fmt.Errorf("%s is a one-time fee and takes no month: %w", feeType, core.ErrInvalidMonth)
		}
	}

	var amount core.Money
	if item.Amount != nil {
		amount = *item.Amount
		if !amount.IsPositive() {
			return core.FeePaymentRecord{}, fmt.Errorf("billed amount for %s must be positive: %w", feeType, core.ErrInvalidAmount)
		}
	} else {
		amount = table.Amount(student.Class, feeType)
		if !amount.IsPositive() {
			return core.FeePaymentRecord{}, fmt.Errorf("no amount for %s in %s: %w", feeType, student.Class, core.ErrInvalidAmount)
		}
	}

	return core.FeePaymentRecord{
		StudentID:   student.ID,
		StudentName: student.Name,
		Class:       student.Class,
		Month:       month,
		FeeType:     feeType,
		Amount:      amount,
		Discount:    item.Discount,
		Total:       amount.Sub(item.Discount),
		Status:      core.StatusPaid,
	}, nil
}
