package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	StatusPaid PaymentStatus = "Paid"
	StatusDue  PaymentStatus = "Due"
)

const (
	StudentActive StudentStatus = "Active"
	StudentLeft   StudentStatus = "Left"
)

type (
	PaymentStatus string
	StudentStatus string

	Student struct {
		ID      string
		RollNo  string
		Name    string
		Class   string
		Section string
		Status  StudentStatus
	}

	// FeeStructureEntry is the default price of a fee type for a class.
	FeeStructureEntry struct {
		Class   string
		FeeType string
		Amount  Money
	}

	// FeePaymentRecord is one line of the append-only fee ledger. StudentName
	// and Class are copies taken at billing time; the Student is authoritative.
	FeePaymentRecord struct {
		ReceiptNo   string
		StudentID   string
		StudentName string
		Class       string
		Month       string // empty for one-time fees
		FeeType     string
		Amount      Money
		Discount    Money
		Total       Money
		PaidDate    BSDate
		PaymentMode string
		CollectedBy string
		Status      PaymentStatus
	}
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidMonth          = errors.New("invalid month")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrEmptyStudentID        = errors.New("empty student id")
	ErrEmptyFeeType          = errors.New("empty fee type")
	ErrEmptyClass            = errors.New("empty class")
	ErrDiscountExceedsAmount = errors.New("discount exceeds amount")
	ErrInvalidBSDate         = errors.New("invalid BS date")
	// ErrDuplicateReceipt is returned by ledger writers for a receipt number
	// that is already stored.
	ErrDuplicateReceipt = errors.New("receipt number already used")
)

// Classes is the fixed list of grade levels, lowest first.
var Classes = []string{
	"Nursery", "LKG", "UKG",
	"Class 1", "Class 2", "Class 3", "Class 4", "Class 5",
	"Class 6", "Class 7", "Class 8", "Class 9", "Class 10",
	"Class 11", "Class 12",
}

// IsKnownClass reports whether class is one of Classes.
func IsKnownClass(class string) bool {
	for _, c := range Classes {
		if c == class {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	return s == StatusPaid || s == StatusDue
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptyStudentID
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("empty student name")
	}
	if strings.TrimSpace(s.Class) == "" {
		return ErrEmptyClass
	}
	switch s.Status {
	case StudentActive, StudentLeft:
	default:
		return ErrInvalidStatus
	}
	return nil
}

func (e FeeStructureEntry) Validate() error {
	if strings.TrimSpace(e.Class) == "" {
		return ErrEmptyClass
	}
	if strings.TrimSpace(e.FeeType) == "" {
		return ErrEmptyFeeType
	}
	if e.Amount.Paisa < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r FeePaymentRecord) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return ErrEmptyStudentID
	}
	if strings.TrimSpace(r.FeeType) == "" {
		return ErrEmptyFeeType
	}
	if r.Amount.Paisa < 0 || r.Discount.Paisa < 0 {
		return ErrInvalidAmount
	}
	if r.Discount.Paisa > r.Amount.Paisa {
		return ErrDiscountExceedsAmount
	}
	if r.Total.Paisa != r.Amount.Paisa-r.Discount.Paisa {
		return fmt.Errorf("total %d does not equal amount minus discount: %w", r.Total.Paisa, ErrInvalidAmount)
	}
	if r.Month != "" {
		if _, err := ParseMonth(r.Month); err != nil {
			return err
		}
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	if !r.PaidDate.IsZero() {
		if err := r.PaidDate.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BSDate is a Bikram Sambat calendar date. No conversion to the Gregorian
// calendar is attempted; the school works in BS only.
type BSDate struct {
	Year  int
	Month Month
	Day   int
}

// ParseBSDate parses "YYYY-MM-DD".
func ParseBSDate(s string) (BSDate, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[0]) != 4 {
		return BSDate{}, ErrInvalidBSDate
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return BSDate{}, ErrInvalidBSDate
	}
	date := BSDate{Year: y, Month: Month(m), Day: d}
	if err := date.Validate(); err != nil {
		return BSDate{}, err
	}
	return date, nil
}

// Validate checks ranges only. BS months run 29 to 32 days.
func (d BSDate) Validate() error {
	if d.Year < 1970 || d.Year > 2200 {
		return ErrInvalidBSDate
	}
	if !d.Month.Valid() {
		return ErrInvalidBSDate
	}
	if d.Day < 1 || d.Day > 32 {
		return ErrInvalidBSDate
	}
	return nil
}

func (d BSDate) IsZero() bool {
	return d == BSDate{}
}

func (d BSDate) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}
