package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/services"
)

const maxBodyBytes = 64 << 10

var errMalformedBody = errors.New("malformed request body")

type (
	billItemDTO struct {
		FeeType  string `json:"fee_type" validate:"required,max=100"`
		Month    string `json:"month" validate:"omitempty,max=20"`
		Amount   string `json:"amount" validate:"omitempty,max=20"`
		Discount string `json:"discount" validate:"omitempty,max=20"`
	}

	// billRequestDTO is the POST /api/bills body. Amounts are rupee strings
	// such as "2600" or "2600.50"; a missing amount takes the class price.
	billRequestDTO struct {
		StudentID   string        `json:"student_id" validate:"required,max=64"`
		PaidDate    string        `json:"paid_date" validate:"required,len=10"`
		PaymentMode string        `json:"payment_mode" validate:"omitempty,oneof=Cash E-Sewa Bank"`
		CollectedBy string        `json:"collected_by" validate:"omitempty,max=100"`
		Items       []billItemDTO `json:"items" validate:"required,min=1,max=50,dive"`
	}

	// studentDTO is the POST /api/students body.
	studentDTO struct {
		ID      string `json:"id" validate:"required,max=64"`
		RollNo  string `json:"roll_no" validate:"omitempty,max=20"`
		Name    string `json:"name" validate:"required,max=100"`
		Class   string `json:"class" validate:"required,max=40"`
		Section string `json:"section" validate:"omitempty,max=20"`
		Status  string `json:"status" validate:"omitempty,oneof=Active Left"`
	}

	// structureDTO is the POST /api/structures body. Amount is in rupees.
	structureDTO struct {
		Class   string `json:"class" validate:"required,max=40"`
		FeeType string `json:"fee_type" validate:"required,max=100"`
		Amount  string `json:"amount" validate:"required,max=20"`
	}

	categoryDTO struct {
		Name        string `json:"name" validate:"required,max=100"`
		Kind        string `json:"kind" validate:"required,oneof=monthly one-time"`
		Description string `json:"description" validate:"omitempty,max=200"`
	}

	// duesQuery is the selection carried by the dues endpoints' query string.
	duesQuery struct {
		Months     []string `validate:"max=12,dive,required"`
		Monthly    []string `validate:"max=50,dive,required,max=100"`
		Fixed      []string `validate:"max=50,dive,required,max=100"`
		Class      string   `validate:"omitempty,max=40"`
		Defaulters bool
	}
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads one JSON object into dst and validates it.
func decodeBody(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return v.Struct(dst)
}

// decodeBill reads and validates a bill request.
func decodeBill(r *http.Request, v *validator.Validate) (services.BillRequest, error) {
	var dto billRequestDTO
	if err := decodeBody(r, v, &dto); err != nil {
		return services.BillRequest{}, err
	}
	return dto.toRequest()
}

func decodeStudent(r *http.Request, v *validator.Validate) (core.Student, error) {
	var dto studentDTO
	if err := decodeBody(r, v, &dto); err != nil {
		return core.Student{}, err
	}
	return core.Student{
		ID:      sanitizeInput(dto.ID),
		RollNo:  sanitizeInput(dto.RollNo),
		Name:    sanitizeInput(dto.Name),
		Class:   sanitizeInput(dto.Class),
		Section: sanitizeInput(dto.Section),
		Status:  core.StudentStatus(dto.Status),
	}, nil
}

func decodeStructure(r *http.Request, v *validator.Validate) (core.FeeStructureEntry, error) {
	var dto structureDTO
	if err := decodeBody(r, v, &dto); err != nil {
		return core.FeeStructureEntry{}, err
	}
	amount, err := core.ParseAmount(dto.Amount)
	if err != nil {
		return core.FeeStructureEntry{}, fmt.Errorf("amount: %w", err)
	}
	return core.FeeStructureEntry{
		Class:   sanitizeInput(dto.Class),
		FeeType: sanitizeInput(dto.FeeType),
		Amount:  amount,
	}, nil
}

func decodeCategory(r *http.Request, v *validator.Validate) (core.Category, error) {
	var dto categoryDTO
	if err := decodeBody(r, v, &dto); err != nil {
		return core.Category{}, err
	}
	kind, _ := core.ParseFeeKind(dto.Kind)
	return core.Category{
		Name:        sanitizeInput(dto.Name),
		Kind:        kind,
		Description: sanitizeInput(dto.Description),
	}, nil
}

func (d billRequestDTO) toRequest() (services.BillRequest, error) {
	paid, err := core.ParseBSDate(d.PaidDate)
	if err != nil {
		return services.BillRequest{}, fmt.Errorf("paid_date: %w", err)
	}
	req := services.BillRequest{
		StudentID:   sanitizeInput(d.StudentID),
		PaidDate:    paid,
		PaymentMode: d.PaymentMode,
		CollectedBy: sanitizeInput(d.CollectedBy),
		Items:       make([]services.BillItem, 0, len(d.Items)),
	}
	for i, it := range d.Items {
		item := services.BillItem{
			FeeType: sanitizeInput(it.FeeType),
			Month:   strings.TrimSpace(it.Month),
		}
		if it.Amount != "" {
			amount, err := core.ParseAmount(it.Amount)
			if err != nil {
				return services.BillRequest{}, fmt.Errorf("items[%d].amount: %w", i, err)
			}
			item.Amount = &amount
		}
		if it.Discount != "" {
			if item.Discount, err = core.ParseAmount(it.Discount); err != nil {
				return services.BillRequest{}, fmt.Errorf("items[%d].discount: %w", i, err)
			}
		}
		req.Items = append(req.Items, item)
	}
	return req, nil
}

// parseDuesQuery reads repeated month, monthly and fixed parameters. The
// months apply to every monthly category, like a single month picker.
func parseDuesQuery(q url.Values, v *validator.Validate) (duesQuery, ledger.Selection, error) {
	dq := duesQuery{
		Months:     cleanValues(q["month"]),
		Monthly:    cleanValues(q["monthly"]),
		Fixed:      cleanValues(q["fixed"]),
		Class:      sanitizeInput(q.Get("class")),
		Defaulters: isTruthy(q.Get("defaulters")),
	}
	if err := v.Struct(dq); err != nil {
		return duesQuery{}, ledger.Selection{}, err
	}

	months := make([]core.Month, 0, len(dq.Months))
	for _, name := range dq.Months {
		m, err := core.ParseMonth(name)
		if err != nil {
			return duesQuery{}, ledger.Selection{}, fmt.Errorf("month %q: %w", name, err)
		}
		months = append(months, m)
	}

	sel := ledger.NewSelection()
	for _, cat := range dq.Monthly {
		if !sel.HasMonthly(cat) {
			sel = sel.ToggleMonthly(cat)
		}
	}
	sel = sel.WithUniformMonths(months...)
	for _, cat := range dq.Fixed {
		if !sel.HasOneTime(cat) {
			sel = sel.ToggleOneTime(cat)
		}
	}
	return dq, sel, nil
}

// cleanValues sanitizes repeated values and drops empty ones.
func cleanValues(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = sanitizeInput(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
