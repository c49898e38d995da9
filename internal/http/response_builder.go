package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/services"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// errorFor maps an error to a status and a client safe message. Internal
// errors are logged and reported without detail.
func errorFor(r *http.Request, err error) *JSONResponseBuilder {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			ns := fe.Namespace()
			if i := strings.IndexByte(ns, '.'); i >= 0 {
				ns = ns[i+1:]
			}
			fields[ns] = fe.Tag()
		}
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Body(errorBody{Error: "validation failed", Fields: fields})
	case errors.Is(err, errMalformedBody):
		return ErrorResponse(http.StatusBadRequest, "malformed JSON body")
	case errors.Is(err, services.ErrStudentNotFound):
		return ErrorResponse(http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateReceipt):
		return ErrorResponse(http.StatusConflict, "receipt number taken by another writer, retry the bill")
	case errors.Is(err, services.ErrNoBillItems),
		errors.Is(err, services.ErrInvalidBill),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrInvalidReference),
		errors.Is(err, services.ErrInvalidSelection),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidBSDate),
		errors.Is(err, core.ErrEmptyStudentID),
		errors.Is(err, core.ErrEmptyFeeType),
		errors.Is(err, core.ErrDiscountExceedsAmount):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		return ErrorResponse(http.StatusInternalServerError, "internal error")
	}
}

// moneyJSON carries both the exact paisa value and a display string.
type moneyJSON struct {
	Paisa     int64  `json:"paisa"`
	Formatted string `json:"formatted"`
}

func money(m core.Money) moneyJSON {
	return moneyJSON{Paisa: m.Paisa, Formatted: m.Format()}
}

type (
	studentJSON struct {
		ID      string `json:"id"`
		RollNo  string `json:"roll_no,omitempty"`
		Name    string `json:"name"`
		Class   string `json:"class"`
		Section string `json:"section,omitempty"`
		Status  string `json:"status"`
	}

	categoryJSON struct {
		Name        string `json:"name"`
		Kind        string `json:"kind"`
		Description string `json:"description,omitempty"`
	}

	structureJSON struct {
		Class   string    `json:"class"`
		FeeType string    `json:"fee_type"`
		Amount  moneyJSON `json:"amount"`
	}

	monthlyDueJSON struct {
		Month    string    `json:"month"`
		Category string    `json:"category"`
		Amount   moneyJSON `json:"amount"`
	}

	fixedDueJSON struct {
		Category string    `json:"category"`
		Amount   moneyJSON `json:"amount"`
	}

	studentDueJSON struct {
		StudentID        string           `json:"student_id"`
		Name             string           `json:"name"`
		Class            string           `json:"class"`
		Section          string           `json:"section,omitempty"`
		Collected        moneyJSON        `json:"collected"`
		TotalDue         moneyJSON        `json:"total_due"`
		MonthlyBreakdown []monthlyDueJSON `json:"monthly_breakdown"`
		FixedBreakdown   []fixedDueJSON   `json:"fixed_breakdown"`
		IsDefaulter      bool             `json:"is_defaulter"`
	}

	// duesJSON carries population totals next to the possibly filtered rows.
	duesJSON struct {
		TotalCollected   moneyJSON        `json:"total_collected"`
		TotalOutstanding moneyJSON        `json:"total_outstanding"`
		ClearanceRate    int              `json:"clearance_rate"`
		Students         []studentDueJSON `json:"students"`
	}

	summaryJSON struct {
		Students  int       `json:"students"`
		Active    int       `json:"active"`
		Collected moneyJSON `json:"collected"`
		Dues      moneyJSON `json:"dues"`
		Receipts  int       `json:"receipts"`
	}

	recordJSON struct {
		ReceiptNo   string    `json:"receipt_no"`
		StudentID   string    `json:"student_id"`
		StudentName string    `json:"student_name"`
		Class       string    `json:"class"`
		Month       string    `json:"month,omitempty"`
		FeeType     string    `json:"fee_type"`
		Amount      moneyJSON `json:"amount"`
		Discount    moneyJSON `json:"discount"`
		Total       moneyJSON `json:"total"`
		PaidDate    string    `json:"paid_date"`
		PaymentMode string    `json:"payment_mode"`
		CollectedBy string    `json:"collected_by,omitempty"`
		Status      string    `json:"status"`
	}

	billJSON struct {
		ReceiptNo string       `json:"receipt_no"`
		Total     moneyJSON    `json:"total"`
		Records   []recordJSON `json:"records"`
	}
)

func toStudentJSON(s core.Student) studentJSON {
	status := string(s.Status)
	if status == "" {
		status = string(core.StudentActive)
	}
	return studentJSON{ID: s.ID, RollNo: s.RollNo, Name: s.Name, Class: s.Class, Section: s.Section, Status: status}
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{Name: c.Name, Kind: string(c.Kind), Description: c.Description}
}

func toStructureJSON(e core.FeeStructureEntry) structureJSON {
	return structureJSON{Class: e.Class, FeeType: e.FeeType, Amount: money(e.Amount)}
}

func toStudentDueJSON(d ledger.StudentDue) studentDueJSON {
	out := studentDueJSON{
		StudentID:        d.StudentID,
		Name:             d.Name,
		Class:            d.Class,
		Section:          d.Section,
		Collected:        money(d.Collected),
		TotalDue:         money(d.TotalDue),
		MonthlyBreakdown: make([]monthlyDueJSON, 0, len(d.MonthlyBreakdown)),
		FixedBreakdown:   make([]fixedDueJSON, 0, len(d.FixedBreakdown)),
		IsDefaulter:      d.IsDefaulter,
	}
	for _, m := range d.MonthlyBreakdown {
		out.MonthlyBreakdown = append(out.MonthlyBreakdown, monthlyDueJSON{Month: m.Month.String(), Category: m.Category, Amount: money(m.Amount)})
	}
	for _, f := range d.FixedBreakdown {
		out.FixedBreakdown = append(out.FixedBreakdown, fixedDueJSON{Category: f.Category, Amount: money(f.Amount)})
	}
	return out
}

func toDuesJSON(report ledger.Report, rows []ledger.StudentDue) duesJSON {
	out := duesJSON{
		TotalCollected:   money(report.TotalCollected),
		TotalOutstanding: money(report.TotalOutstanding),
		ClearanceRate:    report.ClearanceRate(),
		Students:         make([]studentDueJSON, 0, len(rows)),
	}
	for _, d := range rows {
		out.Students = append(out.Students, toStudentDueJSON(d))
	}
	return out
}

func toSummaryJSON(s ledger.Summary) summaryJSON {
	return summaryJSON{
		Students:  s.Students,
		Active:    s.Active,
		Collected: money(s.Collected),
		Dues:      money(s.Dues),
		Receipts:  s.Receipts,
	}
}

func toBillJSON(b services.Bill) billJSON {
	out := billJSON{
		ReceiptNo: b.ReceiptNo,
		Total:     money(b.Total),
		Records:   make([]recordJSON, 0, len(b.Records)),
	}
	for _, r := range b.Records {
		out.Records = append(out.Records, recordJSON{
			ReceiptNo:   r.ReceiptNo,
			StudentID:   r.StudentID,
			StudentName: r.StudentName,
			Class:       r.Class,
			Month:       r.Month,
			FeeType:     r.FeeType,
			Amount:      money(r.Amount),
			Discount:    money(r.Discount),
			Total:       money(r.Total),
			PaidDate:    r.PaidDate.String(),
			PaymentMode: r.PaymentMode,
			CollectedBy: r.CollectedBy,
			Status:      string(r.Status),
		})
	}
	return out
}
