package http

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"feeledger/internal/core"
)

func TestDecodeBill(t *testing.T) {
	body := `{
		"student_id": " S1 ",
		"paid_date": "2081-02-12",
		"collected_by": "admin",
		"items": [
			{"fee_type": "Monthly Tuition Fee", "month": "Baishakh"},
			{"fee_type": "Annual Fee", "amount": "1500.50", "discount": "300"},
			{"fee_type": "Library Fee", "amount": "0"}
		]
	}`
	r := httptest.NewRequest("POST", "/api/bills", strings.NewReader(body))

	req, err := decodeBill(r, newValidator())
	if err != nil {
		t.Fatalf("decodeBill() error = %v", err)
	}
	if req.StudentID != "S1" {
		t.Errorf("StudentID = %q, want S1", req.StudentID)
	}
	if want := (core.BSDate{Year: 2081, Month: core.Jestha, Day: 12}); req.PaidDate != want {
		t.Errorf("PaidDate = %v, want %v", req.PaidDate, want)
	}
	if len(req.Items) != 3 {
		t.Fatalf("Items = %d, want 3", len(req.Items))
	}
	if req.Items[0].Amount != nil || req.Items[0].Month != "Baishakh" {
		t.Errorf("first item = %+v, want no amount for Baishakh", req.Items[0])
	}
	if req.Items[1].Amount == nil || req.Items[1].Amount.Paisa != 150050 || req.Items[1].Discount != core.Rupees(300) {
		t.Errorf("second item = %+v", req.Items[1])
	}
	// An explicit zero stays distinguishable from a missing amount.
	if req.Items[2].Amount == nil || !req.Items[2].Amount.IsZero() {
		t.Errorf("third item = %+v, want explicit zero amount", req.Items[2])
	}
	if req.PaymentMode != "" {
		t.Errorf("PaymentMode = %q, the service applies the default", req.PaymentMode)
	}
}

func TestDecodeBillRejects(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		malformed bool
		validate  bool
		wantErr   error
	}{
		{
			name:      "not json",
			body:      `student_id=S1`,
			malformed: true,
		},
		{
			name:      "unknown field",
			body:      `{"student_id":"S1","paid_date":"2081-02-12","items":[{"fee_type":"Annual Fee"}],"total":"5"}`,
			malformed: true,
		},
		{
			name:     "missing student",
			body:     `{"paid_date":"2081-02-12","items":[{"fee_type":"Annual Fee"}]}`,
			validate: true,
		},
		{
			name:     "no items",
			body:     `{"student_id":"S1","paid_date":"2081-02-12","items":[]}`,
			validate: true,
		},
		{
			name:     "unknown payment mode",
			body:     `{"student_id":"S1","paid_date":"2081-02-12","payment_mode":"Cheque","items":[{"fee_type":"Annual Fee"}]}`,
			validate: true,
		},
		{
			name:     "item without fee type",
			body:     `{"student_id":"S1","paid_date":"2081-02-12","items":[{"amount":"10"}]}`,
			validate: true,
		},
		{
			name:    "month out of range",
			body:    `{"student_id":"S1","paid_date":"2081-13-01","items":[{"fee_type":"Annual Fee"}]}`,
			wantErr: core.ErrInvalidBSDate,
		},
		{
			name:    "bad amount",
			body:    `{"student_id":"S1","paid_date":"2081-02-12","items":[{"fee_type":"Annual Fee","amount":"1,200.00"}]}`,
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "negative discount",
			body:    `{"student_id":"S1","paid_date":"2081-02-12","items":[{"fee_type":"Annual Fee","discount":"-5"}]}`,
			wantErr: core.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/bills", strings.NewReader(tt.body))
			_, err := decodeBill(r, newValidator())
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.malformed && !errors.Is(err, errMalformedBody) {
				t.Errorf("error = %v, want malformed body", err)
			}
			var verrs validator.ValidationErrors
			if tt.validate && !errors.As(err, &verrs) {
				t.Errorf("error = %v, want validation errors", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuesQuery(t *testing.T) {
	q := url.Values{
		"month":      {"Baishakh", "Jestha", " "},
		"monthly":    {"Monthly Tuition Fee", "Monthly Tuition Fee", "Bus/Transportation Fee"},
		"fixed":      {"Annual Fee"},
		"class":      {" Class 1 "},
		"defaulters": {"true"},
	}

	dq, sel, err := parseDuesQuery(q, newValidator())
	if err != nil {
		t.Fatalf("parseDuesQuery() error = %v", err)
	}
	if dq.Class != "Class 1" || !dq.Defaulters {
		t.Errorf("filters = %+v", dq)
	}
	if got := len(sel.Monthly()); got != 2 {
		t.Errorf("monthly categories = %d, want 2 (duplicates collapse)", got)
	}
	if got := len(sel.Pairs()); got != 4 {
		t.Errorf("pairs = %d, want 4", got)
	}
	if !sel.HasOneTime("Annual Fee") {
		t.Error("Annual Fee not selected")
	}
}

func TestParseDuesQueryRejects(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantErr error
	}{
		{"lowercase month", url.Values{"month": {"baishakh"}}, core.ErrInvalidMonth},
		{"unknown month", url.Values{"month": {"Asar"}}, core.ErrInvalidMonth},
		{"too many months", url.Values{"month": strings.Split(strings.Repeat("Magh,", 13), ",")[:13]}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseDuesQuery(tt.query, newValidator())
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuesQueryEmpty(t *testing.T) {
	dq, sel, err := parseDuesQuery(url.Values{}, newValidator())
	if err != nil {
		t.Fatalf("parseDuesQuery() error = %v", err)
	}
	if !sel.IsEmpty() || dq.Defaulters || dq.Class != "" {
		t.Errorf("empty query gave %+v, %+v", dq, sel)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  S1  ", "S1"},
		{"S\x001", "S1"},
		{"Class\x07 1", "Class 1"},
		{"line\tone", "line\tone"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsTruthy(t *testing.T) {
	for _, s := range []string{"1", "true", "TRUE", " yes ", "on"} {
		if !isTruthy(s) {
			t.Errorf("isTruthy(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "false", "no", "maybe"} {
		if isTruthy(s) {
			t.Errorf("isTruthy(%q) = true", s)
		}
	}
}
