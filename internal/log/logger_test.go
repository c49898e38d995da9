package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelInfo, ComponentBilling)

	logger.Info("bill stored", FieldReceiptNo, "REC-000001")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=billing") || !strings.Contains(out, "receipt_no=REC-000001") {
		t.Fatalf("unexpected output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}

	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelInfo, ComponentApp)
	var seen *Logger
	h := Middleware(logger.With(FieldRequestID, "req-1"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.Info("inside")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil || !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id not propagated: %s", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelDebug, ComponentHTTP))
	r := httptest.NewRequest(http.MethodPost, "/api/bills", nil)

	sl.LogHTTPEnd(context.Background(), r, 500, 12, "10.0.0.1")
	sl.LogReceiptCreated(context.Background(), "REC-000002", "S1", 2, 520000)
	sl.LogError(context.Background(), "sync failed", errors.New("boom"), ComponentWorker, OpSync, NewFields().WithFee("Annual Fee", ""))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "status_code=500", "amount_paisa=520000", "error=boom", "fee_type=\"Annual Fee\""} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "month=") {
		t.Errorf("empty month should be omitted:\n%s", out)
	}
}

func TestComponentAppearsOnce(t *testing.T) {
	var buf bytes.Buffer
	base := NewText(&buf, slog.LevelInfo, ComponentApp)
	ctx := context.Background()

	NewStructuredLogger(base.With(FieldRequestID, "req-2")).LogReceiptCreated(ctx, "REC-000004", "S2", 1, 280000)
	base.WithComponent(ComponentHTTP).WithComponent(ComponentWorker).Info("renamed")
	base.WithComponent(ComponentDues).Log(ctx, slog.LevelWarn, "leveled")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	want := []string{"component=billing", "component=worker", "component=dues"}
	for i, line := range lines {
		if n := strings.Count(line, "component="); n != 1 {
			t.Errorf("line %d has %d component keys: %s", i, n, line)
		}
		if !strings.Contains(line, want[i]) {
			t.Errorf("line %d missing %s: %s", i, want[i], line)
		}
	}
	if !strings.Contains(lines[0], "request_id=req-2") {
		t.Errorf("request id lost: %s", lines[0])
	}
}
