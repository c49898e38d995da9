package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the data backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string)

	var err error
	if s.pinger != nil {
		err = s.pinger.Ping(ctx)
	} else {
		_, err = s.dues.Catalog(ctx)
	}
	if err != nil {
		checks["backend"] = fmt.Sprintf("failed: %v", err)
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics reports request, security and cache counters in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	snapshotEntries := 0
	if c := s.dues.Cache(); c != nil {
		snapshotEntries = c.Size()
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_request_duration_average_us", "gauge", "Average request duration in microseconds", traceMetrics.AverageResponseTime)
	metric("bills_created_total", "counter", "Bills stored since start", s.billsCreated.Load())
	metric("rate_limit_allowed_total", "counter", "Write requests admitted by the rate limiter", limitMetrics.Allowed)
	metric("rate_limit_rejected_total", "counter", "Write requests rejected by the rate limiter", limitMetrics.Rejected)
	metric("rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("rejected_requests_total", "counter", "Suspicious requests rejected", securityMetrics.RejectedRequests)
	metric("snapshot_cache_entries", "gauge", "Cached ledger snapshots", snapshotEntries)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.startedAt).Seconds()))
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.dues.Students(r.Context(), sanitizeInput(r.URL.Query().Get("class")))
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	out := make([]studentJSON, 0, len(students))
	for _, st := range students {
		out = append(out, toStudentJSON(st))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.dues.Catalog(r.Context())
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	all := catalog.All()
	out := make([]categoryJSON, 0, len(all))
	for _, c := range all {
		out = append(out, toCategoryJSON(c))
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleDues reports every student's dues under the query selection. The
// totals always cover the whole roster; class and defaulters only filter rows.
func (s *Server) handleDues(w http.ResponseWriter, r *http.Request) {
	dq, sel, err := parseDuesQuery(r.URL.Query(), s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	report, err := s.dues.Dues(r.Context(), sel)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	rows := report.PerStudent
	if dq.Class != "" {
		rows = report.ForClass(dq.Class)
	}
	if dq.Defaulters {
		rows = defaultersOnly(rows)
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Dues computed",
		append(log.NewFields().WithOperation(log.OpAggregate).ToSlice(),
			"obligations", len(sel.Pairs())+len(sel.OneTime()),
			"rows", len(rows))...)
	NewJSONResponse().Body(toDuesJSON(report, rows)).Write(w)
}

func defaultersOnly(rows []ledger.StudentDue) []ledger.StudentDue {
	out := make([]ledger.StudentDue, 0, len(rows))
	for _, d := range rows {
		if d.IsDefaulter {
			out = append(out, d)
		}
	}
	return out
}

func (s *Server) handleStudentDue(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("studentId"))
	if id == "" {
		errorFor(r, core.ErrEmptyStudentID).Write(w)
		return
	}
	_, sel, err := parseDuesQuery(r.URL.Query(), s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	due, err := s.dues.StudentDue(r.Context(), id, sel)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toStudentDueJSON(due)).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dues.Summary(r.Context())
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toSummaryJSON(summary)).Write(w)
}

// handleCreateBill stores one receipt and answers 201 with its lines.
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBill(r, s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	bill, err := s.billing.CreateBill(r.Context(), req)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	s.billsCreated.Add(1)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/dues/"+bill.Records[0].StudentID).
		Body(toBillJSON(bill)).
		Write(w)
}

func (s *Server) handleSaveStudent(w http.ResponseWriter, r *http.Request) {
	st, err := decodeStudent(r, s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	if st, err = s.reference.SaveStudent(r.Context(), st); err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toStudentJSON(st)).Write(w)
}

func (s *Server) handleSaveStructure(w http.ResponseWriter, r *http.Request) {
	e, err := decodeStructure(r, s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	if e, err = s.reference.SaveStructure(r.Context(), e); err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toStructureJSON(e)).Write(w)
}

func (s *Server) handleSaveCategory(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCategory(r, s.validate)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	if c, err = s.reference.SaveCategory(r.Context(), c); err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(toCategoryJSON(c)).Write(w)
}
