package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"feeledger/internal/log"
	"feeledger/internal/middleware/ratelimit"
	"feeledger/internal/middleware/security"
	"feeledger/internal/middleware/trace"
	"feeledger/internal/services"
)

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the server. The zero value is usable.
type Options struct {
	Logger            *log.Logger
	Pinger            Pinger
	RequestsPerMinute int
	TrustedProxies    []string
}

type Server struct {
	http.Server

	billing   *services.BillingService
	dues      *services.DuesService
	reference *services.ReferenceService
	pinger   Pinger
	validate *validator.Validate

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	startedAt    time.Time
	billsCreated atomic.Int64
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, billing *services.BillingService, dues *services.DuesService, reference *services.ReferenceService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		billing:   billing,
		dues:      dues,
		reference: reference,
		pinger:    opts.Pinger,
		validate:  newValidator(),
		limiter:   ratelimit.NewLimiter(rlConfig),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP, logger),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/students", s.handleStudents)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/dues", s.handleDues)
	mux.HandleFunc("GET /api/dues/{studentId}", s.handleStudentDue)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	// Only writes are rate limited.
	limit := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.NewFields().WithClientIP(detector.ExtractClientIP(r)).ToSlice()...)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
			Header("Retry-After", "60").
			Write(w)
	})
	mux.Handle("POST /api/bills", limit(http.HandlerFunc(s.handleCreateBill)))
	mux.Handle("POST /api/students", limit(http.HandlerFunc(s.handleSaveStudent)))
	mux.Handle("POST /api/structures", limit(http.HandlerFunc(s.handleSaveStructure)))
	mux.Handle("POST /api/categories", limit(http.HandlerFunc(s.handleSaveCategory)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Addr = addr
	s.Handler = log.Middleware(logger)(
		headers.Middleware(detector.Middleware(s.tracer.Middleware(mux))))
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 120 * time.Second
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
