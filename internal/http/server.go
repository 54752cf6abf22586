package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"loanledger/internal/events"
	"loanledger/internal/ledger"
	"loanledger/internal/loan"
	"loanledger/internal/log"
	"loanledger/internal/middleware/ratelimit"
	"loanledger/internal/middleware/security"
	"loanledger/internal/middleware/trace"
	"loanledger/internal/sheets"
)

// ReconcileQueue hands reconcile requests to the worker.
type ReconcileQueue interface {
	PublishReconcileRequest(ctx context.Context, req *events.ReconcileRequest) error
}

// Deps is what the API serves. Queue and Sheets are optional: without them
// asynchronous reconciliation and statement export answer 503.
type Deps struct {
	Ledger   *ledger.Ledger
	Timeline *loan.Timeline
	Terms    loan.Terms
	Currency string
	Workers  int

	Queue  ReconcileQueue
	Sheets sheets.StatementWriter

	Logger             *log.Logger
	RateLimitPerMinute int
}

// Server is the JSON API over the ledger.
type Server struct {
	http.Server

	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	timeline   *loan.Timeline
	terms      loan.Terms
	currency   string
	queue      ReconcileQueue
	sheets     sheets.StatementWriter
	logger     *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time
}

// NewServer wires the routes and the middleware chain. Call Shutdown to
// stop it and release the rate limiter.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:     deps.Ledger,
		reconciler: ledger.NewReconciler(deps.Ledger, deps.Workers),
		timeline:   deps.Timeline,
		terms:      deps.Terms,
		currency:   deps.Currency,
		queue:      deps.Queue,
		sheets:     deps.Sheets,
		logger:     logger,
		detector:   security.NewDetector(),
		started:    time.Now(),
	}
	// Only writes are limited; reads are cheap and idempotent.
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: deps.RateLimitPerMinute,
		Methods:           []string{http.MethodPost},
	})
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/balances", s.handleBalances)
	mux.HandleFunc("GET /api/balances/{account}", s.handleBalance)
	mux.HandleFunc("GET /api/accounts/{account}/entries", s.handleEntries)
	mux.HandleFunc("POST /api/postings", s.handlePost)
	mux.HandleFunc("POST /api/transfers", s.handleTransfer)
	mux.HandleFunc("POST /api/purchases", s.handlePurchase)

	mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/schedule/summary", s.handleSummary)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("POST /api/timeline", s.handleGenerateTimeline)
	mux.HandleFunc("POST /api/reconcile", s.handleReconcile)

	mux.HandleFunc("GET /api/statements/{account}", s.handleStatement)
	mux.HandleFunc("GET /api/verify", s.handleVerify)
	mux.HandleFunc("POST /api/rebuild", s.handleRebuild)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Addr = addr
	s.Handler = h
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s
}

// Shutdown stops accepting requests, waits for the active ones and stops
// the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready when the store answers a balance read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"storage": "ok"}
	if _, err := s.ledger.Balances(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	tm := s.tracer.GetMetrics()
	dm := s.detector.GetMetrics()
	NewJSONResponse().Status(code).Data(map[string]any{
		"status": status,
		"checks": checks,
		"metrics": map[string]int64{
			"total_requests":       tm.TotalRequests,
			"server_errors":        tm.ServerErrors,
			"last_response_us":     tm.AverageResponseTime,
			"rate_limited":         s.limiter.Rejected(),
			"rate_limited_clients": int64(s.limiter.ActiveClients()),
			"suspicious_requests":  dm.SuspiciousRequests,
		},
	}).Write(w)
}

// fail logs err on the request logger and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	if StatusForError(err) >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, msg, log.FieldError, err)
	} else {
		logger.InfoContext(ctx, msg, log.FieldError, err)
	}
	DomainError(err).Write(w)
}
