package http

import (
	"context"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/blob"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API serves.
type Deps struct {
	Categories *services.CategoryService
	Expenses   *services.ExpenseService
	Spending   *services.SpendingService
	Export     *services.ExportService
	Receipts   *blob.LocalStore
	Tokens     *auth.Tokens
	Store      Pinger
}

// Options tunes the middleware stack.
type Options struct {
	Logger             *applog.Logger
	RateLimitPerMinute int

	// TrustedProxies overrides security.DefaultTrustedProxies when non-nil.
	TrustedProxies []netip.Prefix
}

type appMetrics struct {
	expensesCreated int64
	uptime          time.Time
}

type Server struct {
	http.Server
	deps Deps

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// receiptCacheSeconds matches the lifetime of a signed download URL.
const receiptCacheSeconds = int(blob.DefaultDownloadTTL / time.Second)

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	detector := security.NewDetector(opts.TrustedProxies)
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps: deps,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			WritesOnly:        true,
		}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/periods", s.handlePeriods)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("POST /api/categories/seed", s.handleSeedCategories)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/spending", s.handleSpending)
	mux.HandleFunc("GET /api/export", s.handleExport)

	if deps.Receipts != nil {
		mux.HandleFunc("POST /api/receipts/upload-url", s.handleReceiptUploadURL)
		mux.Handle("/receipts/", security.ImmutableMiddleware(receiptCacheSeconds)(deps.Receipts.Handler()))
	}

	var h http.Handler = mux
	h = deps.Tokens.Middleware(writeError)(h)
	h = s.rateLimiter.Middleware(detector.ExtractClientIP, handleRateLimited)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h

	return s
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) recordExpenseCreated() {
	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)
}
