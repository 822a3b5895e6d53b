package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

const (
	defaultRequestTimeout = 7 * time.Second
	readyTimeout          = 2 * time.Second
)

// Services are the operations the API exposes. Store is used only for
// readiness checks.
type Services struct {
	Ledger    *services.LedgerService
	NetIncome *services.NetIncomeService
	Recurring *services.RecurringProcessor
	Budget    *services.BudgetService
	Store     ledger.Store
}

// Options tune the server. Zero values pick the defaults.
type Options struct {
	Logger             *applog.Logger
	Metrics            *metrics.Metrics
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	// Now is the clock used when a request does not name its own today.
	Now func() time.Time
}

type Server struct {
	http.Server
	svc      Services
	logger   *applog.Logger
	timeout  time.Duration
	now      func() time.Time
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		svc:      svc,
		logger:   opts.Logger.WithComponent(applog.ComponentHTTP),
		timeout:  opts.RequestTimeout,
		now:      opts.Now,
		limiter:  ratelimit.NewLimiter(rlConfig),
		detector: security.NewDetector(),
	}

	mux := http.NewServeMux()
	s.routes(mux, opts.Metrics)

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.limiter.Middleware(s.detector.ClientIP, s.rateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = trace.NewMiddleware(opts.Logger, opts.Metrics, s.detector.ClientIP).Middleware(handler)
	handler = applog.Middleware(s.logger)(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 5 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s
}

func (s *Server) routes(mux *http.ServeMux, m *metrics.Metrics) {
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	s.handle(mux, "GET /metrics", m.Handler().ServeHTTP)

	s.handle(mux, "GET /users", s.handleListOwners)
	s.handle(mux, "POST /users", s.handleCreateOwner)
	s.handle(mux, "GET /users/{id}", s.handleGetOwner)
	s.handle(mux, "PUT /users/{id}", s.handleUpdateOwner)
	s.handle(mux, "DELETE /users/{id}", s.handleDeleteOwner)

	for _, r := range []struct {
		kind       core.Kind
		collection string
		item       string
	}{
		{core.Income, "/users/{id}/incomes", "/income/{id}"},
		{core.Expense, "/users/{id}/expenses", "/expense/{id}"},
	} {
		s.handle(mux, "GET "+r.collection, s.handleListTransactions(r.kind))
		s.handle(mux, "POST "+r.collection, s.handleCreateTransaction(r.kind))
		s.handle(mux, "GET "+r.item, s.handleGetTransaction(r.kind))
		s.handle(mux, "PUT "+r.item, s.handleUpdateTransaction(r.kind))
		s.handle(mux, "DELETE "+r.item, s.handleDeleteTransaction(r.kind))
	}

	s.handle(mux, "GET /users/{id}/netIncome", s.handleNetIncome)
	s.handle(mux, "GET /users/{id}/graphData", s.handleGraphData)
	s.handle(mux, "GET /users/{id}/upcomingExpenses", s.handleUpcomingExpenses)
	s.handle(mux, "GET /users/{id}/budget", s.handleGetBudget)
	s.handle(mux, "PUT /users/{id}/budget", s.handleSetBudget)
}

// handle registers h under pattern, reporting the pattern as the route for
// logs and metrics and bounding the request with the server timeout.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(r.Context(), pattern)
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldRoute, r.Method+" "+r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 until the ledger store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "store": "not_configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.svc.Store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed",
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "ok"})
}
