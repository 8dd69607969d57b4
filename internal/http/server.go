package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"budgetflow/internal/core"
	applog "budgetflow/internal/log"
	"budgetflow/internal/metrics"
	"budgetflow/internal/middleware/ratelimit"
	"budgetflow/internal/middleware/security"
	"budgetflow/internal/middleware/trace"
	"budgetflow/internal/services"
)

// Ports the handlers depend on. The services package provides the implementations.
type (
	LedgerService interface {
		GetAllocationState(ctx context.Context, month core.YearMonth) (core.AllocationState, error)
		SetIncomeOverride(ctx context.Context, month core.YearMonth, amount *core.Money) error
	}

	DistributionService interface {
		ActiveEnvelopes(ctx context.Context) ([]core.Envelope, error)
		DistributeManually(ctx context.Context, amount core.Money, strategy core.StrategyName, preview bool) (core.DistributionResult, error)
		EvaluateTransaction(ctx context.Context, txID string) (services.RuleEvaluation, error)
		ListRules(ctx context.Context) ([]core.DistributionRule, error)
		GetRule(ctx context.Context, id string) (core.DistributionRule, error)
		CreateRule(ctx context.Context, r core.DistributionRule) (core.DistributionRule, error)
		UpdateRule(ctx context.Context, id string, r core.DistributionRule) (core.DistributionRule, error)
		DeleteRule(ctx context.Context, id string) error
	}

	TransferService interface {
		ComputeTransferSuggestions(ctx context.Context, month core.YearMonth) (core.TransferReport, error)
	}

	NotificationService interface {
		Feed(ctx context.Context, clientID string) (services.NotificationFeed, error)
		Dismiss(ctx context.Context, clientID, alertID string) error
	}
)

type Services struct {
	Ledger        LedgerService
	Distribution  DistributionService
	Advisor       TransferService
	Notifications NotificationService
}

type Options struct {
	RateLimitPerMinute int
	// Ready backs /readyz; nil means always ready.
	Ready   func(ctx context.Context) error
	Metrics *metrics.Registry
	Logger  *applog.Logger
	// Now defaults the month of transfer suggestions.
	Now func() time.Time
}

type Server struct {
	http.Server
	svc      Services
	opts     Options
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures the router and middleware chain, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}

	s := &Server{
		svc:      svc,
		opts:     opts,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		logger:   logger.WithComponent(applog.ComponentHTTP),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, s.observe).Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.flagSuspicious)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.rateLimited))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/allocation-state/{month}", s.handleAllocationState)
		r.Put("/income-override/{month}", s.handleIncomeOverride)

		r.Get("/envelopes", s.handleEnvelopes)
		r.Post("/distribute", s.handleDistribute)
		r.Post("/distribute-rule-evaluate", s.handleRuleEvaluate)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
		})

		r.Get("/transfer-suggestions", s.handleTransferSuggestions)

		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/dismiss", s.handleDismiss)
	})
	return r
}

// observe feeds request metrics keyed by the matched route pattern.
func (s *Server) observe(r *http.Request, status int, elapsed time.Duration) {
	if s.opts.Metrics == nil {
		return
	}
	route := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route = rctx.RoutePattern()
	}
	s.opts.Metrics.ObserveRequest(route, r.Method, status, elapsed)
}

// flagSuspicious logs and counts probing requests without blocking them.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).Warn("Suspicious request detected",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent())
			if s.opts.Metrics != nil {
				s.opts.Metrics.Suspicious.Inc()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).Warn("Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RateLimited.Inc()
	}
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			applog.FromContext(r.Context()).Warn("Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
