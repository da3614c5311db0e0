package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finlight/internal/auth"
	"finlight/internal/log"
	"finlight/internal/middleware/ratelimit"
	"finlight/internal/middleware/security"
	"finlight/internal/middleware/trace"
	"finlight/internal/services"
	"finlight/internal/store"
)

// Server wraps http.Server with the API's handlers and middleware.
type Server struct {
	http.Server

	dashboard *services.DashboardService
	receipts  *services.ReceiptService
	auditLogs *services.AuditLogService
	ready     store.Pinger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger

	shutdownOnce sync.Once
}

// Options configures NewServer. Dashboard and Verifier are required.
type Options struct {
	Addr      string
	Dashboard *services.DashboardService
	Receipts  *services.ReceiptService
	AuditLogs *services.AuditLogService
	Verifier  *auth.Verifier
	// Ready is pinged by /readyz; nil means always ready.
	Ready store.Pinger

	RateLimitPerMinute int
	// TrustedProxies are CIDRs, beyond the private ranges, whose
	// forwarding headers are believed.
	TrustedProxies []string

	Logger *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
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

	s := &Server{
		dashboard: opts.Dashboard,
		receipts:  opts.Receipts,
		auditLogs: opts.AuditLogs,
		ready:     opts.Ready,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  detector,
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	authed := auth.Middleware(opts.Verifier, writeError)
	mux.Handle("GET /dashboard/summary", log.ComponentMiddleware(log.ComponentDashboard)(
		authed(http.HandlerFunc(s.handleDashboardSummary))))
	mux.Handle("POST /ocr/receipt", log.ComponentMiddleware(log.ComponentReceipt)(
		authed(http.HandlerFunc(s.handleReceiptUpload))))
	if s.auditLogs != nil {
		mux.Handle("GET /audit-logs", log.ComponentMiddleware(log.ComponentAudit)(
			authed(http.HandlerFunc(s.handleAuditLogs))))
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, writeRateLimited)(handler)
	handler = detector.Middleware(logger.WithComponent(log.ComponentSecurity).Logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background workers and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)

		m := s.tracer.GetMetrics()
		s.logger.Info("HTTP server stopped",
			"requests", m.TotalRequests,
			"avg_response_us", m.AverageResponseTime,
			"rate_limited", s.limiter.GetMetrics().Rejected,
			"suspicious", s.detector.GetMetrics().SuspiciousRequests)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, apiResponse{
		Success: false,
		Message: http.StatusText(http.StatusTooManyRequests),
		Errors:  []string{"rate limit exceeded, please try again later"},
	})
}
