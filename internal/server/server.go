package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/auth"
	"github.com/lonalabs/lona/internal/dataset"
	"github.com/lonalabs/lona/internal/execution"
	"github.com/lonalabs/lona/internal/knowledge"
	"github.com/lonalabs/lona/internal/queue"
	"github.com/lonalabs/lona/internal/ratelimit"
	"github.com/lonalabs/lona/internal/reconcile"
	"github.com/lonalabs/lona/internal/replaygate"
	"github.com/lonalabs/lona/internal/risk"
	"github.com/lonalabs/lona/internal/store"
)

// Server is the Lona HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Reconciler, Limiter.
type ServerConfig struct {
	// Required dependencies.
	Store      *store.Store
	JWTMgr     *auth.JWTManager
	Allowlist  *auth.KeyAllowlist
	ExecSvc    *execution.Service
	RiskEngine *risk.Engine
	Trader     adapters.TraderProvider
	DatasetSvc *dataset.Service
	Knowledge  *knowledge.Service
	Queue      *queue.Queue
	ReplayGate *replaygate.Gate
	Logger     *slog.Logger

	// Optional dependencies (nil = disabled).
	Reconciler *reconcile.Reconciler
	Limiter    ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	ResearchBudgetUSD   float64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		ExecSvc:             cfg.ExecSvc,
		RiskEngine:          cfg.RiskEngine,
		Trader:              cfg.Trader,
		DatasetSvc:          cfg.DatasetSvc,
		Knowledge:           cfg.Knowledge,
		Queue:               cfg.Queue,
		Reconciler:          cfg.Reconciler,
		ReplayGate:          cfg.ReplayGate,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		ResearchBudgetUSD:   cfg.ResearchBudgetUSD,
	})

	// Command endpoints share one per-tenant limiter; reads are unlimited.
	commandRL := rateLimitMiddleware(cfg.Limiter, cfg.Logger)

	mux := http.NewServeMux()

	// Strategies.
	mux.Handle("POST /v1/strategies", commandRL(http.HandlerFunc(h.HandleCreateStrategy)))
	mux.HandleFunc("GET /v1/strategies", h.HandleListStrategies)
	mux.HandleFunc("GET /v1/strategies/{id}", h.HandleGetStrategy)
	mux.Handle("PATCH /v1/strategies/{id}", commandRL(http.HandlerFunc(h.HandleUpdateStrategy)))

	// Backtests.
	mux.Handle("POST /v1/backtests", commandRL(http.HandlerFunc(h.HandleCreateBacktest)))
	mux.HandleFunc("GET /v1/backtests", h.HandleListBacktests)
	mux.HandleFunc("GET /v1/backtests/{id}", h.HandleGetBacktest)

	// Deployments.
	mux.Handle("POST /v1/deployments", commandRL(http.HandlerFunc(h.HandleCreateDeployment)))
	mux.HandleFunc("GET /v1/deployments", h.HandleListDeployments)
	mux.HandleFunc("GET /v1/deployments/{id}", h.HandleGetDeployment)
	mux.Handle("POST /v1/deployments/{id}/stop", commandRL(http.HandlerFunc(h.HandleStopDeployment)))

	// Orders and portfolio.
	mux.Handle("POST /v1/orders", commandRL(http.HandlerFunc(h.HandlePlaceOrder)))
	mux.HandleFunc("GET /v1/orders", h.HandleListOrders)
	mux.HandleFunc("GET /v1/orders/{id}", h.HandleGetOrder)
	mux.Handle("POST /v1/orders/{id}/cancel", commandRL(http.HandlerFunc(h.HandleCancelOrder)))
	mux.HandleFunc("GET /v1/portfolio", h.HandleGetPortfolio)

	// Datasets.
	mux.Handle("POST /v1/datasets", commandRL(http.HandlerFunc(h.HandleRegisterDataset)))
	mux.Handle("POST /v1/datasets/{id}/publish", commandRL(http.HandlerFunc(h.HandlePublishDataset)))
	mux.HandleFunc("GET /v1/datasets", h.HandleListDatasets)
	mux.HandleFunc("GET /v1/datasets/{id}", h.HandleGetDataset)

	// Risk.
	mux.HandleFunc("GET /v1/risk/policy", h.HandleGetRiskPolicy)
	mux.HandleFunc("GET /v1/risk/audit", h.HandleListRiskAudit)
	mux.Handle("POST /v1/risk/kill-switch/reset", commandRL(http.HandlerFunc(h.HandleResetKillSwitch)))

	// Orchestrator runs.
	mux.Handle("POST /v1/orchestrator/runs", commandRL(http.HandlerFunc(h.HandleEnqueueRun)))
	mux.HandleFunc("GET /v1/orchestrator/runs/{id}", h.HandleGetRun)
	mux.Handle("POST /v1/orchestrator/runs/{id}/cancel", commandRL(http.HandlerFunc(h.HandleCancelRun)))
	mux.HandleFunc("GET /v1/orchestrator/runs/{id}/traces", h.HandleListRunTraces)

	// Knowledge base.
	mux.HandleFunc("POST /v1/knowledge/query", h.HandleKnowledgeQuery)
	mux.HandleFunc("GET /v1/knowledge/lessons", h.HandleListLessons)

	// Validation and replay gate.
	mux.Handle("POST /v1/validation/runs", commandRL(http.HandlerFunc(h.HandleCreateValidationRun)))
	mux.Handle("POST /v1/validation/baselines", commandRL(http.HandlerFunc(h.HandleCreateBaseline)))
	mux.HandleFunc("POST /v1/validation/replay", h.HandleReplay)

	// Reconciliation drift.
	mux.HandleFunc("GET /v1/drift-events", h.HandleListDriftEvents)

	// v2 list variants with reconciliation metadata.
	mux.HandleFunc("GET /v2/deployments", h.HandleListDeploymentsV2)
	mux.HandleFunc("GET /v2/orders", h.HandleListOrdersV2)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, cfg.Allowlist, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
