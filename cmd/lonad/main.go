// Command lonad runs the Lona trading orchestration control plane.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/auditlog"
	"github.com/lonalabs/lona/internal/auth"
	"github.com/lonalabs/lona/internal/config"
	"github.com/lonalabs/lona/internal/dataset"
	"github.com/lonalabs/lona/internal/execution"
	"github.com/lonalabs/lona/internal/knowledge"
	"github.com/lonalabs/lona/internal/queue"
	"github.com/lonalabs/lona/internal/ratelimit"
	"github.com/lonalabs/lona/internal/reconcile"
	"github.com/lonalabs/lona/internal/replaygate"
	"github.com/lonalabs/lona/internal/risk"
	"github.com/lonalabs/lona/internal/server"
	"github.com/lonalabs/lona/internal/store"
	"github.com/lonalabs/lona/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LONA_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("lona starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st := store.New(logger, cfg.MarketContextTTL)

	// Durable audit archive (optional; empty path disables it).
	archive, err := auditlog.Open(cfg.AuditDBPath, logger)
	if err != nil {
		return fmt.Errorf("auditlog: %w", err)
	}
	if archive != nil {
		defer func() { _ = archive.Close() }()
		st.SetAuditSink(archive)
		logger.Info("audit archive: enabled", "path", cfg.AuditDBPath)
	} else {
		logger.Info("audit archive: disabled (no LONA_AUDIT_DB_PATH)")
	}

	// Identity.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	allowlist := auth.NewKeyAllowlist(cfg.APIKeyHashes)

	// Provider adapters; fakes back any provider without a configured URL.
	var trader adapters.TraderProvider
	if cfg.TraderURL != "" {
		trader = adapters.NewHTTPTrader(cfg.TraderURL, cfg.TraderDataTimeout)
		logger.Info("trader provider: http", "url", cfg.TraderURL)
	} else {
		trader = adapters.NewFakeTrader()
		logger.Info("trader provider: fake (no TRADER_URL)")
	}

	var engine adapters.LiveEngine
	if cfg.LiveEngineURL != "" {
		engine = adapters.NewHTTPLiveEngine(cfg.LiveEngineURL, cfg.LiveEngineTimeout)
		logger.Info("live engine: http", "url", cfg.LiveEngineURL)
	} else {
		engine = adapters.NewFakeLiveEngine()
		logger.Info("live engine: fake (no LIVE_ENGINE_URL)")
	}

	var bridge adapters.DataBridge
	if cfg.DataBridgeURL != "" {
		bridge = adapters.NewHTTPDataBridge(cfg.DataBridgeURL, cfg.TraderDataTimeout)
		logger.Info("data bridge: http", "url", cfg.DataBridgeURL)
	} else {
		bridge = adapters.NewFakeDataBridge()
		logger.Info("data bridge: fake (no DATA_BRIDGE_URL)")
	}

	// Risk policy and engine.
	policy, err := risk.LoadPolicy(cfg.RiskPolicyPath)
	if err != nil {
		return fmt.Errorf("risk policy: %w", err)
	}
	riskEngine := risk.NewEngine(policy, st, logger)
	logger.Info("risk policy loaded",
		"mode", policy.Mode, "maxNotionalUsd", policy.Limits.MaxNotionalUsd,
		"killSwitchEnabled", policy.KillSwitch.Enabled)

	// Domain services.
	execSvc := execution.NewService(st, engine, riskEngine, logger)
	riskEngine.SetStopper(execSvc)
	riskEngine.SetMarketData(bridge)
	know := knowledge.NewService(st, logger)
	datasetSvc := dataset.NewService(st, bridge, logger)
	runQueue := queue.New(st, logger)
	recon := reconcile.New(st, engine, know, cfg.ReconcileMinInterval, logger)
	gate := replaygate.NewGate(st)

	// Background reconciliation sweep.
	if cfg.ReconcileCadence > 0 {
		go recon.Run(ctx, cfg.ReconcileCadence)
		logger.Info("reconciler: running", "cadence", cfg.ReconcileCadence)
	} else {
		logger.Info("reconciler: background sweep disabled")
	}

	// Bound the idempotency cache.
	go idempotencyCleanupLoop(ctx, st, logger, cfg.IdempotencyCompletedTTL, cfg.IdempotencyInProgressTTL)

	// Per-tenant command rate limiting.
	var limiter ratelimit.Limiter
	if cfg.CommandRateLimit > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.CommandRateLimit, cfg.CommandRateBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rate", cfg.CommandRateLimit, "burst", cfg.CommandRateBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		Store:               st,
		JWTMgr:              jwtMgr,
		Allowlist:           allowlist,
		ExecSvc:             execSvc,
		RiskEngine:          riskEngine,
		Trader:              trader,
		DatasetSvc:          datasetSvc,
		Knowledge:           know,
		Queue:               runQueue,
		ReplayGate:          gate,
		Reconciler:          recon,
		Limiter:             limiter,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		ResearchBudgetUSD:   cfg.ResearchBudgetUSD,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("lona stopped")
	return nil
}

// idempotencyCleanupLoop periodically evicts expired idempotency entries.
func idempotencyCleanupLoop(ctx context.Context, st *store.Store, logger *slog.Logger,
	completedTTL, inProgressTTL time.Duration) {

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := st.CleanupIdempotency(completedTTL, inProgressTTL); removed > 0 {
				logger.Debug("idempotency cleanup", "removed", removed)
			}
		}
	}
}
