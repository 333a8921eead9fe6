package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/dataset"
	"github.com/lonalabs/lona/internal/execution"
	"github.com/lonalabs/lona/internal/knowledge"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/queue"
	"github.com/lonalabs/lona/internal/reconcile"
	"github.com/lonalabs/lona/internal/replaygate"
	"github.com/lonalabs/lona/internal/risk"
	"github.com/lonalabs/lona/internal/store"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	st         *store.Store
	exec       *execution.Service
	riskEngine *risk.Engine
	trader     adapters.TraderProvider
	datasets   *dataset.Service
	know       *knowledge.Service
	runs       *queue.Queue
	recon      *reconcile.Reconciler
	gate       *replaygate.Gate
	logger     *slog.Logger

	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	researchBudgetUSD   float64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Reconciler.
type HandlersDeps struct {
	Store               *store.Store
	ExecSvc             *execution.Service
	RiskEngine          *risk.Engine
	Trader              adapters.TraderProvider
	DatasetSvc          *dataset.Service
	Knowledge           *knowledge.Service
	Queue               *queue.Queue
	Reconciler          *reconcile.Reconciler
	ReplayGate          *replaygate.Gate
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	ResearchBudgetUSD   float64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		st:                  d.Store,
		exec:                d.ExecSvc,
		riskEngine:          d.RiskEngine,
		trader:              d.Trader,
		datasets:            d.DatasetSvc,
		know:                d.Knowledge,
		runs:                d.Queue,
		recon:               d.Reconciler,
		gate:                d.ReplayGate,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		researchBudgetUSD:   d.ResearchBudgetUSD,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}
