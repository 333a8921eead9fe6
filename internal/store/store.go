// Package store is the process-wide in-memory state store.
//
// One Store instance owns every entity record; services hold IDs and
// transient copies only. All mutation goes through the guarded API: a single
// RWMutex makes ID allocation + insert atomic, and the idempotency cache's
// compare-and-set atomic. The lock is never held across adapter I/O: callers
// read bookkeeping, release, call out, then write results back.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist for the
// requesting tenant. Cross-tenant reads return the same error, so a foreign
// record is indistinguishable from a missing one.
var ErrNotFound = errors.New("store: not found")

// Store is the typed in-memory repository for all platform entities.
type Store struct {
	mu sync.RWMutex

	counters map[string]int64

	strategies  map[string]model.Strategy
	backtests   map[string]model.Backtest
	deployments map[string]model.Deployment
	orders      map[string]model.Order
	portfolios  map[string]model.Portfolio // keyed by tenantID/mode
	datasets    map[string]model.Dataset
	runs        map[string]model.OrchestratorRun

	traces      []model.ExecutionTrace
	driftEvents []model.DriftEvent
	riskAudit   []model.RiskAuditRecord

	idempotency map[idemKey]*idemEntry

	patterns     []model.Pattern
	regimes      []model.Regime
	lessons      []model.Lesson
	macroEvents  []model.MacroEvent
	correlations []model.Correlation
	seenIngest   map[string]bool

	validationRuns map[string]model.ValidationRun
	baselines      map[string]model.ValidationBaseline

	marketCtx map[string]marketEntry
	marketTTL time.Duration

	researchSpend map[string]float64 // tenantID -> spent USD

	auditSink AuditSink

	logger *slog.Logger
}

// New creates an empty Store. marketTTL bounds the market-context cache;
// zero disables caching.
func New(logger *slog.Logger, marketTTL time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		counters:       make(map[string]int64),
		strategies:     make(map[string]model.Strategy),
		backtests:      make(map[string]model.Backtest),
		deployments:    make(map[string]model.Deployment),
		orders:         make(map[string]model.Order),
		portfolios:     make(map[string]model.Portfolio),
		datasets:       make(map[string]model.Dataset),
		runs:           make(map[string]model.OrchestratorRun),
		idempotency:    make(map[idemKey]*idemEntry),
		seenIngest:     make(map[string]bool),
		validationRuns: make(map[string]model.ValidationRun),
		baselines:      make(map[string]model.ValidationBaseline),
		marketCtx:      make(map[string]marketEntry),
		marketTTL:      marketTTL,
		researchSpend:  make(map[string]float64),
		logger:         logger,
	}
}

// nextIDLocked allocates the next monotonic ID for a prefix.
// Caller must hold the write lock.
func (s *Store) nextIDLocked(prefix string) string {
	s.counters[prefix]++
	return fmt.Sprintf("%s-%06d", prefix, s.counters[prefix])
}

// owned reports whether a record's scope matches the requesting identity.
func owned(tenantID, userID string, rctx model.RequestContext) bool {
	return tenantID == rctx.TenantID && userID == rctx.UserID
}

// sortByCreated orders records oldest-first with ID as tiebreaker, so list
// endpoints are deterministic.
func sortByCreated[T any](items []T, createdAt func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ti, tj := createdAt(items[i]), createdAt(items[j])
		if ti.Equal(tj) {
			return id(items[i]) < id(items[j])
		}
		return ti.Before(tj)
	})
}
