// Package knowledge turns lifecycle events into durable lessons and serves
// substring-scored queries over the knowledge base.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lonalabs/lona/internal/canonical"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Lesson categories written by ingestion.
const (
	CategoryBacktestCompleted = "backtest_completed"
	CategoryBacktestFailure   = "backtest_failure"
	CategoryBacktestStatus    = "backtest_status"
	CategoryDeploymentState   = "deployment_state"
)

const defaultQueryLimit = 20

// Relative match weights. Lessons always score below patterns so curated
// patterns rank first on equal text overlap.
const (
	patternFieldScore = 10
	lessonMatchScore  = 4
)

// Service ingests lifecycle events and answers knowledge queries.
type Service struct {
	st     *store.Store
	logger *slog.Logger
}

// NewService creates the knowledge service.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, logger: logger}
}

// IngestBacktestOutcome records a lesson for a finished or observed backtest.
// Idempotent: repeated ingestion of the same outcome writes at most one
// lesson.
func (s *Service) IngestBacktestOutcome(rctx model.RequestContext, bt model.Backtest) (model.Lesson, bool) {
	fingerprint, err := canonical.Fingerprint(map[string]any{
		"scope":      "backtest_outcome",
		"strategyId": bt.StrategyID,
		"backtestId": bt.ID,
		"status":     bt.Status,
		"metrics":    bt.Metrics,
		"error":      bt.Error,
	})
	if err != nil {
		s.logger.Error("backtest outcome fingerprint failed", "backtestId", bt.ID, "error", err)
		return model.Lesson{}, false
	}
	if !s.st.MarkIngested(fingerprint) {
		return model.Lesson{}, false
	}

	var category, summary string
	switch bt.Status {
	case model.BacktestCompleted:
		category = CategoryBacktestCompleted
		summary = fmt.Sprintf("backtest %s for strategy %s completed", bt.ID, bt.StrategyID)
		if v, ok := bt.Metrics["total_return_pct"]; ok {
			summary = fmt.Sprintf("%s with %.2f%% return", summary, v)
		}
	case model.BacktestFailed:
		category = CategoryBacktestFailure
		summary = fmt.Sprintf("backtest %s for strategy %s failed: %s", bt.ID, bt.StrategyID, bt.Error)
	default:
		category = CategoryBacktestStatus
		summary = fmt.Sprintf("backtest %s for strategy %s is %s", bt.ID, bt.StrategyID, bt.Status)
	}

	lesson := s.st.AddLesson(rctx, model.Lesson{
		Category:   category,
		Summary:    summary,
		StrategyID: bt.StrategyID,
		SourceID:   bt.ID,
	})
	return lesson, true
}

// IngestDeploymentState records a lesson for a deployment status or PnL
// change. Same idempotence rule as backtest outcomes.
func (s *Service) IngestDeploymentState(rctx model.RequestContext, dep model.Deployment) (model.Lesson, bool) {
	var pnl any
	if dep.LatestPnl != nil {
		pnl = *dep.LatestPnl
	}
	fingerprint, err := canonical.Fingerprint(map[string]any{
		"scope":        "deployment_state",
		"deploymentId": dep.ID,
		"status":       dep.Status,
		"latestPnl":    pnl,
	})
	if err != nil {
		s.logger.Error("deployment state fingerprint failed", "deploymentId", dep.ID, "error", err)
		return model.Lesson{}, false
	}
	if !s.st.MarkIngested(fingerprint) {
		return model.Lesson{}, false
	}

	summary := fmt.Sprintf("deployment %s for strategy %s is %s", dep.ID, dep.StrategyID, dep.Status)
	if dep.LatestPnl != nil {
		summary = fmt.Sprintf("%s with pnl %.2f", summary, *dep.LatestPnl)
	}
	lesson := s.st.AddLesson(rctx, model.Lesson{
		Category:   CategoryDeploymentState,
		Summary:    summary,
		StrategyID: dep.StrategyID,
		SourceID:   dep.ID,
	})
	return lesson, true
}

// QueryResult is one scored hit.
type QueryResult struct {
	Kind    string         `json:"kind"`
	Score   int            `json:"score"`
	Pattern *model.Pattern `json:"pattern,omitempty"`
	Lesson  *model.Lesson  `json:"lesson,omitempty"`
}

func normalizeTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func assetsOverlap(filter, assets []string) bool {
	if len(filter) == 0 {
		return true
	}
	have := make(map[string]bool, len(assets))
	for _, a := range assets {
		have[strings.ToLower(a)] = true
	}
	for _, f := range filter {
		if have[strings.ToLower(f)] {
			return true
		}
	}
	return false
}

func scorePattern(terms []string, p model.Pattern) int {
	haystacks := []string{
		strings.ToLower(p.Name),
		strings.ToLower(p.Description),
		strings.ToLower(p.PatternType),
		strings.ToLower(strings.Join(p.SuitableRegimes, " ")),
	}
	score := 0
	for _, term := range terms {
		for _, h := range haystacks {
			if strings.Contains(h, term) {
				score += patternFieldScore
			}
		}
	}
	return score
}

func scoreLesson(terms []string, l model.Lesson) int {
	text := strings.ToLower(l.Summary + " " + l.Category)
	score := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			score += lessonMatchScore
		}
	}
	return score
}

// Query scores patterns and lessons against the request text, filters
// patterns by asset overlap, and returns the top hits by descending score.
func (s *Service) Query(rctx model.RequestContext, req model.KnowledgeQueryRequest) []QueryResult {
	terms := normalizeTerms(req.Query)
	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var results []QueryResult
	for _, p := range s.st.ListPatterns(rctx) {
		if !assetsOverlap(req.Assets, p.Assets) {
			continue
		}
		if score := scorePattern(terms, p); score > 0 {
			p := p
			results = append(results, QueryResult{Kind: "pattern", Score: score, Pattern: &p})
		}
	}
	for _, l := range s.st.ListLessons(rctx) {
		if score := scoreLesson(terms, l); score > 0 {
			l := l
			results = append(results, QueryResult{Kind: "lesson", Score: score, Lesson: &l})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
