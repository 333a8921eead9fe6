package model

import (
	"fmt"
	"strings"
)

// APIResponse is the standard success envelope for all HTTP responses.
type APIResponse struct {
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
}

// APIError is the standard error envelope.
type APIError struct {
	RequestID string      `json:"requestId"`
	Error     ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListResponse is the envelope for list endpoints.
type ListResponse struct {
	RequestID string `json:"requestId"`
	Data      any    `json:"data"`
	Total     int    `json:"total"`
}

// CreateStrategyRequest is the body for POST /v1/strategies.
type CreateStrategyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Validate checks required fields.
func (r CreateStrategyRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// UpdateStrategyRequest is the body for PATCH /v1/strategies/{id}.
type UpdateStrategyRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateBacktestRequest is the body for POST /v1/backtests.
type CreateBacktestRequest struct {
	StrategyID  string   `json:"strategyId"`
	DatasetIDs  []string `json:"datasetIds"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	InitialCash float64  `json:"initialCash"`
}

// Validate checks required fields and bounds.
func (r CreateBacktestRequest) Validate() error {
	if r.StrategyID == "" {
		return fmt.Errorf("strategyId is required")
	}
	if len(r.DatasetIDs) == 0 {
		return fmt.Errorf("datasetIds must be non-empty")
	}
	if r.InitialCash <= 0 {
		return fmt.Errorf("initialCash must be positive")
	}
	return nil
}

// CreateDeploymentRequest is the body for POST /v1/deployments.
type CreateDeploymentRequest struct {
	StrategyID string         `json:"strategyId"`
	Mode       DeploymentMode `json:"mode"`
	Capital    float64        `json:"capital"`
}

// Validate checks required fields and bounds.
func (r CreateDeploymentRequest) Validate() error {
	if r.StrategyID == "" {
		return fmt.Errorf("strategyId is required")
	}
	if r.Mode != ModePaper && r.Mode != ModeLive {
		return fmt.Errorf("mode must be %q or %q", ModePaper, ModeLive)
	}
	if r.Capital <= 0 {
		return fmt.Errorf("capital must be positive")
	}
	return nil
}

// PlaceOrderRequest is the body for POST /v1/orders.
type PlaceOrderRequest struct {
	Symbol       string    `json:"symbol"`
	Side         OrderSide `json:"side"`
	OrderType    string    `json:"orderType"`
	Quantity     float64   `json:"quantity"`
	Price        *float64  `json:"price,omitempty"`
	DeploymentID string    `json:"deploymentId,omitempty"`
}

// Validate checks required fields and bounds.
func (r PlaceOrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("side must be %q or %q", SideBuy, SideSell)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if r.Price != nil && *r.Price <= 0 {
		return fmt.Errorf("price must be positive when present")
	}
	return nil
}

// RegisterDatasetRequest is the body for POST /v1/datasets.
type RegisterDatasetRequest struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Validate checks required fields.
func (r RegisterDatasetRequest) Validate() error {
	if strings.TrimSpace(r.Filename) == "" {
		return fmt.Errorf("filename is required")
	}
	if r.SizeBytes < 0 {
		return fmt.Errorf("sizeBytes must be non-negative")
	}
	return nil
}

// EnqueueRunRequest is the body for POST /v1/orchestrator/runs.
type EnqueueRunRequest struct {
	Priority int            `json:"priority"`
	Intent   string         `json:"intent"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CancelRunRequest is the body for POST /v1/orchestrator/runs/{id}/cancel.
type CancelRunRequest struct {
	Reason string `json:"reason"`
}

// KnowledgeQueryRequest is the body for POST /v1/knowledge/query.
type KnowledgeQueryRequest struct {
	Query  string   `json:"query"`
	Assets []string `json:"assets,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// CreateValidationRunRequest is the body for POST /v1/validation/runs.
type CreateValidationRunRequest struct {
	Actor       ValidationActor    `json:"actor"`
	ArtifactRef string             `json:"artifactRef"`
	Decision    ValidationDecision `json:"decision"`
	DriftPct    float64            `json:"driftPct"`
}

// Validate checks enum fields.
func (r CreateValidationRunRequest) Validate() error {
	if r.Actor != ActorUser && r.Actor != ActorBot {
		return fmt.Errorf("actor must be %q or %q", ActorUser, ActorBot)
	}
	if r.ArtifactRef == "" {
		return fmt.Errorf("artifactRef is required")
	}
	switch r.Decision {
	case DecisionPass, DecisionConditionalPass, DecisionFail, DecisionUnknown:
	default:
		return fmt.Errorf("decision %q is not valid", r.Decision)
	}
	return nil
}

// CreateBaselineRequest is the body for POST /v1/validation/baselines.
type CreateBaselineRequest struct {
	ArtifactRef string             `json:"artifactRef"`
	Decision    ValidationDecision `json:"decision"`
	DriftPct    float64            `json:"driftPct"`
}

// ReplayRequest is the body for POST /v1/validation/replay.
type ReplayRequest struct {
	BaselineID              string             `json:"baselineId,omitempty"`
	BaselineDecision        ValidationDecision `json:"baselineDecision,omitempty"`
	BaselineDriftPct        float64            `json:"baselineDriftPct"`
	CandidateDecision       ValidationDecision `json:"candidateDecision"`
	CandidateDriftPct       float64            `json:"candidateDriftPct"`
	DriftThresholdPct       float64            `json:"driftThresholdPct"`
	BlockMergeOnFail        bool               `json:"blockMergeOnFail"`
	BlockReleaseOnFail      bool               `json:"blockReleaseOnFail"`
	BlockMergeOnAgentFail   bool               `json:"blockMergeOnAgentFail"`
	BlockReleaseOnAgentFail bool               `json:"blockReleaseOnAgentFail"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptimeSeconds"`
}
