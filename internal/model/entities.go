// Package model defines the domain entities, API contract types, and the
// stable error-code taxonomy shared by every Lona service.
package model

import "time"

// SchemaVersion is stamped on every persisted knowledge and policy record.
const SchemaVersion = "1.0"

// RequestContext identifies the tenant, user, and request behind an operation.
// Every persisted record carries at least TenantID and UserID; cross-tenant
// reads are rejected at the store.
type RequestContext struct {
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
}

// Strategy is a trading strategy registered with the platform. Strategies are
// never deleted; they are referenced by backtests and deployments.
type Strategy struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Provider      string    `json:"provider"`
	ProviderRefID string    `json:"providerRefId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	TenantID      string    `json:"tenantId"`
	UserID        string    `json:"userId"`
}

// BacktestStatus is the lifecycle status of a backtest.
type BacktestStatus string

const (
	BacktestQueued    BacktestStatus = "queued"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
	BacktestCancelled BacktestStatus = "cancelled"
)

// Backtest is a historical simulation of a strategy over one or more datasets.
type Backtest struct {
	ID               string             `json:"id"`
	StrategyID       string             `json:"strategyId"`
	DatasetIDs       []string           `json:"datasetIds"`
	StartDate        string             `json:"startDate"`
	EndDate          string             `json:"endDate"`
	InitialCash      float64            `json:"initialCash"`
	Status           BacktestStatus     `json:"status"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	ProviderReportID string             `json:"providerReportId,omitempty"`
	Error            string             `json:"error,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
	TenantID         string             `json:"tenantId"`
	UserID           string             `json:"userId"`
}

// DeploymentMode selects paper or live execution.
type DeploymentMode string

const (
	ModePaper DeploymentMode = "paper"
	ModeLive  DeploymentMode = "live"
)

// DeploymentStatus is the lifecycle status of a deployment.
type DeploymentStatus string

const (
	DeploymentQueued   DeploymentStatus = "queued"
	DeploymentRunning  DeploymentStatus = "running"
	DeploymentPaused   DeploymentStatus = "paused"
	DeploymentStopping DeploymentStatus = "stopping"
	DeploymentStopped  DeploymentStatus = "stopped"
	DeploymentFailed   DeploymentStatus = "failed"
)

// Deployment is a strategy running against the live-execution engine.
type Deployment struct {
	ID               string           `json:"id"`
	StrategyID       string           `json:"strategyId"`
	Mode             DeploymentMode   `json:"mode"`
	Status           DeploymentStatus `json:"status"`
	Capital          float64          `json:"capital"`
	ProviderRefID    string           `json:"providerRefId,omitempty"`
	LatestPnl        *float64         `json:"latestPnl,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	LastReconciledAt *time.Time       `json:"lastReconciledAt,omitempty"`
	TenantID         string           `json:"tenantId"`
	UserID           string           `json:"userId"`
}

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Order is a single order placed through the live-execution engine.
type Order struct {
	ID               string      `json:"id"`
	Symbol           string      `json:"symbol"`
	Side             OrderSide   `json:"side"`
	OrderType        string      `json:"orderType"`
	Quantity         float64     `json:"quantity"`
	Price            *float64    `json:"price,omitempty"`
	Status           OrderStatus `json:"status"`
	DeploymentID     string      `json:"deploymentId,omitempty"`
	ProviderOrderID  string      `json:"providerOrderId,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	LastReconciledAt *time.Time  `json:"lastReconciledAt,omitempty"`
	TenantID         string      `json:"tenantId"`
	UserID           string      `json:"userId"`
}

// Position is a single holding within a portfolio.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	CurrentPrice float64 `json:"currentPrice"`
}

// Portfolio is the aggregate account state for one execution mode.
type Portfolio struct {
	ID         string         `json:"id"`
	Mode       DeploymentMode `json:"mode"`
	Cash       float64        `json:"cash"`
	TotalValue float64        `json:"totalValue"`
	PnlTotal   float64        `json:"pnlTotal"`
	Positions  []Position     `json:"positions"`
	TenantID   string         `json:"tenantId"`
	UserID     string         `json:"userId"`
}

// DatasetStatus is the publish lifecycle of a dataset.
type DatasetStatus string

const (
	DatasetInitialized   DatasetStatus = "initialized"
	DatasetUploaded      DatasetStatus = "uploaded"
	DatasetValidated     DatasetStatus = "validated"
	DatasetTransformed   DatasetStatus = "transformed"
	DatasetPublished     DatasetStatus = "published"
	DatasetPublishFailed DatasetStatus = "publish_failed"
)

// Dataset is a market-data file moving through the publish lifecycle.
type Dataset struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename"`
	SizeBytes      int64         `json:"sizeBytes"`
	Status         DatasetStatus `json:"status"`
	ProviderDataID string        `json:"providerDataId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	TenantID       string        `json:"tenantId"`
	UserID         string        `json:"userId"`
}

// DriftEvent records a divergence between platform state and provider state
// observed during reconciliation.
type DriftEvent struct {
	ID            string            `json:"id"`
	ResourceType  string            `json:"resourceType"`
	ResourceID    string            `json:"resourceId"`
	ProviderRefID string            `json:"providerRefId"`
	PreviousState string            `json:"previousState"`
	ProviderState string            `json:"providerState"`
	Resolution    string            `json:"resolution"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}

// MarketContext is a cached snapshot of provider market data for a symbol.
type MarketContext struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"lastPrice"`
	AsOf      time.Time `json:"asOf"`
}

// RiskDecision is the outcome of a risk check.
type RiskDecision string

const (
	RiskAllow RiskDecision = "allow"
	RiskBlock RiskDecision = "block"
)

// RiskAuditRecord captures one allow/block decision by the risk engine.
type RiskAuditRecord struct {
	ID            string            `json:"id"`
	Decision      RiskDecision      `json:"decision"`
	CheckType     string            `json:"checkType"`
	ResourceType  string            `json:"resourceType"`
	ResourceID    string            `json:"resourceId,omitempty"`
	PolicyVersion string            `json:"policyVersion"`
	PolicyMode    string            `json:"policyMode"`
	OutcomeCode   string            `json:"outcomeCode"`
	Reason        string            `json:"reason,omitempty"`
	Context       map[string]string `json:"context"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}
