package model

import "time"

// Knowledge record kinds. All knowledge records carry SchemaVersion and a
// timestamp; free-form extension fields live in Attributes.

// Pattern is a reusable strategy pattern in the knowledge base.
type Pattern struct {
	ID              string            `json:"id"`
	SchemaVersion   string            `json:"schemaVersion"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	PatternType     string            `json:"patternType,omitempty"`
	SuitableRegimes []string          `json:"suitableRegimes,omitempty"`
	Assets          []string          `json:"assets,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	TenantID        string            `json:"tenantId"`
	UserID          string            `json:"userId"`
}

// Regime describes a market regime classification.
type Regime struct {
	ID            string            `json:"id"`
	SchemaVersion string            `json:"schemaVersion"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}

// Lesson is an operational learning derived from a lifecycle event
// (backtest outcome, deployment state change).
type Lesson struct {
	ID            string            `json:"id"`
	SchemaVersion string            `json:"schemaVersion"`
	Category      string            `json:"category"`
	Summary       string            `json:"summary"`
	StrategyID    string            `json:"strategyId,omitempty"`
	SourceID      string            `json:"sourceId,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}

// MacroEvent is a knowledge-base record of a macroeconomic event.
type MacroEvent struct {
	ID            string            `json:"id"`
	SchemaVersion string            `json:"schemaVersion"`
	Name          string            `json:"name"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}

// Correlation is a knowledge-base record of an observed asset correlation.
type Correlation struct {
	ID            string            `json:"id"`
	SchemaVersion string            `json:"schemaVersion"`
	AssetA        string            `json:"assetA"`
	AssetB        string            `json:"assetB"`
	Coefficient   float64           `json:"coefficient"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	TenantID      string            `json:"tenantId"`
	UserID        string            `json:"userId"`
}

// ValidationActor distinguishes human and bot validation runs.
type ValidationActor string

const (
	ActorUser ValidationActor = "user"
	ActorBot  ValidationActor = "bot"
)

// ValidationDecision is the outcome of a validation run.
type ValidationDecision string

const (
	DecisionPass            ValidationDecision = "pass"
	DecisionConditionalPass ValidationDecision = "conditional_pass"
	DecisionFail            ValidationDecision = "fail"
	DecisionUnknown         ValidationDecision = "unknown"
)

// ValidationRun is a recorded validation execution over an artifact.
type ValidationRun struct {
	ID          string             `json:"id"`
	Actor       ValidationActor    `json:"actor"`
	ArtifactRef string             `json:"artifactRef"`
	Decision    ValidationDecision `json:"decision"`
	DriftPct    float64            `json:"driftPct"`
	CreatedAt   time.Time          `json:"createdAt"`
	TenantID    string             `json:"tenantId"`
	UserID      string             `json:"userId"`
}

// ValidationBaseline is the stored reference a candidate run is replayed against.
type ValidationBaseline struct {
	ID          string             `json:"id"`
	ArtifactRef string             `json:"artifactRef"`
	Decision    ValidationDecision `json:"decision"`
	DriftPct    float64            `json:"driftPct"`
	CreatedAt   time.Time          `json:"createdAt"`
	TenantID    string             `json:"tenantId"`
	UserID      string             `json:"userId"`
}
