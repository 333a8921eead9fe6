// Package risk loads the risk policy document, gates side-effecting commands
// against it, and owns the drawdown kill-switch.
package risk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lonalabs/lona/internal/model"
)

// PolicyVersion is the only accepted policy document version.
const PolicyVersion = "risk-policy.v1"

// Policy modes. Advisory policies audit but never block on drawdown.
const (
	ModeAdvisory = "advisory"
	ModeEnforced = "enforced"
)

// Limits are the notional and loss ceilings enforced by the pre-trade gates.
type Limits struct {
	MaxNotionalUsd         float64 `json:"maxNotionalUsd"`
	MaxPositionNotionalUsd float64 `json:"maxPositionNotionalUsd"`
	MaxDrawdownPct         float64 `json:"maxDrawdownPct"`
	MaxDailyLossUsd        float64 `json:"maxDailyLossUsd"`
}

// KillSwitch blocks all side-effecting commands once triggered.
type KillSwitch struct {
	Enabled     bool   `json:"enabled"`
	Triggered   bool   `json:"triggered"`
	TriggeredAt string `json:"triggeredAt,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Policy is the risk policy document, loaded once at startup.
type Policy struct {
	Version         string     `json:"version"`
	Mode            string     `json:"mode"`
	Limits          Limits     `json:"limits"`
	KillSwitch      KillSwitch `json:"killSwitch"`
	ActionsOnBreach []string   `json:"actionsOnBreach"`
}

const policySchemaURL = "https://lona.schemas.local/risk-policy.v1.schema.json"

// Strict by construction: no extra fields anywhere, no type coercion.
const policySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["version", "mode", "limits", "killSwitch", "actionsOnBreach"],
  "properties": {
    "version": {"const": "risk-policy.v1"},
    "mode": {"enum": ["advisory", "enforced"]},
    "limits": {
      "type": "object",
      "additionalProperties": false,
      "required": ["maxNotionalUsd", "maxPositionNotionalUsd", "maxDrawdownPct", "maxDailyLossUsd"],
      "properties": {
        "maxNotionalUsd": {"type": "number", "minimum": 0},
        "maxPositionNotionalUsd": {"type": "number", "minimum": 0},
        "maxDrawdownPct": {"type": "number", "minimum": 0, "maximum": 100},
        "maxDailyLossUsd": {"type": "number", "minimum": 0}
      }
    },
    "killSwitch": {
      "type": "object",
      "additionalProperties": false,
      "required": ["enabled", "triggered"],
      "properties": {
        "enabled": {"type": "boolean"},
        "triggered": {"type": "boolean"},
        "triggeredAt": {"type": "string"},
        "reason": {"type": "string"}
      }
    },
    "actionsOnBreach": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var policySchema = mustCompilePolicySchema()

func mustCompilePolicySchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchemaJSON)); err != nil {
		panic(fmt.Sprintf("risk policy schema: %v", err))
	}
	return c.MustCompile(policySchemaURL)
}

func invalidPolicy(format string, args ...any) *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeRiskPolicyInvalid, http.StatusInternalServerError,
		fmt.Sprintf(format, args...))
}

// ParsePolicy validates raw JSON against the risk-policy.v1 schema and the
// cross-field invariants, then decodes it.
func ParsePolicy(raw []byte) (Policy, error) {
	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return Policy{}, invalidPolicy("risk policy is not valid JSON: %v", err)
	}
	if err := policySchema.Validate(untyped); err != nil {
		return Policy{}, invalidPolicy("risk policy failed schema validation: %v", err)
	}

	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, invalidPolicy("risk policy decode: %v", err)
	}
	if p.Limits.MaxPositionNotionalUsd > p.Limits.MaxNotionalUsd {
		return Policy{}, invalidPolicy("maxPositionNotionalUsd %.2f exceeds maxNotionalUsd %.2f",
			p.Limits.MaxPositionNotionalUsd, p.Limits.MaxNotionalUsd)
	}
	if p.KillSwitch.TriggeredAt != "" {
		if _, err := time.Parse(time.RFC3339, p.KillSwitch.TriggeredAt); err != nil {
			return Policy{}, invalidPolicy("killSwitch.triggeredAt %q is not RFC3339", p.KillSwitch.TriggeredAt)
		}
	}
	return p, nil
}

// LoadPolicy reads and validates the policy file. An empty path yields the
// default policy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, invalidPolicy("risk policy read %s: %v", path, err)
	}
	return ParsePolicy(raw)
}

// DefaultPolicy is the enforced policy used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Version: PolicyVersion,
		Mode:    ModeEnforced,
		Limits: Limits{
			MaxNotionalUsd:         250000,
			MaxPositionNotionalUsd: 50000,
			MaxDrawdownPct:         10,
			MaxDailyLossUsd:        5000,
		},
		KillSwitch:      KillSwitch{Enabled: true},
		ActionsOnBreach: []string{"block", "audit"},
	}
}
