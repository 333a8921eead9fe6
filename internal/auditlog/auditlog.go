// Package auditlog archives risk decisions and drift events to a local
// sqlite database. The archive is an append-only copy of what the store
// already holds in memory; it is optional and disabled when no path is
// configured.
package auditlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lonalabs/lona/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_audit (
	id             TEXT PRIMARY KEY,
	decision       TEXT NOT NULL,
	check_type     TEXT NOT NULL,
	resource_type  TEXT,
	resource_id    TEXT,
	policy_version TEXT NOT NULL,
	policy_mode    TEXT NOT NULL,
	outcome_code   TEXT NOT NULL,
	reason         TEXT,
	context_json   TEXT,
	created_at     TEXT NOT NULL,
	tenant_id      TEXT NOT NULL,
	user_id        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_audit_tenant ON risk_audit(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS drift_events (
	id              TEXT PRIMARY KEY,
	resource_type   TEXT NOT NULL,
	resource_id     TEXT NOT NULL,
	provider_ref_id TEXT,
	previous_state  TEXT,
	provider_state  TEXT,
	resolution      TEXT,
	metadata_json   TEXT,
	created_at      TEXT NOT NULL,
	tenant_id       TEXT NOT NULL,
	user_id         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_events_tenant ON drift_events(tenant_id, created_at);
`

// Archive is the durable audit sink. A nil *Archive is valid and records
// nothing.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the archive database. An empty path disables the
// archive and returns nil.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: create schema: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

// RecordRiskDecision appends one risk audit record.
func (a *Archive) RecordRiskDecision(rec model.RiskAuditRecord) {
	if a == nil {
		return
	}
	ctxJSON, _ := json.Marshal(rec.Context)
	_, err := a.db.Exec(`INSERT OR IGNORE INTO risk_audit
		(id, decision, check_type, resource_type, resource_id, policy_version,
		 policy_mode, outcome_code, reason, context_json, created_at, tenant_id, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Decision), rec.CheckType, rec.ResourceType, rec.ResourceID,
		rec.PolicyVersion, rec.PolicyMode, rec.OutcomeCode, rec.Reason, string(ctxJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.TenantID, rec.UserID)
	if err != nil {
		a.logger.Error("audit archive risk insert failed", "id", rec.ID, "error", err)
	}
}

// RecordDriftEvent appends one drift event.
func (a *Archive) RecordDriftEvent(ev model.DriftEvent) {
	if a == nil {
		return
	}
	metaJSON, _ := json.Marshal(ev.Metadata)
	_, err := a.db.Exec(`INSERT OR IGNORE INTO drift_events
		(id, resource_type, resource_id, provider_ref_id, previous_state,
		 provider_state, resolution, metadata_json, created_at, tenant_id, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ResourceType, ev.ResourceID, ev.ProviderRefID, ev.PreviousState,
		ev.ProviderState, ev.Resolution, string(metaJSON),
		ev.CreatedAt.UTC().Format(time.RFC3339Nano), ev.TenantID, ev.UserID)
	if err != nil {
		a.logger.Error("audit archive drift insert failed", "id", ev.ID, "error", err)
	}
}

// CountRiskDecisions reports archived risk records for a tenant.
func (a *Archive) CountRiskDecisions(tenantID string) (int, error) {
	if a == nil {
		return 0, nil
	}
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM risk_audit WHERE tenant_id = ?`, tenantID).Scan(&n)
	return n, err
}
