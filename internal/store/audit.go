package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/lonalabs/lona/internal/model"
)

// AuditSink receives a copy of every risk decision and drift event, outside
// the store lock. Used for the optional durable archive.
type AuditSink interface {
	RecordRiskDecision(model.RiskAuditRecord)
	RecordDriftEvent(model.DriftEvent)
}

// SetAuditSink attaches a durable sink. Call before serving traffic.
func (s *Store) SetAuditSink(sink AuditSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditSink = sink
}

// AppendRiskAudit records one allow/block decision. Every decision by the
// risk engine appends exactly one record.
func (s *Store) AppendRiskAudit(rec model.RiskAuditRecord) model.RiskAuditRecord {
	s.mu.Lock()
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	s.riskAudit = append(s.riskAudit, rec)
	sink := s.auditSink
	s.mu.Unlock()

	if sink != nil {
		sink.RecordRiskDecision(rec)
	}
	return rec
}

// ListRiskAudit returns the identity's risk audit trail in append order.
func (s *Store) ListRiskAudit(rctx model.RequestContext) []model.RiskAuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RiskAuditRecord
	for _, rec := range s.riskAudit {
		if owned(rec.TenantID, rec.UserID, rctx) {
			out = append(out, rec)
		}
	}
	return out
}

// AppendDriftEvent records a reconciliation drift event.
func (s *Store) AppendDriftEvent(ev model.DriftEvent) model.DriftEvent {
	s.mu.Lock()
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()
	s.driftEvents = append(s.driftEvents, ev)
	sink := s.auditSink
	s.mu.Unlock()

	if sink != nil {
		sink.RecordDriftEvent(ev)
	}
	return ev
}

// ListDriftEvents returns the identity's drift events in append order.
func (s *Store) ListDriftEvents(rctx model.RequestContext) []model.DriftEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.DriftEvent
	for _, ev := range s.driftEvents {
		if owned(ev.TenantID, ev.UserID, rctx) {
			out = append(out, ev)
		}
	}
	return out
}

// CountDriftEvents returns how many drift events exist for a resource.
func (s *Store) CountDriftEvents(rctx model.RequestContext, resourceType, resourceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.driftEvents {
		if owned(ev.TenantID, ev.UserID, rctx) && ev.ResourceType == resourceType && ev.ResourceID == resourceID {
			n++
		}
	}
	return n
}

// AddResearchSpend adds to the tenant's research-provider spend counter and
// returns the new total. One guarded counter per tenant; concurrent scans
// contend on the store mutex.
func (s *Store) AddResearchSpend(tenantID string, amountUSD float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.researchSpend[tenantID] += amountUSD
	return s.researchSpend[tenantID]
}

// ResearchSpend returns the tenant's accumulated research-provider spend.
func (s *Store) ResearchSpend(tenantID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.researchSpend[tenantID]
}
