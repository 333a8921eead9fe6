package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/lonalabs/lona/internal/model"
)

// MarkIngested records an ingestion fingerprint. Returns false when the
// fingerprint was already seen, in which case the write must be suppressed.
func (s *Store) MarkIngested(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenIngest[fingerprint] {
		return false
	}
	s.seenIngest[fingerprint] = true
	return true
}

// AddLesson inserts a lesson record.
func (s *Store) AddLesson(rctx model.RequestContext, lesson model.Lesson) model.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()

	lesson.ID = uuid.NewString()
	lesson.SchemaVersion = model.SchemaVersion
	lesson.CreatedAt = time.Now().UTC()
	lesson.TenantID = rctx.TenantID
	lesson.UserID = rctx.UserID
	s.lessons = append(s.lessons, lesson)
	return lesson
}

// AddPattern inserts a pattern record.
func (s *Store) AddPattern(rctx model.RequestContext, p model.Pattern) model.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	p.SchemaVersion = model.SchemaVersion
	p.CreatedAt = time.Now().UTC()
	p.TenantID = rctx.TenantID
	p.UserID = rctx.UserID
	s.patterns = append(s.patterns, p)
	return p
}

// AddRegime inserts a regime record.
func (s *Store) AddRegime(rctx model.RequestContext, r model.Regime) model.Regime {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = uuid.NewString()
	r.SchemaVersion = model.SchemaVersion
	r.CreatedAt = time.Now().UTC()
	r.TenantID = rctx.TenantID
	r.UserID = rctx.UserID
	s.regimes = append(s.regimes, r)
	return r
}

// AddMacroEvent inserts a macro-event record.
func (s *Store) AddMacroEvent(rctx model.RequestContext, ev model.MacroEvent) model.MacroEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = uuid.NewString()
	ev.SchemaVersion = model.SchemaVersion
	ev.CreatedAt = time.Now().UTC()
	ev.TenantID = rctx.TenantID
	ev.UserID = rctx.UserID
	s.macroEvents = append(s.macroEvents, ev)
	return ev
}

// AddCorrelation inserts a correlation record.
func (s *Store) AddCorrelation(rctx model.RequestContext, c model.Correlation) model.Correlation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.NewString()
	c.SchemaVersion = model.SchemaVersion
	c.CreatedAt = time.Now().UTC()
	c.TenantID = rctx.TenantID
	c.UserID = rctx.UserID
	s.correlations = append(s.correlations, c)
	return c
}

// ListLessons returns the identity's lessons in append order.
func (s *Store) ListLessons(rctx model.RequestContext) []model.Lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Lesson
	for _, l := range s.lessons {
		if owned(l.TenantID, l.UserID, rctx) {
			out = append(out, l)
		}
	}
	return out
}

// ListPatterns returns the identity's patterns in append order.
func (s *Store) ListPatterns(rctx model.RequestContext) []model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Pattern
	for _, p := range s.patterns {
		if owned(p.TenantID, p.UserID, rctx) {
			out = append(out, p)
		}
	}
	return out
}
