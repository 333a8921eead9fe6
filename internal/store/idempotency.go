package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIdempotencyPayloadMismatch is returned when the same idempotency key
	// is reused with a different payload fingerprint in the same scope.
	ErrIdempotencyPayloadMismatch = errors.New("store: idempotency key reused with different payload")
	// ErrIdempotencyInProgress indicates a matching key is currently being processed.
	ErrIdempotencyInProgress = errors.New("store: idempotency key request already in progress")
)

type idemKey struct {
	scope    string
	tenantID string
	key      string
}

type idemEntry struct {
	fingerprint  string
	completed    bool
	statusCode   int
	responseData json.RawMessage
	updatedAt    time.Time
}

// IdempotencyLookup describes the result of a BeginIdempotency call.
type IdempotencyLookup struct {
	Completed    bool
	StatusCode   int
	ResponseData json.RawMessage
}

// BeginIdempotency reserves (scope, key) for processing, compare-and-set
// against the payload fingerprint.
//
// Returns a zero lookup when the caller owns processing. Returns
// Completed=true with the cached response when the key was already finalized
// with the same fingerprint. Stale in-progress keys are not taken over; they
// block retries until CleanupIdempotency removes them, which prevents a
// double side effect when the original request committed but crashed before
// finalizing.
func (s *Store) BeginIdempotency(scope, tenantID, key, fingerprint string) (IdempotencyLookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey{scope: scope, tenantID: tenantID, key: key}
	entry, ok := s.idempotency[k]
	if !ok {
		s.idempotency[k] = &idemEntry{fingerprint: fingerprint, updatedAt: time.Now().UTC()}
		return IdempotencyLookup{}, nil // caller owns processing
	}

	if entry.fingerprint != fingerprint {
		return IdempotencyLookup{}, ErrIdempotencyPayloadMismatch
	}
	if entry.completed {
		return IdempotencyLookup{
			Completed:    true,
			StatusCode:   entry.statusCode,
			ResponseData: entry.responseData,
		}, nil
	}
	return IdempotencyLookup{}, ErrIdempotencyInProgress
}

// CompleteIdempotency stores the final response for a previously reserved key.
func (s *Store) CompleteIdempotency(scope, tenantID, key string, statusCode int, responseData any) error {
	payload, err := json.Marshal(responseData)
	if err != nil {
		return fmt.Errorf("store: marshal idempotency response: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey{scope: scope, tenantID: tenantID, key: key}
	entry, ok := s.idempotency[k]
	if !ok || entry.completed {
		return fmt.Errorf("store: complete idempotency: key not found or not in progress")
	}
	entry.completed = true
	entry.statusCode = statusCode
	entry.responseData = payload
	entry.updatedAt = time.Now().UTC()
	return nil
}

// ClearInProgressIdempotency removes an in-progress reservation so the client
// can retry after a failed command.
func (s *Store) ClearInProgressIdempotency(scope, tenantID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey{scope: scope, tenantID: tenantID, key: key}
	if entry, ok := s.idempotency[k]; ok && !entry.completed {
		delete(s.idempotency, k)
	}
}

// CleanupIdempotency removes old completed entries and abandoned in-progress
// entries, bounding the cache. Returns the number of entries removed.
func (s *Store) CleanupIdempotency(completedTTL, inProgressTTL time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for k, entry := range s.idempotency {
		ttl := inProgressTTL
		if entry.completed {
			ttl = completedTTL
		}
		if now.Sub(entry.updatedAt) > ttl {
			delete(s.idempotency, k)
			removed++
		}
	}
	return removed
}
