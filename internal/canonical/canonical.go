// Package canonical produces stable fingerprints of request payloads using
// RFC 8785 (JSON Canonicalization Scheme) serialization.
//
// Two payloads that marshal to the same canonical JSON always produce the
// same fingerprint regardless of field order or whitespace. The idempotency
// cache and knowledge-base ingestion both key on these fingerprints.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JSON returns the RFC 8785 canonical JSON encoding of v.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// Fingerprint returns the SHA-256 hex digest of the canonical JSON encoding of v.
func Fingerprint(v any) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
