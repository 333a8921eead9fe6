package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey hashes an API key using Argon2id for the configured allowlist.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// verifyAPIKeyHash checks an API key against one Argon2id allowlist entry.
func verifyAPIKeyHash(apiKey, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	expected, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

// KeyAllowlist verifies presented API keys against configured Argon2id hashes.
// An empty allowlist accepts any key (development mode); identities are still
// derived per APIKeyIdentity, so unknown keys remain sandboxed to their own
// tenant either way.
type KeyAllowlist struct {
	hashes []string
}

// NewKeyAllowlist parses a comma-separated list of encoded Argon2id hashes.
func NewKeyAllowlist(encoded string) *KeyAllowlist {
	var hashes []string
	for _, h := range strings.Split(encoded, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hashes = append(hashes, h)
		}
	}
	return &KeyAllowlist{hashes: hashes}
}

// Verify reports whether the API key is acceptable under the allowlist.
func (a *KeyAllowlist) Verify(apiKey string) bool {
	if len(a.hashes) == 0 {
		return true
	}
	// Check every entry so timing does not reveal which one matched.
	matched := false
	for _, h := range a.hashes {
		if ok, err := verifyAPIKeyHash(apiKey, h); err == nil && ok {
			matched = true
		}
	}
	return matched
}
