// Package auth resolves request identities from HS256 bearer tokens or API keys.
//
// Token-based identities carry explicit tenant/user claims; API-key identities
// are derived deterministically from a content hash of the key, so the same
// key always lands in the same tenant sandbox.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Leeway applied to exp/nbf validation. Order of seconds: enough to absorb
// clock skew between the token issuer and this process.
const clockLeeway = 10 * time.Second

const issuer = "lona"

// Identity is a resolved (tenant, user) pair.
type Identity struct {
	TenantID string
	UserID   string
	Email    string
}

// Claims are the token claims Lona issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant"`
	Email    string `json:"email,omitempty"`
}

// JWTManager signs and validates HS256 bearer tokens.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager creates a JWTManager from the shared HS256 secret.
func NewJWTManager(secret string, expiration time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: HS256 secret is required")
	}
	return &JWTManager{secret: []byte(secret), expiration: expiration}, nil
}

// IssueToken creates a signed token for the given identity.
func (m *JWTManager) IssueToken(identity Identity) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: identity.TenantID,
		Email:    identity.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a bearer token, returning the resolved
// identity. exp/nbf are optional; when present they are checked with a small
// leeway. The email claim, when present, is lower-cased.
func (m *JWTManager) ValidateToken(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("auth: token has no subject")
	}
	if claims.TenantID == "" {
		return Identity{}, fmt.Errorf("auth: token has no tenant claim")
	}

	return Identity{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Email:    strings.ToLower(claims.Email),
	}, nil
}

// APIKeyIdentity derives a deterministic identity from an API key. The key
// never appears in any identifier: both parts come from a SHA-256 hex digest
// of its content.
func APIKeyIdentity(apiKey string) Identity {
	sum := sha256.Sum256([]byte(apiKey))
	h := hex.EncodeToString(sum[:])
	return Identity{
		TenantID: "tenant-apikey-" + h[:12],
		UserID:   "user-apikey-" + h[12:24],
	}
}
