package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/auth"
)

func TestJWT_IssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)

	token, exp, err := mgr.IssueToken(auth.Identity{
		TenantID: "tenant-001",
		UserID:   "user-001",
		Email:    "Trader@Example.Com",
	})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	id, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-001", id.TenantID)
	assert.Equal(t, "user-001", id.UserID)
	assert.Equal(t, "trader@example.com", id.Email, "email claim is lower-cased")
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	issuing, err := auth.NewJWTManager("secret-a", time.Hour)
	require.NoError(t, err)
	validating, err := auth.NewJWTManager("secret-b", time.Hour)
	require.NoError(t, err)

	token, _, err := issuing.IssueToken(auth.Identity{TenantID: "t", UserID: "u"})
	require.NoError(t, err)

	_, err = validating.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWT_RejectsExpired(t *testing.T) {
	mgr, err := auth.NewJWTManager("test-secret", -time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(auth.Identity{TenantID: "t", UserID: "u"})
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWT_AcceptsTokenWithoutExp(t *testing.T) {
	// exp and nbf are optional: a token with only sub/tenant must validate.
	claims := jwt.MapClaims{"sub": "user-001", "tenant": "tenant-001"}
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	mgr, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)

	id, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-001", id.TenantID)
}

func TestJWT_RejectsUnsignedAlg(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u", "tenant": "t"})
	token, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	mgr, err := auth.NewJWTManager("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestAPIKeyIdentity_Deterministic(t *testing.T) {
	a := auth.APIKeyIdentity("sk-lona-key-1")
	b := auth.APIKeyIdentity("sk-lona-key-1")
	c := auth.APIKeyIdentity("sk-lona-key-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.TenantID, c.TenantID)
	assert.True(t, len(a.TenantID) == len("tenant-apikey-")+12)
	assert.True(t, len(a.UserID) == len("user-apikey-")+12)
	assert.Contains(t, a.TenantID, "tenant-apikey-")
	assert.Contains(t, a.UserID, "user-apikey-")
}

func TestKeyAllowlist(t *testing.T) {
	hash, err := auth.HashAPIKey("sk-good")
	require.NoError(t, err)

	list := auth.NewKeyAllowlist(hash)
	assert.True(t, list.Verify("sk-good"))
	assert.False(t, list.Verify("sk-bad"))

	empty := auth.NewKeyAllowlist("")
	assert.True(t, empty.Verify("anything"), "empty allowlist accepts any key")
}
