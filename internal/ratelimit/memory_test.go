package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenThrottle(t *testing.T) {
	m := NewMemoryLimiter(0.0001, 3)
	defer func() { _ = m.Close() }()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(context.Background(), "tenant:tenant-001")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i+1)
	}

	ok, err := m.Allow(context.Background(), "tenant:tenant-001")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(0.0001, 1)
	defer func() { _ = m.Close() }()

	ok, _ := m.Allow(context.Background(), "tenant:tenant-001")
	assert.True(t, ok)
	ok, _ = m.Allow(context.Background(), "tenant:tenant-001")
	assert.False(t, ok)

	ok, _ = m.Allow(context.Background(), "tenant:tenant-002")
	assert.True(t, ok, "another tenant has its own bucket")
}

func TestNoopLimiter(t *testing.T) {
	var l Limiter = NoopLimiter{}
	ok, err := l.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.Close())
}
