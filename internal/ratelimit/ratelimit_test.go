package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Allow_BurstThenBlocks(t *testing.T) {
	l := New(1, 2)

	assert.True(t, l.Allow("bk-1"))
	assert.True(t, l.Allow("bk-1"))
	assert.False(t, l.Allow("bk-1"))
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, 1)

	assert.True(t, l.Allow("bk-1"))
	assert.False(t, l.Allow("bk-1"))
	assert.True(t, l.Allow("bk-2"))
}

func TestKeyedRateLimiter_Wait_RespectsContext(t *testing.T) {
	l := New(0.1, 1)
	require.True(t, l.Allow("bk-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "bk-1")
	assert.Error(t, err)
}
