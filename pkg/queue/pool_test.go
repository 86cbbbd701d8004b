package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRegisterAndCancelClaim(t *testing.T) {
	pool := &WorkerPool{
		activeClaims: make(map[string]context.CancelFunc),
	}

	// Register a claim
	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterClaim("acme/alert-1", cancel)

	// Cancel should succeed for a registered claim
	assert.True(t, pool.CancelInvestigation("acme", "alert-1"))
	assert.Error(t, ctx.Err()) // Context should be cancelled

	// Cancel should return false for an unknown claim
	assert.False(t, pool.CancelInvestigation("acme", "unknown"))
}

func TestPoolUnregisterClaim(t *testing.T) {
	pool := &WorkerPool{
		activeClaims: make(map[string]context.CancelFunc),
	}

	_, cancel := context.WithCancel(context.Background())
	pool.RegisterClaim("acme/alert-1", cancel)

	// Should find it
	assert.True(t, pool.CancelInvestigation("acme", "alert-1"))

	// Unregister
	pool.UnregisterClaim("acme/alert-1")

	// Should not find it anymore
	assert.False(t, pool.CancelInvestigation("acme", "alert-1"))
}

func TestPoolGetActiveClaimKeys(t *testing.T) {
	pool := &WorkerPool{
		activeClaims: make(map[string]context.CancelFunc),
	}

	// Empty initially
	keys := pool.getActiveClaimKeys()
	assert.Empty(t, keys)

	// Register claims
	_, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	pool.RegisterClaim("acme/alert-a", cancel1)
	pool.RegisterClaim("globex/alert-b", cancel2)

	keys = pool.getActiveClaimKeys()
	require.Len(t, keys, 2)
	assert.Contains(t, keys, "acme/alert-a")
	assert.Contains(t, keys, "globex/alert-b")
}

func TestPoolStopTwiceDoesNotPanic(t *testing.T) {
	pool := &WorkerPool{
		stopCh:       make(chan struct{}),
		activeClaims: make(map[string]context.CancelFunc),
	}

	// First call should close the channel without panic.
	pool.Stop()

	// Second call must not panic (sync.Once guards the close).
	assert.NotPanics(t, func() { pool.Stop() })
}
