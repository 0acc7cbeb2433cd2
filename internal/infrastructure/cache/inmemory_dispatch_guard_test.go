package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*InMemoryDispatchGuard, *time.Time) {
	t.Helper()
	g := NewInMemoryDispatchGuard(time.Hour)
	t.Cleanup(func() { _ = g.Close() })

	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestInMemoryDispatchGuard_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("second claim is refused while the first holds", func(t *testing.T) {
		g, _ := newTestGuard(t)

		ok, err := g.Claim(ctx, "overdue-notice:1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = g.Claim(ctx, "overdue-notice:1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = g.Claim(ctx, "overdue-notice:2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "keys are independent")
	})

	t.Run("expired claim can be taken again", func(t *testing.T) {
		g, now := newTestGuard(t)

		ok, _ := g.Claim(ctx, "k", time.Minute)
		require.True(t, ok)

		*now = now.Add(time.Minute)
		ok, err := g.Claim(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release frees the key", func(t *testing.T) {
		g, _ := newTestGuard(t)

		ok, _ := g.Claim(ctx, "k", time.Hour)
		require.True(t, ok)
		require.NoError(t, g.Release(ctx, "k"))
		require.NoError(t, g.Release(ctx, "never-claimed"))

		ok, _ = g.Claim(ctx, "k", time.Hour)
		assert.True(t, ok)
	})
}

func TestInMemoryDispatchGuard_ConcurrentClaims(t *testing.T) {
	g := NewInMemoryDispatchGuard(time.Hour)
	defer g.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Claim(context.Background(), "overdue-notice:x", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryDispatchGuard_Sweep(t *testing.T) {
	g, now := newTestGuard(t)
	ctx := context.Background()

	_, _ = g.Claim(ctx, "short", time.Second)
	_, _ = g.Claim(ctx, "long", time.Hour)
	assert.Equal(t, 2, g.Size())

	*now = now.Add(time.Minute)
	g.sweep()
	assert.Equal(t, 1, g.Size())
}

func TestInMemoryDispatchGuard_CloseIsIdempotent(t *testing.T) {
	g := NewInMemoryDispatchGuard(time.Millisecond)
	assert.NoError(t, g.Close())
	assert.NoError(t, g.Close())
}
