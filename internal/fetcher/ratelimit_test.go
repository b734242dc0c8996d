package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows burst then denies", func(t *testing.T) {
		rl := NewRateLimiter(2, 2)

		assert.True(t, rl.Allow())
		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow())
	})

	t.Run("wait honours context deadline", func(t *testing.T) {
		rl := NewRateLimiter(0.1, 1)
		require.True(t, rl.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.Error(t, rl.Wait(ctx))
	})

	t.Run("set rate speeds up refill", func(t *testing.T) {
		rl := NewRateLimiter(0.1, 1)
		require.True(t, rl.Allow())

		rl.SetRate(1000)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, rl.Wait(ctx))
	})

	t.Run("tokens reflect consumption", func(t *testing.T) {
		rl := NewRateLimiter(1, 3)
		assert.InDelta(t, 3.0, rl.Tokens(), 0.1)
		rl.Allow()
		assert.InDelta(t, 2.0, rl.Tokens(), 0.1)
	})
}
