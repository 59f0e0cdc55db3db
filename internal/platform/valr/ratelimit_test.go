package valr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUnderCapacity(t *testing.T) {
	l := newSlidingLimiter(3, time.Minute)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestLimiterBlocksAtCapacity(t *testing.T) {
	window := 150 * time.Millisecond
	l := newSlidingLimiter(2, window)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	// Third request must wait for the first to leave the window.
	require.NoError(t, l.Wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), window)
}

func TestLimiterRespectsContext(t *testing.T) {
	l := newSlidingLimiter(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
