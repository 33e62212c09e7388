package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 503} {
		require.True(t, IsRetryableHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		require.False(t, IsRetryableHTTPStatus(code), code)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	first := Backoff(1, time.Second, 8*time.Second)
	require.GreaterOrEqual(t, first, 800*time.Millisecond)
	require.LessOrEqual(t, first, 1200*time.Millisecond)

	capped := Backoff(20, time.Second, 8*time.Second)
	require.LessOrEqual(t, capped, 9600*time.Millisecond)
	require.GreaterOrEqual(t, capped, 6400*time.Millisecond)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
