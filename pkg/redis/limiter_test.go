package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowLimiterAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeStore()}

	limiter, err := NewWindowLimiter(client, "oracle", 2, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := limiter.Allow(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewWindowLimiterValidates(t *testing.T) {
	client := &Client{store: newFakeStore()}

	_, err := NewWindowLimiter(nil, "oracle", 1, time.Minute)
	require.Error(t, err)
	_, err = NewWindowLimiter(client, "", 1, time.Minute)
	require.Error(t, err)
	_, err = NewWindowLimiter(client, "oracle", 0, time.Minute)
	require.Error(t, err)

	limiter, err := NewWindowLimiter(client, "oracle", 1, 0)
	require.NoError(t, err)
	require.Equal(t, time.Minute, limiter.window)
}
