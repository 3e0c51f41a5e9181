package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

func newTestLimiter(rpm, burst int) (*Limiter, *time.Time) {
	base := time.Unix(1_700_000_000, 0)
	now := base
	limiter := NewLimiter(cache.NewMemoryStore(), config.RateLimitConfig{DefaultRPM: rpm, DefaultBurst: burst})
	limiter.now = func() time.Time { return now }
	return limiter, &now
}

func TestCheckEmptyWindowAllows(t *testing.T) {
	limiter, _ := newTestLimiter(60, 10)
	decision, err := limiter.Check(context.Background(), "org-1", "user-1", 0, 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 60, decision.Remaining)
	require.Equal(t, 0, decision.ResetSeconds)
}

func TestCheckRequiresTenant(t *testing.T) {
	limiter, _ := newTestLimiter(60, 10)
	_, err := limiter.Check(context.Background(), "", "user-1", 0, 0)
	require.ErrorIs(t, err, errs.ErrMissingTenant)
	require.ErrorIs(t, limiter.Record(context.Background(), "", "user-1"), errs.ErrMissingTenant)
}

func TestRPMDenialAndWindowRecovery(t *testing.T) {
	ctx := context.Background()
	limiter, now := newTestLimiter(5, 100)

	for i := 0; i < 5; i++ {
		decision, err := limiter.Check(ctx, "org-1", "user-1", 0, 0)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.NoError(t, limiter.Record(ctx, "org-1", "user-1"))
		*now = now.Add(time.Second)
	}

	decision, err := limiter.Check(ctx, "org-1", "user-1", 0, 0)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)
	require.Greater(t, decision.ResetSeconds, 0)
	require.LessOrEqual(t, decision.ResetSeconds, 60)

	// Once the oldest recorded timestamp ages past the window, requests
	// are allowed again.
	*now = now.Add(61 * time.Second)
	decision, err = limiter.Check(ctx, "org-1", "user-1", 0, 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestBurstDenial(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(100, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, "org-1", ""))
	}
	decision, err := limiter.Check(ctx, "org-1", "", 0, 0)
	require.NoError(t, err)
	require.False(t, decision.Allowed, "burst cap applies before rpm is reached")
}

func TestSameSecondRecordsEachCount(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(3, 100)

	// The clock never advances: all records share one timestamp and every
	// one of them must still count toward the window.
	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.Record(ctx, "org-1", ""))
		decision, err := limiter.Check(ctx, "org-1", "", 0, 0)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}
	require.NoError(t, limiter.Record(ctx, "org-1", ""))

	decision, err := limiter.Check(ctx, "org-1", "", 0, 0)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)
}

func TestResetSecondsTracksOldestEntry(t *testing.T) {
	ctx := context.Background()
	limiter, now := newTestLimiter(2, 2)

	require.NoError(t, limiter.Record(ctx, "org-1", ""))
	*now = now.Add(20 * time.Second)
	require.NoError(t, limiter.Record(ctx, "org-1", ""))

	decision, err := limiter.Check(ctx, "org-1", "", 0, 0)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	// Oldest entry is 20s old, so the window frees up in 40s.
	require.Equal(t, 40, decision.ResetSeconds)
}

func TestKeysAreScopedPerOrgAndUser(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(1, 1)

	require.NoError(t, limiter.Record(ctx, "org-1", "user-1"))

	decision, err := limiter.Check(ctx, "org-1", "user-2", 0, 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed, "a different user has an independent window")

	decision, err = limiter.Check(ctx, "org-2", "user-1", 0, 0)
	require.NoError(t, err)
	require.True(t, decision.Allowed, "a different org has an independent window")
}

func TestPerOrgOverrides(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(60, 10)

	// Override rpm down to 1 for this call.
	require.NoError(t, limiter.Record(ctx, "org-1", ""))
	decision, err := limiter.Check(ctx, "org-1", "", 1, 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
}
