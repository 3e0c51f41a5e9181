package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	breaker := NewBreaker("test", threshold, reset, errs.IsConfigError)
	breaker.now = func() time.Time { return now }
	return breaker, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.Equal(t, StateClosed, breaker.State())
		require.ErrorIs(t, breaker.Do(func() error { return errBoom }), errBoom)
	}
	require.Equal(t, StateOpen, breaker.State())

	// While open, calls short-circuit without invoking fn.
	called := false
	err := breaker.Do(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrBreakerOpen)
	require.False(t, called)
}

func TestBreakerHalfOpenTrialAfterResetTimeout(t *testing.T) {
	breaker, now := newTestBreaker(2, time.Minute)

	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Equal(t, StateOpen, breaker.State())

	*now = now.Add(61 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	// The trial call is attempted rather than rejected.
	called := false
	require.NoError(t, breaker.Do(func() error { called = true; return nil }))
	require.True(t, called)
	require.Equal(t, StateClosed, breaker.State())
	require.Equal(t, 0, breaker.Failures())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, now := newTestBreaker(1, time.Minute)

	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Equal(t, StateOpen, breaker.State())

	*now = now.Add(2 * time.Minute)
	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Equal(t, StateOpen, breaker.State())

	// The fresh failure restarts the reset timer.
	require.ErrorIs(t, breaker.Do(func() error { return nil }), ErrBreakerOpen)
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.NoError(t, breaker.Do(func() error { return nil }))
	require.Equal(t, 0, breaker.Failures())
	require.Error(t, breaker.Do(func() error { return errBoom }))
	require.Equal(t, StateClosed, breaker.State())
}

func TestBreakerExcludesConfigErrors(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)

	// Auth and quota errors surface but never trip the breaker.
	require.ErrorIs(t, breaker.Do(func() error { return errs.ErrProviderAuth }), errs.ErrProviderAuth)
	require.ErrorIs(t, breaker.Do(func() error { return errs.ErrProviderQuota }), errs.ErrProviderQuota)
	require.Equal(t, StateClosed, breaker.State())
	require.Equal(t, 0, breaker.Failures())
}
