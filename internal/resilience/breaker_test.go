package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(context.Context) (int, error) { return 0, errors.New("boom") }
func ok(context.Context) (int, error)      { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker("ai", 2, time.Minute)
	ctx := context.Background()

	_, err := Call(ctx, b, failing)
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State())

	_, err = Call(ctx, b, failing)
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	_, err = Call(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_ProbeClosesOrReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBreaker("ai", 1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	require.Equal(t, BreakerOpen, b.State())

	now = now.Add(2 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	_, err := Call(ctx, b, failing)
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, b.State(), "failed probe reopens")

	now = now.Add(2 * time.Second)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker("ai", 2, time.Minute)
	ctx := context.Background()
	_, _ = Call(ctx, b, failing)
	_, _ = Call(ctx, b, ok)
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
