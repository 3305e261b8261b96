package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, 0, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, 0, func() error {
		calls++
		if calls < 3 {
			return apperrors.Transient("flaky", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 2, 0, func() error {
		calls++
		return apperrors.Transient("still flaky", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
}

func TestDoStopsOnNonTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, 0, func() error {
		calls++
		return apperrors.Auth("session expired", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, 3, time.Minute, func() error {
		return apperrors.Transient("flaky", nil)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
