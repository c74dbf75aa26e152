package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/core"
	"lattice/internal/retry"
)

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &core.RepositoryError{Op: "insert", Err: errors.New("connection reset"), Transient: true}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonTransient(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Default, func(ctx context.Context) error {
		attempts++
		return &core.RepositoryError{Op: "insert", Err: errors.New("constraint violation"), Transient: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterMaxElapsedTime(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  20 * time.Millisecond,
	}, func(ctx context.Context) error {
		attempts++
		return &core.RepositoryError{Op: "insert", Err: errors.New("always busy"), Transient: true}
	})
	require.Error(t, err)
	assert.Greater(t, attempts, 1)
}
