package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errContended = errors.New("contended")

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestWithRetryingTx_RetriesUntilSuccess(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	calls := 0

	err := client.WithRetryingTx(context.Background(), fastPolicy(5), isContended, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errContended
		}
		return tx.Create(&testModel{Name: "after-retries"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryingTx_StopsAfterMaxAttempts(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	calls := 0

	err := client.WithRetryingTx(context.Background(), fastPolicy(4), isContended, func(tx *gorm.DB) error {
		calls++
		return errContended
	})
	require.ErrorIs(t, err, errContended)
	assert.Equal(t, 4, calls)
}

func TestWithRetryingTx_DoesNotRetryOtherErrors(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	calls := 0
	boom := errors.New("boom")

	err := client.WithRetryingTx(context.Background(), fastPolicy(5), isContended, func(tx *gorm.DB) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func isContended(err error) bool {
	return errors.Is(err, errContended)
}

func TestRetryPolicyBackoffIsJitteredAndCapped(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 150 * time.Millisecond}

	firsts := map[time.Duration]struct{}{}
	for i := 0; i < 20; i++ {
		b := policy.backoff()
		first, stop := b.Next()
		require.False(t, stop)
		assert.GreaterOrEqual(t, first, 80*time.Millisecond)
		assert.LessOrEqual(t, first, 120*time.Millisecond)
		firsts[first] = struct{}{}

		for {
			next, stop := b.Next()
			if stop {
				break
			}
			assert.LessOrEqual(t, next, policy.MaxBackoff)
		}
	}
	assert.Greater(t, len(firsts), 1, "backoff should vary between retries")
}
