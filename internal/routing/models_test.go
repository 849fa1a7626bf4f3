package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

func pendingResult() Result {
	now := time.Now()
	return Result{
		ID:           domain.NewResultID(),
		SignalID:     domain.NewSignalID(),
		PartnerID:    domain.NewPartnerID(),
		Jurisdiction: "US-CA",
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestResultStateMachine(t *testing.T) {
	now := time.Now()

	t.Run("pending to sent to acknowledged", func(t *testing.T) {
		r := pendingResult()
		require.NoError(t, r.MarkSent(now))
		assert.Equal(t, StatusSent, r.Status)

		require.NoError(t, r.MarkAcknowledged("CASE-99", now))
		assert.Equal(t, StatusAcknowledged, r.Status)
		assert.True(t, r.Acknowledged)
		require.NotNil(t, r.PartnerRef)
		assert.Equal(t, "CASE-99", *r.PartnerRef)
		require.NotNil(t, r.AcknowledgedAt)
	})

	t.Run("failed is retryable back through sent", func(t *testing.T) {
		r := pendingResult()
		require.NoError(t, r.MarkSent(now))
		require.NoError(t, r.MarkFailed("connection refused", now))
		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, 1, r.RetryCount)
		require.NotNil(t, r.LastError)
		assert.Equal(t, "connection refused", *r.LastError)

		require.NoError(t, r.MarkSent(now))
		require.NoError(t, r.MarkFailed("timeout", now))
		assert.Equal(t, 2, r.RetryCount)
		assert.Equal(t, "timeout", *r.LastError, "last error is overwritten, not appended")
	})

	t.Run("acknowledgement requires partner ref", func(t *testing.T) {
		r := pendingResult()
		require.NoError(t, r.MarkSent(now))
		err := r.MarkAcknowledged("", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		assert.Equal(t, StatusSent, r.Status)
	})

	t.Run("acknowledged is terminal", func(t *testing.T) {
		r := pendingResult()
		require.NoError(t, r.MarkSent(now))
		require.NoError(t, r.MarkAcknowledged("CASE-1", now))

		assert.ErrorIs(t, r.MarkSent(now), sentinel.ErrInvalidState)
		assert.ErrorIs(t, r.MarkFailed("late failure", now), sentinel.ErrInvalidState)
		assert.ErrorIs(t, r.MarkAcknowledged("CASE-2", now), sentinel.ErrInvalidState)
		assert.Equal(t, "CASE-1", *r.PartnerRef)
	})

	t.Run("cannot acknowledge or fail a pending result", func(t *testing.T) {
		r := pendingResult()
		assert.ErrorIs(t, r.MarkAcknowledged("CASE-1", now), sentinel.ErrInvalidState)
		assert.ErrorIs(t, r.MarkFailed("never sent", now), sentinel.ErrInvalidState)
	})

	t.Run("retry ceiling", func(t *testing.T) {
		r := pendingResult()
		for i := 1; i < MaxDeliveryAttempts; i++ {
			require.NoError(t, r.MarkSent(now))
			require.NoError(t, r.MarkFailed("boom", now))
		}
		require.NoError(t, r.MarkSent(now))
		assert.ErrorIs(t, r.MarkFailed("boom", now), ErrRetriesExhausted)
		assert.Equal(t, MaxDeliveryAttempts, r.RetryCount)

		// Terminally failed: no more sends.
		assert.ErrorIs(t, r.MarkSent(now), ErrRetriesExhausted)
	})
}
