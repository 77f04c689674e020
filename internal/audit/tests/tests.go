package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frahmantamala/payment-gate/internal/audit"
)

// RunTests exercises an audit.Store implementation. teardown must return the
// store to an empty state.
func RunTests(t *testing.T, s audit.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s audit.Store){
		testAppendAndList,
		testInvalidEntry,
		testListLimit,
	} {
		tf(t, s)
		teardown()
	}
}

func testAppendAndList(t *testing.T, s audit.Store) {
	t.Run("testAppendAndList", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		accepted := &audit.Entry{
			UserID:            "user-1",
			ExternalPaymentID: "PAY-1",
			ProcessorStatus:   "COMPLETED",
			Amount:            decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
			Currency:          "EUR",
			Result:            audit.ResultSuccess,
			CreatedAt:         now,
		}
		require.NoError(t, s.Append(ctx, accepted))
		assert.NotZero(t, accepted.ID)

		rejected := &audit.Entry{
			UserID:    "user-1",
			Result:    audit.ResultError,
			ErrorCode: "INVALID_SESSKEY",
			Message:   "invalid session key",
			CreatedAt: now.Add(time.Second),
		}
		require.NoError(t, s.Append(ctx, rejected))
		assert.Greater(t, rejected.ID, accepted.ID)

		other := &audit.Entry{UserID: "user-2", Result: audit.ResultSuccess, CreatedAt: now}
		require.NoError(t, s.Append(ctx, other))

		actual, err := s.ListByUser(ctx, "user-1", 10)
		require.NoError(t, err)
		require.Len(t, actual, 2)

		assert.Equal(t, rejected.ID, actual[0].ID)
		assert.Equal(t, audit.ResultError, actual[0].Result)
		assert.Equal(t, "INVALID_SESSKEY", actual[0].ErrorCode)
		assert.False(t, actual[0].Amount.Valid)
		assert.Empty(t, actual[0].ExternalPaymentID)

		assert.Equal(t, accepted.ID, actual[1].ID)
		assert.Equal(t, "PAY-1", actual[1].ExternalPaymentID)
		assert.Equal(t, "COMPLETED", actual[1].ProcessorStatus)
		assert.True(t, actual[1].Amount.Valid)
		assert.True(t, actual[1].Amount.Decimal.Equal(decimal.RequireFromString("6")))
		assert.Equal(t, "EUR", actual[1].Currency)
		assert.Equal(t, now.Unix(), actual[1].CreatedAt.Unix())

		recent, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, other.ID, recent[0].ID)

		none, err := s.ListByUser(ctx, "user-3", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func testInvalidEntry(t *testing.T, s audit.Store) {
	t.Run("testInvalidEntry", func(t *testing.T) {
		ctx := context.Background()

		err := s.Append(ctx, &audit.Entry{Result: audit.ResultSuccess})
		assert.True(t, errors.Is(err, audit.ErrInvalidEntry))

		err = s.Append(ctx, &audit.Entry{UserID: "user-1", Result: "maybe"})
		assert.True(t, errors.Is(err, audit.ErrInvalidEntry))

		actual, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, actual)
	})
}

func testListLimit(t *testing.T, s audit.Store) {
	t.Run("testListLimit", func(t *testing.T) {
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, s.Append(ctx, &audit.Entry{
				UserID:            "user-1",
				ExternalPaymentID: fmt.Sprintf("PAY-%d", i),
				Result:            audit.ResultError,
			}))
		}

		actual, err := s.ListByUser(ctx, "user-1", 3)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, "PAY-4", actual[0].ExternalPaymentID)

		actual, err = s.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, actual, 5)
	})
}
