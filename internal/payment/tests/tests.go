package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frahmantamala/payment-gate/internal/payment"
)

// RunTests exercises a payment.Store implementation. teardown must return the
// store to an empty state.
func RunTests(t *testing.T, s payment.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s payment.Store){
		testRoundTrip,
		testCompletedExternalIDIsUnique,
		testLookupByExternalIDPrefersCompleted,
		testUpdateCreatesMissingRecord,
		testUpdateNoWrite,
		testUpdateResultMatchesLaterRead,
		testUpdateErrorLeavesRecord,
		testUpdateRejectsTakenExternalID,
		testListExpiring,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s payment.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		actual, err := s.Get(ctx, "user-1")
		require.Error(t, err)
		assert.Equal(t, payment.ErrRecordNotFound, err)
		assert.Nil(t, actual)

		expected := &payment.Record{
			UserID:    "user-1",
			Status:    payment.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		cloned := expected.Clone()
		require.NoError(t, s.Upsert(ctx, expected))

		actual, err = s.Get(ctx, "user-1")
		require.NoError(t, err)
		assertEquivalentRecords(t, cloned, actual)

		completedAt := now.Add(time.Minute)
		expected = &payment.Record{
			UserID:            "user-1",
			Status:            payment.StatusCompleted,
			ExternalPaymentID: "PAY-1",
			Amount:            decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
			Currency:          "EUR",
			CompletedAt:       &completedAt,
			CreatedAt:         now.Add(time.Hour),
			UpdatedAt:         completedAt,
		}
		require.NoError(t, s.Upsert(ctx, expected))

		actual, err = s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, actual.Status)
		assert.Equal(t, "PAY-1", actual.ExternalPaymentID)
		assert.True(t, actual.Amount.Valid)
		assert.True(t, decimal.RequireFromString("6").Equal(actual.Amount.Decimal))
		assert.Equal(t, "EUR", actual.Currency)
		require.NotNil(t, actual.CompletedAt)
		assert.Equal(t, completedAt.Unix(), actual.CompletedAt.Unix())
		assert.Equal(t, now.Unix(), actual.CreatedAt.Unix(), "created_at is write-once")
		assert.Equal(t, completedAt.Unix(), actual.UpdatedAt.Unix())
	})
}

func testCompletedExternalIDIsUnique(t *testing.T, s payment.Store) {
	t.Run("testCompletedExternalIDIsUnique", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, completedRecord("user-a", "PAY-X")))

		err := s.Upsert(ctx, completedRecord("user-b", "PAY-X"))
		assert.Equal(t, payment.ErrExternalPaymentIDTaken, err)

		_, err = s.Get(ctx, "user-b")
		assert.Equal(t, payment.ErrRecordNotFound, err)

		// same user rewriting its own completed id is not a conflict
		require.NoError(t, s.Upsert(ctx, completedRecord("user-a", "PAY-X")))

		actual, err := s.GetByExternalPaymentID(ctx, "PAY-X")
		require.NoError(t, err)
		assert.Equal(t, "user-a", actual.UserID)

		_, err = s.GetByExternalPaymentID(ctx, "PAY-UNKNOWN")
		assert.Equal(t, payment.ErrRecordNotFound, err)
	})
}

func testLookupByExternalIDPrefersCompleted(t *testing.T, s payment.Store) {
	t.Run("testLookupByExternalIDPrefersCompleted", func(t *testing.T) {
		ctx := context.Background()

		failed := failedRecord("user-f", "PAY-Y")
		require.NoError(t, s.Upsert(ctx, failed))
		require.NoError(t, s.Upsert(ctx, failedRecord("user-g", "PAY-Y")), "failed attempts may share an id")

		actual, err := s.GetByExternalPaymentID(ctx, "PAY-Y")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, actual.Status)

		require.NoError(t, s.Upsert(ctx, completedRecord("user-c", "PAY-Y")))

		actual, err = s.GetByExternalPaymentID(ctx, "PAY-Y")
		require.NoError(t, err)
		assert.Equal(t, "user-c", actual.UserID)
		assert.Equal(t, payment.StatusCompleted, actual.Status)
	})
}

func testUpdateCreatesMissingRecord(t *testing.T, s payment.Store) {
	t.Run("testUpdateCreatesMissingRecord", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		var seen *payment.Record
		calls := 0
		actual, err := s.Update(ctx, "user-u", func(current *payment.Record) (*payment.Record, error) {
			calls++
			seen = current
			return &payment.Record{
				Status:    payment.StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		})
		require.NoError(t, err)
		assert.Nil(t, seen)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "user-u", actual.UserID)
		assert.Equal(t, payment.StatusPending, actual.Status)

		stored, err := s.Get(ctx, "user-u")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, stored.Status)
		assert.Equal(t, now.Unix(), stored.CreatedAt.Unix())

		actual, err = s.Update(ctx, "user-u", func(current *payment.Record) (*payment.Record, error) {
			seen = current
			next := current.Clone()
			next.Status = payment.StatusFailed
			next.UpdatedAt = now.Add(time.Minute)
			return next, nil
		})
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, payment.StatusPending, seen.Status)
		assert.Equal(t, payment.StatusFailed, actual.Status)
		assert.Equal(t, now.Unix(), actual.CreatedAt.Unix())
	})
}

func testUpdateNoWrite(t *testing.T, s payment.Store) {
	t.Run("testUpdateNoWrite", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Update(ctx, "user-n", func(current *payment.Record) (*payment.Record, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, actual)

		_, err = s.Get(ctx, "user-n")
		assert.Equal(t, payment.ErrRecordNotFound, err)

		require.NoError(t, s.Upsert(ctx, completedRecord("user-n", "PAY-N")))
		actual, err = s.Update(ctx, "user-n", func(current *payment.Record) (*payment.Record, error) {
			return nil, nil
		})
		require.NoError(t, err)
		require.NotNil(t, actual)
		assert.Equal(t, payment.StatusCompleted, actual.Status)
		assert.Equal(t, "PAY-N", actual.ExternalPaymentID)
	})
}

func testUpdateResultMatchesLaterRead(t *testing.T, s payment.Store) {
	t.Run("testUpdateResultMatchesLaterRead", func(t *testing.T) {
		ctx := context.Background()
		at := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
		expires := at.Add(24 * time.Hour)

		written, err := s.Update(ctx, "user-p", func(current *payment.Record) (*payment.Record, error) {
			return &payment.Record{
				UserID:            "user-p",
				Status:            payment.StatusCompleted,
				ExternalPaymentID: "PAY-P",
				Amount:            decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
				Currency:          "EUR",
				CompletedAt:       &at,
				ExpiresAt:         &expires,
				CreatedAt:         at,
				UpdatedAt:         at,
			}, nil
		})
		require.NoError(t, err)

		unchanged, err := s.Update(ctx, "user-p", func(current *payment.Record) (*payment.Record, error) {
			return nil, nil
		})
		require.NoError(t, err)

		read, err := s.Get(ctx, "user-p")
		require.NoError(t, err)

		for _, other := range []*payment.Record{unchanged, read} {
			assert.True(t, written.CreatedAt.Equal(other.CreatedAt))
			assert.True(t, written.UpdatedAt.Equal(other.UpdatedAt))
			require.NotNil(t, other.CompletedAt)
			assert.True(t, written.CompletedAt.Equal(*other.CompletedAt))
			require.NotNil(t, other.ExpiresAt)
			assert.True(t, written.ExpiresAt.Equal(*other.ExpiresAt))
		}
	})
}

func testUpdateErrorLeavesRecord(t *testing.T, s payment.Store) {
	t.Run("testUpdateErrorLeavesRecord", func(t *testing.T) {
		ctx := context.Background()
		boom := errors.New("boom")

		require.NoError(t, s.Upsert(ctx, failedRecord("user-e", "PAY-E")))

		_, err := s.Update(ctx, "user-e", func(current *payment.Record) (*payment.Record, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.Get(ctx, "user-e")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, stored.Status)
	})
}

func testUpdateRejectsTakenExternalID(t *testing.T, s payment.Store) {
	t.Run("testUpdateRejectsTakenExternalID", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, s.Upsert(ctx, completedRecord("user-owner", "PAY-T")))

		// existing row
		require.NoError(t, s.Upsert(ctx, &payment.Record{
			UserID:    "user-thief",
			Status:    payment.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}))
		_, err := s.Update(ctx, "user-thief", func(current *payment.Record) (*payment.Record, error) {
			next := current.Clone()
			next.Status = payment.StatusCompleted
			next.ExternalPaymentID = "PAY-T"
			return next, nil
		})
		assert.Equal(t, payment.ErrExternalPaymentIDTaken, err)

		stored, err := s.Get(ctx, "user-thief")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, stored.Status)
		assert.Empty(t, stored.ExternalPaymentID)

		// first insert
		_, err = s.Update(ctx, "user-new", func(current *payment.Record) (*payment.Record, error) {
			return completedRecord("user-new", "PAY-T"), nil
		})
		assert.Equal(t, payment.ErrExternalPaymentIDTaken, err)

		_, err = s.Get(ctx, "user-new")
		assert.Equal(t, payment.ErrRecordNotFound, err)
	})
}

func testListExpiring(t *testing.T, s payment.Store) {
	t.Run("testListExpiring", func(t *testing.T) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		for i, offset := range []time.Duration{-3 * time.Hour, -2 * time.Hour, -1 * time.Hour, time.Hour} {
			r := completedRecord("user-x"+string(rune('0'+i)), "PAY-X"+string(rune('0'+i)))
			expiresAt := base.Add(offset)
			r.ExpiresAt = &expiresAt
			require.NoError(t, s.Upsert(ctx, r))
		}
		require.NoError(t, s.Upsert(ctx, completedRecord("user-forever", "PAY-FOREVER")))

		actual, err := s.ListExpiring(ctx, base.Add(-150*time.Minute), base, 10)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "user-x1", actual[0].UserID)
		assert.Equal(t, "user-x2", actual[1].UserID)

		actual, err = s.ListExpiring(ctx, base.Add(-4*time.Hour), base, 1)
		require.NoError(t, err)
		require.Len(t, actual, 1)
		assert.Equal(t, "user-x0", actual[0].UserID)
	})
}

func completedRecord(userID, externalID string) *payment.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &payment.Record{
		UserID:            userID,
		Status:            payment.StatusCompleted,
		ExternalPaymentID: externalID,
		Amount:            decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
		Currency:          "EUR",
		CompletedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func failedRecord(userID, externalID string) *payment.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &payment.Record{
		UserID:            userID,
		Status:            payment.StatusFailed,
		ExternalPaymentID: externalID,
		Amount:            decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
		Currency:          "EUR",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *payment.Record) {
	assert.Equal(t, obj1.UserID, obj2.UserID)
	assert.Equal(t, obj1.Status, obj2.Status)
	assert.Equal(t, obj1.ExternalPaymentID, obj2.ExternalPaymentID)
	assert.Equal(t, obj1.Amount.Valid, obj2.Amount.Valid)
	if obj1.Amount.Valid {
		assert.True(t, obj1.Amount.Decimal.Equal(obj2.Amount.Decimal))
	}
	assert.Equal(t, obj1.Currency, obj2.Currency)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
	assert.Equal(t, obj1.UpdatedAt.Unix(), obj2.UpdatedAt.Unix())
}
