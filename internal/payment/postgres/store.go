package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/frahmantamala/payment-gate/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/pkg/pg"
)

// maxUpdateAttempts covers one lost race on the first insert for a user plus
// one serialization retry.
const maxUpdateAttempts = 3

type store struct {
	db *gorm.DB
}

// New returns a payment.Store over the user_payments table. The gorm handle
// should be opened with TranslateError so duplicate keys surface as
// gorm.ErrDuplicatedKey on every dialect.
func New(db *gorm.DB) payment.Store {
	return &store{db: db}
}

// Get implements payment.Store.Get
func (s *store) Get(ctx context.Context, userID string) (*payment.Record, error) {
	var m model.UserPayment
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error
	if err != nil {
		return nil, checkNotFound(err)
	}
	return fromModel(&m)
}

// GetByExternalPaymentID implements payment.Store.GetByExternalPaymentID
func (s *store) GetByExternalPaymentID(ctx context.Context, externalPaymentID string) (*payment.Record, error) {
	if externalPaymentID == "" {
		return nil, payment.ErrRecordNotFound
	}

	var m model.UserPayment
	err := s.db.WithContext(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		Order("CASE WHEN status = '"+model.StatusCompleted+"' THEN 0 ELSE 1 END, updated_at DESC").
		Take(&m).Error
	if err != nil {
		return nil, checkNotFound(err)
	}
	return fromModel(&m)
}

// Upsert implements payment.Store.Upsert
func (s *store) Upsert(ctx context.Context, record *payment.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	m := toModel(record)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"external_payment_id",
			"amount",
			"currency",
			"completed_at",
			"expires_at",
			"updated_at",
		}),
	}).Create(m).Error
	if isDuplicate(err) {
		return payment.ErrExternalPaymentIDTaken
	}
	return err
}

// Update implements payment.Store.Update
//
// The current row is read under SELECT ... FOR UPDATE so concurrent updates
// for the same user serialize on the row lock. When the user has no row yet,
// two callers can both try the first insert; the loser gets a duplicate key,
// retries, and then sees the winner's row.
func (s *store) Update(ctx context.Context, userID string, fn payment.UpdateFunc) (*payment.Record, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		result, inserted, err := s.updateOnce(ctx, userID, fn)
		switch {
		case err == nil:
			return result, nil
		case isDuplicate(err) && inserted && attempt == 0:
			lastErr = err
			continue
		case isDuplicate(err):
			return nil, payment.ErrExternalPaymentIDTaken
		case pg.IsRetryable(err):
			lastErr = err
			continue
		default:
			return nil, err
		}
	}
	if isDuplicate(lastErr) {
		return nil, payment.ErrExternalPaymentIDTaken
	}
	return nil, lastErr
}

func (s *store) updateOnce(ctx context.Context, userID string, fn payment.UpdateFunc) (*payment.Record, bool, error) {
	var (
		result   *payment.Record
		inserted bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			current   *payment.Record
			persisted *model.UserPayment
		)

		var m model.UserPayment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&m).Error
		switch {
		case err == nil:
			current, err = fromModel(&m)
			if err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		var arg *payment.Record
		if current != nil {
			arg = current.Clone()
		}
		next, err := fn(arg)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		next.UserID = userID
		if err := next.Validate(); err != nil {
			return err
		}

		if current == nil {
			if next.CreatedAt.IsZero() {
				next.CreatedAt = time.Now().UTC()
			}
			if next.UpdatedAt.IsZero() {
				next.UpdatedAt = next.CreatedAt
			}
			inserted = true
			persisted = toModel(next)
			if err := tx.Create(persisted).Error; err != nil {
				return err
			}
		} else {
			next.CreatedAt = current.CreatedAt
			if next.UpdatedAt.IsZero() {
				next.UpdatedAt = time.Now().UTC()
			}
			persisted = toModel(next)
			if err := tx.Save(persisted).Error; err != nil {
				return err
			}
		}

		result, err = fromModel(persisted)
		return err
	})
	if err != nil {
		return nil, inserted, err
	}
	return result, inserted, nil
}

// ListExpiring implements payment.Store.ListExpiring
func (s *store) ListExpiring(ctx context.Context, from, to time.Time, limit int) ([]*payment.Record, error) {
	var models []model.UserPayment

	q := s.db.WithContext(ctx).
		Where("status = ? AND expires_at > ? AND expires_at <= ?", model.StatusCompleted, from.UTC(), to.UTC()).
		Order("expires_at ASC, user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	res := make([]*payment.Record, 0, len(models))
	for i := range models {
		r, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

func checkNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payment.ErrRecordNotFound
	}
	return pg.CheckNoRows(err, payment.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || pg.IsUniqueViolation(err)
}
