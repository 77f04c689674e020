package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/payment-gate/internal/audit"
)

type store struct {
	db *sqlx.DB
}

// New returns a sqlx backed confirmation log. Queries are written with
// bindvars rebound for the handle's driver.
func New(db *sqlx.DB) audit.Store {
	return &store{db: db}
}

func (s *store) Append(ctx context.Context, entry *audit.Entry) error {
	m, err := toModel(entry)
	if err != nil {
		return err
	}

	if err := m.dbPut(ctx, s.db); err != nil {
		return err
	}

	entry.ID = m.ID.Int64
	entry.CreatedAt = m.CreatedAt
	return nil
}

func (s *store) ListByUser(ctx context.Context, userID string, limit int) ([]*audit.Entry, error) {
	models, err := dbListByUser(ctx, s.db, userID, audit.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *store) ListRecent(ctx context.Context, limit int) ([]*audit.Entry, error) {
	models, err := dbListRecent(ctx, s.db, audit.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func fromModels(models []*model) []*audit.Entry {
	res := make([]*audit.Entry, 0, len(models))
	for _, m := range models {
		res = append(res, fromModel(m))
	}
	return res
}
