package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal/audit"
)

const (
	tableName = "payment_confirmation_log"

	allColumns = `id, user_id, external_payment_id, processor_status, amount, currency, result, error_code, message, created_at`
)

type model struct {
	ID                sql.NullInt64       `db:"id"`
	UserID            string              `db:"user_id"`
	ExternalPaymentID sql.NullString      `db:"external_payment_id"`
	ProcessorStatus   sql.NullString      `db:"processor_status"`
	Amount            decimal.NullDecimal `db:"amount"`
	Currency          sql.NullString      `db:"currency"`
	Result            string              `db:"result"`
	ErrorCode         sql.NullString      `db:"error_code"`
	Message           sql.NullString      `db:"message"`
	CreatedAt         time.Time           `db:"created_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toModel(obj *audit.Entry) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		UserID:            obj.UserID,
		ExternalPaymentID: nullString(obj.ExternalPaymentID),
		ProcessorStatus:   nullString(obj.ProcessorStatus),
		Amount:            obj.Amount,
		Currency:          nullString(obj.Currency),
		Result:            obj.Result,
		ErrorCode:         nullString(obj.ErrorCode),
		Message:           nullString(obj.Message),
		CreatedAt:         obj.CreatedAt.UTC(),
	}, nil
}

func fromModel(obj *model) *audit.Entry {
	return &audit.Entry{
		ID:                obj.ID.Int64,
		UserID:            obj.UserID,
		ExternalPaymentID: obj.ExternalPaymentID.String,
		ProcessorStatus:   obj.ProcessorStatus.String,
		Amount:            obj.Amount,
		Currency:          obj.Currency.String,
		Result:            obj.Result,
		ErrorCode:         obj.ErrorCode.String,
		Message:           obj.Message.String,
		CreatedAt:         obj.CreatedAt.UTC(),
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := db.Rebind(`INSERT INTO ` + tableName + `
		(user_id, external_payment_id, processor_status, amount, currency, result, error_code, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	return db.QueryRowxContext(ctx, query,
		m.UserID,
		m.ExternalPaymentID,
		m.ProcessorStatus,
		m.Amount,
		m.Currency,
		m.Result,
		m.ErrorCode,
		m.Message,
		m.CreatedAt,
	).Scan(&m.ID)
}

func dbListByUser(ctx context.Context, db *sqlx.DB, userID string, limit int) ([]*model, error) {
	var res []*model
	query := db.Rebind(`SELECT ` + allColumns + ` FROM ` + tableName + `
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`)
	if err := db.SelectContext(ctx, &res, query, userID, limit); err != nil {
		return nil, err
	}
	return res, nil
}

func dbListRecent(ctx context.Context, db *sqlx.DB, limit int) ([]*model, error) {
	var res []*model
	query := db.Rebind(`SELECT ` + allColumns + ` FROM ` + tableName + `
		ORDER BY id DESC
		LIMIT ?`)
	if err := db.SelectContext(ctx, &res, query, limit); err != nil {
		return nil, err
	}
	return res, nil
}
