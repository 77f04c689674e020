package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusNone      = "NONE"
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// UserPayment is the persisted row of the user_payments table. One row per user.
type UserPayment struct {
	UserID            string              `gorm:"column:user_id;primaryKey;size:64"`
	Status            string              `gorm:"column:status;not null;size:16;index:idx_user_payments_status"`
	ExternalPaymentID *string             `gorm:"column:external_payment_id;size:128;uniqueIndex:idx_user_payments_completed_external_id,where:status = 'COMPLETED'"`
	Amount            decimal.NullDecimal `gorm:"column:amount;type:numeric"`
	Currency          *string             `gorm:"column:currency;size:3"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	ExpiresAt         *time.Time          `gorm:"column:expires_at;index:idx_user_payments_expires_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (UserPayment) TableName() string {
	return "user_payments"
}
