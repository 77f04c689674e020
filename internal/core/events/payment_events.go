package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted   = "payment.completed"
	EventTypePaymentFailed      = "payment.failed"
	EventTypeEntitlementExpired = "payment.entitlement_expired"
)

type PaymentCompletedEvent struct {
	BaseEvent
	UserID            string          `json:"user_id"`
	ExternalPaymentID string          `json:"external_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
}

func NewPaymentCompletedEvent(userID, externalPaymentID string, amount decimal.Decimal, currency string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":             userID,
				"external_payment_id": externalPaymentID,
				"amount":              amount.StringFixed(2),
				"currency":            currency,
			},
		},
		UserID:            userID,
		ExternalPaymentID: externalPaymentID,
		Amount:            amount,
		Currency:          currency,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	UserID            string          `json:"user_id"`
	ExternalPaymentID string          `json:"external_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProcessorStatus   string          `json:"processor_status,omitempty"`
}

func NewPaymentFailedEvent(userID, externalPaymentID string, amount decimal.Decimal, currency, processorStatus string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":             userID,
				"external_payment_id": externalPaymentID,
				"amount":              amount.StringFixed(2),
				"currency":            currency,
				"processor_status":    processorStatus,
			},
		},
		UserID:            userID,
		ExternalPaymentID: externalPaymentID,
		Amount:            amount,
		Currency:          currency,
		ProcessorStatus:   processorStatus,
	}
}

type EntitlementExpiredEvent struct {
	BaseEvent
	UserID            string    `json:"user_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	ExpiredAt         time.Time `json:"expired_at"`
}

func NewEntitlementExpiredEvent(userID, externalPaymentID string, expiredAt time.Time) *EntitlementExpiredEvent {
	return &EntitlementExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeEntitlementExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":             userID,
				"external_payment_id": externalPaymentID,
				"expired_at":          expiredAt,
			},
		},
		UserID:            userID,
		ExternalPaymentID: externalPaymentID,
		ExpiredAt:         expiredAt,
	}
}
