package paymentgateway

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the processor's order status as reported by its API.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusVoided    OrderStatus = "VOIDED"
)

// VerificationRequest is what the browser claimed about an order.
type VerificationRequest struct {
	OrderID  string          `json:"order_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (r *VerificationRequest) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return errors.New("order_id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

// OrderDetails is the processor's own view of the order.
type OrderDetails struct {
	OrderID  string          `json:"order_id"`
	Status   OrderStatus     `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
