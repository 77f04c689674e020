package payment

import (
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/core/common/validation"
)

// ConfirmationRequest is the processor-originated payload relayed by the
// browser after checkout. It deliberately has no user id field.
type ConfirmationRequest struct {
	ExternalPaymentID string           `json:"external_payment_id"`
	Status            string           `json:"status"`
	Amount            *decimal.Decimal `json:"amount"`
	Currency          string           `json:"currency"`
	Sesskey           string           `json:"sesskey,omitempty"`
}

// Validate checks the payload shape. Domain rules (known currency codes) are
// left to the gate.
func (r *ConfirmationRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("external_payment_id", r.ExternalPaymentID).Required().MaxLength(128)
	validator.Field("status", r.Status).Required().MaxLength(32)
	validator.Field("amount", r.Amount).
		Required().
		PositiveDecimal(errors.ErrCodeInvalidAmount).
		MaxDecimalPlaces(2, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required().CurrencyCode()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Outcome maps the processor status onto the gate's two outcomes. Anything
// that is not one of the success tokens counts as a failure.
func (r *ConfirmationRequest) Outcome(successTokens []string) Outcome {
	status := strings.TrimSpace(r.Status)
	for _, token := range successTokens {
		if strings.EqualFold(status, token) {
			return OutcomeSuccess
		}
	}
	return OutcomeFailure
}

// Result is the wire response of the confirmation endpoint.
type Result struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Payment *Record          `json:"payment,omitempty"`

	HTTPStatus int `json:"-"`
}

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

type CheckoutResponse struct {
	Status         Status `json:"status"`
	Entitled       bool   `json:"entitled"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	DisplayPrice   string `json:"display_price"`
	PayPalClientID string `json:"paypal_client_id,omitempty"`
	Sesskey        string `json:"sesskey"`
	ConfirmURL     string `json:"confirm_url"`
}

type EntitlementResponse struct {
	UserID   string `json:"user_id"`
	Entitled bool   `json:"entitled"`
}
