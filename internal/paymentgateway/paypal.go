package paymentgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	gatewaytypes "github.com/frahmantamala/payment-gate/internal/core/datamodel/paymentgateway"
)

var ErrOrderMismatch = errors.New("order does not match processor records")

type Config struct {
	ClientID     string
	ClientSecret string
	APIBase      string
	Timeout      time.Duration
}

// PayPalVerifier cross-checks a browser reported confirmation against the
// order stored at PayPal.
type PayPalVerifier struct {
	client  *paypal.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewPayPalVerifier(config Config, logger *slog.Logger) (*PayPalVerifier, error) {
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = paypal.APIBaseSandBox
	}

	client, err := paypal.NewClient(config.ClientID, config.ClientSecret, apiBase)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PayPalVerifier{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// GetOrder fetches the order and flattens its first purchase unit.
func (v *PayPalVerifier) GetOrder(ctx context.Context, orderID string) (*gatewaytypes.OrderDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	order, err := v.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get paypal order %s: %w", orderID, err)
	}
	if len(order.PurchaseUnits) == 0 || order.PurchaseUnits[0].Amount == nil {
		return nil, fmt.Errorf("paypal order %s has no purchase unit amount", orderID)
	}

	unit := order.PurchaseUnits[0].Amount
	amount, err := decimal.NewFromString(unit.Value)
	if err != nil {
		return nil, fmt.Errorf("paypal order %s has invalid amount %q: %w", orderID, unit.Value, err)
	}

	return &gatewaytypes.OrderDetails{
		OrderID:  order.ID,
		Status:   gatewaytypes.OrderStatus(strings.ToUpper(order.Status)),
		Amount:   amount,
		Currency: strings.ToUpper(unit.Currency),
	}, nil
}

// VerifyOrder returns ErrProcessorMismatch when the processor disagrees with
// the request about status, amount or currency. A processor outage is an
// unavailable error.
func (v *PayPalVerifier) VerifyOrder(ctx context.Context, req gatewaytypes.VerificationRequest) error {
	if err := req.Validate(); err != nil {
		return internal.ErrProcessorMismatch.WithMessage(err.Error())
	}

	details, err := v.GetOrder(ctx, req.OrderID)
	if err != nil {
		v.logger.ErrorContext(ctx, "paypal order lookup failed", "order_id", req.OrderID, "error", err)
		return internal.NewUnavailableError("payment processor unavailable", err)
	}

	log := v.logger.With("order_id", req.OrderID)
	switch {
	case !strings.EqualFold(string(details.Status), req.Status):
		log.WarnContext(ctx, "order status mismatch", "claimed", req.Status, "actual", details.Status)
		return internal.ErrProcessorMismatch.WithCause(fmt.Errorf("%w: status %s", ErrOrderMismatch, details.Status))
	case !details.Amount.Equal(req.Amount):
		log.WarnContext(ctx, "order amount mismatch", "claimed", req.Amount, "actual", details.Amount)
		return internal.ErrProcessorMismatch.WithCause(fmt.Errorf("%w: amount %s", ErrOrderMismatch, details.Amount))
	case !strings.EqualFold(details.Currency, req.Currency):
		log.WarnContext(ctx, "order currency mismatch", "claimed", req.Currency, "actual", details.Currency)
		return internal.ErrProcessorMismatch.WithCause(fmt.Errorf("%w: currency %s", ErrOrderMismatch, details.Currency))
	}

	log.InfoContext(ctx, "paypal order verified", "status", details.Status, "amount", details.Amount)
	return nil
}
