package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-gate/internal/core/events"
)

// EventHandler is the in-process subscriber for payment events. It records
// the unlock and failure notifications the LMS picks up from the log stream.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger,
	}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.InfoContext(ctx, "recovery feature unlocked",
		"user_id", completed.UserID,
		"external_payment_id", completed.ExternalPaymentID,
		"amount", completed.Amount.StringFixed(2),
		"currency", completed.Currency,
		"event_id", completed.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.WarnContext(ctx, "payment failed",
		"user_id", failed.UserID,
		"external_payment_id", failed.ExternalPaymentID,
		"processor_status", failed.ProcessorStatus,
		"event_id", failed.EventID())
	return nil
}

func (h *EventHandler) HandleEntitlementExpired(ctx context.Context, event events.Event) error {
	expired, ok := event.(*events.EntitlementExpiredEvent)
	if !ok {
		h.logger.Error("invalid event type for entitlement expired handler", "event_type", event.EventType())
		return fmt.Errorf("expected EntitlementExpiredEvent, got %T", event)
	}

	h.logger.InfoContext(ctx, "recovery entitlement expired",
		"user_id", expired.UserID,
		"external_payment_id", expired.ExternalPaymentID,
		"expired_at", expired.ExpiredAt,
		"event_id", expired.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypeEntitlementExpired, h.HandleEntitlementExpired)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypeEntitlementExpired,
		})
}
