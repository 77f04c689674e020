package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish payment events to an in-process bus to exercise the registered handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:       "publish [event-type]",
	Short:     "Publish a test payment event",
	Long:      `Publish a payment.completed, payment.failed or payment.entitlement_expired event for testing and debugging`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed, events.EventTypeEntitlementExpired},
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventUserID     string
	eventExternalID string
	eventAmount     string
	eventCurrency   string
)

func buildTestEvent(eventType string) (events.Event, error) {
	amount, err := decimal.NewFromString(eventAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", eventAmount, err)
	}

	switch eventType {
	case events.EventTypePaymentCompleted:
		return events.NewPaymentCompletedEvent(eventUserID, eventExternalID, amount, eventCurrency), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(eventUserID, eventExternalID, amount, eventCurrency, "CLI"), nil
	case events.EventTypeEntitlementExpired:
		return events.NewEntitlementExpiredEvent(eventUserID, eventExternalID, time.Now().UTC()), nil
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logger.LoggerWrapper()

	event, err := buildTestEvent(eventType)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus(logger)
	payment.NewEventHandler(logger).RegisterEventHandlers(eventBus)

	logger.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventUserID, "user", "demo-paid", "user id carried by the event")
	publishEventCmd.Flags().StringVar(&eventExternalID, "external-id", "CLI-PAY-0001", "external payment id carried by the event")
	publishEventCmd.Flags().StringVar(&eventAmount, "amount", "6.00", "payment amount")
	publishEventCmd.Flags().StringVar(&eventCurrency, "currency", "EUR", "ISO 4217 currency code")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
