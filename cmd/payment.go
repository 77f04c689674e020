package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/audit"
	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Inspect and reconcile payment records",
	Long:  `Operator commands for payment records. Every change goes through the payment gate, so the same duplicate and conflict rules apply as for the HTTP API.`,
}

var paymentStatusCmd = &cobra.Command{
	Use:   "status [user-id]",
	Short: "Print a user's payment record and entitlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGate(func(ctx context.Context, _ *internal.Config, gate *payment.Gate, _ *stores) error {
			record, err := gate.Status(ctx, args[0])
			if err != nil {
				return err
			}
			entitled, err := gate.IsEntitled(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"record": record, "entitled": entitled})
		})
	},
}

var (
	reconcileExternalID string
	reconcileAmount     string
	reconcileCurrency   string
	reconcileStatus     string
)

var paymentReconcileCmd = &cobra.Command{
	Use:   "reconcile [user-id]",
	Short: "Apply a processor verdict that never reached the confirmation endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(reconcileAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", reconcileAmount, err)
		}

		return withGate(func(ctx context.Context, cfg *internal.Config, gate *payment.Gate, st *stores) error {
			outcome := payment.OutcomeFailure
			for _, token := range cfg.Payment.SuccessTokens() {
				if strings.EqualFold(strings.TrimSpace(reconcileStatus), token) {
					outcome = payment.OutcomeSuccess
				}
			}

			c := payment.Confirmation{
				UserID:            args[0],
				ExternalPaymentID: reconcileExternalID,
				Amount:            amount,
				Currency:          reconcileCurrency,
				Outcome:           outcome,
				ProcessorStatus:   reconcileStatus,
			}

			entry := &audit.Entry{
				UserID:            c.UserID,
				ExternalPaymentID: c.ExternalPaymentID,
				ProcessorStatus:   c.ProcessorStatus,
				Amount:            decimal.NewNullDecimal(amount),
				Currency:          strings.ToUpper(c.Currency),
				Result:            audit.ResultSuccess,
				Message:           "reconciled by operator",
			}

			record, confirmErr := gate.Confirm(ctx, c)
			if confirmErr != nil {
				entry.Result = audit.ResultError
				entry.Message = confirmErr.Error()
				if appErr, ok := internal.IsAppError(confirmErr); ok {
					entry.ErrorCode = string(appErr.Code)
				}
			}
			if err := st.Audit.Append(ctx, entry); err != nil {
				logger.LoggerWrapper().Warn("failed to write confirmation log entry", "error", err)
			}
			if confirmErr != nil {
				return confirmErr
			}
			return printJSON(record)
		})
	},
}

func withGate(fn func(ctx context.Context, cfg *internal.Config, gate *payment.Gate, st *stores) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.LoggerWrapper()

	st, err := openStores(cfg.Database, lg)
	if err != nil {
		return err
	}
	defer st.Close()

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventBus.Wait(ctx); err != nil {
			lg.Warn("payment events still in flight at exit", "error", err)
		}
	}()

	gate := payment.NewGate(st.Payments, eventBus, payment.GateConfig{
		Enabled:        cfg.Payment.Enabled,
		EntitlementTTL: cfg.Payment.EntitlementTTL,
		StoreTimeout:   cfg.Payment.StoreTimeout,
	}, lg)

	return fn(context.Background(), cfg, gate, st)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	paymentReconcileCmd.Flags().StringVar(&reconcileExternalID, "external-id", "", "processor transaction id")
	paymentReconcileCmd.Flags().StringVar(&reconcileAmount, "amount", "", "captured amount")
	paymentReconcileCmd.Flags().StringVar(&reconcileCurrency, "currency", "EUR", "ISO 4217 currency code")
	paymentReconcileCmd.Flags().StringVar(&reconcileStatus, "status", "COMPLETED", "processor status")
	_ = paymentReconcileCmd.MarkFlagRequired("external-id")
	_ = paymentReconcileCmd.MarkFlagRequired("amount")

	paymentCmd.AddCommand(paymentStatusCmd)
	paymentCmd.AddCommand(paymentReconcileCmd)

	rootCmd.AddCommand(paymentCmd)
}
