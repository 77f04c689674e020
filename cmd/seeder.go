package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

type seedUser struct {
	UserID     string
	ExternalID string
	Outcome    payment.Outcome
}

// seedUsers cover every state a learner can be in. An empty outcome stops at
// PENDING.
var seedUsers = []seedUser{
	{UserID: "demo-paid", ExternalID: "SEED-PAY-0001", Outcome: payment.OutcomeSuccess},
	{UserID: "demo-pending"},
	{UserID: "demo-failed", ExternalID: "SEED-PAY-0002", Outcome: payment.OutcomeFailure},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with demo payment records for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		lg := logger.LoggerWrapper()

		st, err := openStores(cfg.Database, lg)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer st.Close()

		price, err := cfg.Payment.PriceAmount()
		if err != nil {
			log.Fatalf("invalid payment price: %v", err)
		}

		if clearData {
			ids := make([]string, 0, len(seedUsers))
			for _, u := range seedUsers {
				ids = append(ids, u.UserID)
			}
			if err := st.Gorm.Exec("DELETE FROM payment_confirmation_log WHERE user_id IN ?", ids).Error; err != nil {
				log.Fatalf("failed to clear confirmation log: %v", err)
			}
			if err := st.Gorm.Exec("DELETE FROM user_payments WHERE user_id IN ?", ids).Error; err != nil {
				log.Fatalf("failed to clear payment records: %v", err)
			}
			fmt.Println("Cleared demo payment records")
		}

		gate := payment.NewGate(st.Payments, nil, payment.GateConfig{
			Enabled:        true,
			EntitlementTTL: cfg.Payment.EntitlementTTL,
			StoreTimeout:   cfg.Payment.StoreTimeout,
		}, lg)

		ctx := context.Background()
		for _, u := range seedUsers {
			if err := seedPayment(ctx, gate, u, price, cfg.Payment.CurrencyCode()); err != nil {
				log.Fatalf("failed to seed %s: %v", u.UserID, err)
			}
		}

		fmt.Println("Demo payment records seeded successfully")
	},
}

func seedPayment(ctx context.Context, gate *payment.Gate, u seedUser, price decimal.Decimal, currency string) error {
	record, err := gate.Initialize(ctx, u.UserID)
	if err != nil {
		return err
	}

	if u.Outcome != "" && record.Status != payment.StatusCompleted {
		record, err = gate.Confirm(ctx, payment.Confirmation{
			UserID:            u.UserID,
			ExternalPaymentID: u.ExternalID,
			Amount:            price,
			Currency:          currency,
			Outcome:           u.Outcome,
			ProcessorStatus:   "SEED",
		})
		if err != nil {
			return err
		}
	}

	fmt.Printf("Seeded payment record: %s (%s)\n", u.UserID, record.Status)
	return nil
}
