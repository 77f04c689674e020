package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run outside the HTTP server, such as the entitlement expiry sweeper.`,
}

var expiryWorkerCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Start the entitlement expiry sweeper",
	Long:  `Periodically announce entitlements whose expiry passed, on the configured cron schedule`,
	Run: func(cmd *cobra.Command, args []string) {
		startExpiryWorker()
	},
}

var (
	sweepSchedule string
	sweepOnce     bool
)

func startExpiryWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.LoggerWrapper()

	st, err := openStores(config.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	eventBus := events.NewEventBus(logger)
	payment.NewEventHandler(logger).RegisterEventHandlers(eventBus)

	sweeper := payment.NewExpirySweeper(st.Payments, eventBus, config.Payment.StoreTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sweepOnce {
		count, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Error("expiry sweep failed", "error", err)
			os.Exit(1)
		}
		if err := eventBus.Wait(ctx); err != nil {
			logger.Warn("event handlers did not finish", "error", err)
		}
		logger.Info("expiry sweep complete", "announced", count)
		return
	}

	schedule := getStringFlag(sweepSchedule, config.Payment.ExpirySweepCron)
	if err := sweeper.Start(ctx, schedule); err != nil {
		logger.Error("failed to start expiry sweeper", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("expiry worker is running. Press Ctrl+C to stop.")

	// wait for shutdown signal
	sig := <-sigChan
	logger.Info("received signal, shutting down expiry worker", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sweeper.Stop()
	if err := eventBus.Wait(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout reached, forcing exit")
	}
	logger.Info("expiry worker shutdown complete")
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	expiryWorkerCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron schedule (overrides config)")
	expiryWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "run a single sweep and exit")

	workerCmd.AddCommand(expiryWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
