package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	xrate "golang.org/x/time/rate"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/audit"
	"github.com/frahmantamala/payment-gate/internal/auth"
	"github.com/frahmantamala/payment-gate/internal/core/events"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/internal/paymentgateway"
	"github.com/frahmantamala/payment-gate/internal/transport/rest"
	"github.com/frahmantamala/payment-gate/internal/transport/swagger"
	"github.com/frahmantamala/payment-gate/pkg/logger"
	"github.com/frahmantamala/payment-gate/pkg/rate"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

const shutdownTimeout = 30 * time.Second

type Dependencies struct {
	Config   *internal.Config
	Stores   *stores
	Router   *chi.Mux
	Logger   *slog.Logger
	EventBus *events.EventBus
	Recorder *audit.Recorder
	Sweeper  *payment.ExpirySweeper
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "payments_enabled", deps.Config.Payment.Enabled)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.shutdown(ctx)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.shutdown(context.Background())
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

// shutdown stops background work in dependency order and closes the pool last.
func (d *Dependencies) shutdown(ctx context.Context) {
	if d.Sweeper != nil {
		d.Sweeper.Stop()
	}
	if err := d.EventBus.Wait(ctx); err != nil {
		d.Logger.Warn("event handlers still running at shutdown", "error", err)
	}
	d.Recorder.Shutdown()
	if err := d.Stores.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	st, err := openStores(config.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	price, err := config.Payment.PriceAmount()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	gate := payment.NewGate(st.Payments, eventBus, payment.GateConfig{
		Enabled:        config.Payment.Enabled,
		EntitlementTTL: config.Payment.EntitlementTTL,
		StoreTimeout:   config.Payment.StoreTimeout,
	}, lg)

	sesskeys := auth.NewSesskeyIssuer(config.Security.SessionSecret)
	tokens := auth.NewJWTTokenGenerator(config.Security.JWTSecret, config.Security.AccessTokenDuration)

	recorder := audit.NewRecorder(st.Audit, audit.RecorderConfig{WriteTimeout: config.Payment.StoreTimeout}, lg)
	receiver := payment.NewReceiver(gate, sesskeys, payment.ReceiverConfig{
		SuccessStatuses: config.Payment.SuccessTokens(),
	}, lg).WithAuditRecorder(recorder)

	if config.Payment.PayPal.VerifyOrders {
		verifier, err := paymentgateway.NewPayPalVerifier(paymentgateway.Config{
			ClientID:     config.Payment.PayPal.ClientID,
			ClientSecret: config.Payment.PayPal.ClientSecret,
			APIBase:      config.Payment.PayPal.APIBase,
		}, lg)
		if err != nil {
			recorder.Shutdown()
			_ = st.Close()
			return nil, fmt.Errorf("failed to create paypal verifier: %w", err)
		}
		receiver.WithOrderVerifier(verifier)
	}

	var feature http.Handler
	if config.Payment.FeatureUpstreamURL != "" {
		feature, err = rest.NewFeatureProxy(config.Payment.FeatureUpstreamURL, rest.RecoveryPrefix, lg)
		if err != nil {
			recorder.Shutdown()
			_ = st.Close()
			return nil, err
		}
	}

	var spec *swagger.Spec
	if config.Server.OpenAPIPath != "" {
		spec, err = swagger.Load(context.Background(), config.Server.OpenAPIPath)
		if err != nil {
			recorder.Shutdown()
			_ = st.Close()
			return nil, err
		}
		lg.Info("openapi spec loaded", "title", spec.Title(), "version", spec.Version())
	}

	var confirmLimiter rate.Limiter = &rate.NoLimiter{}
	if config.Payment.ConfirmRateLimit > 0 {
		confirmLimiter = rate.NewLocalRateLimiter(xrate.Limit(config.Payment.ConfirmRateLimit))
	}

	handlers := rest.Handlers{
		Health: rest.NewHealthHandler(map[string]rest.Pinger{"postgres": st.DB}),
		Auth:   auth.NewHandler(tokens, sesskeys, lg),
		RBAC:   auth.NewRBACAuthorization(auth.NewPermissionChecker(), lg),
		ABAC:   &auth.ABACPolicy{},
		Payment: payment.NewHandler(gate, receiver, sesskeys, payment.CheckoutConfig{
			Price:          price,
			Currency:       config.Payment.CurrencyCode(),
			PayPalClientID: config.Payment.PayPal.ClientID,
		}, lg),
		Enforcer:       payment.NewEnforcer(gate, config.Payment.CheckoutURL, lg),
		Audit:          audit.NewHandler(st.Audit, lg),
		Feature:        feature,
		Spec:           spec,
		ConfirmLimiter: confirmLimiter,
		AllowedOrigins: config.Server.AllowedOrigins,
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, lg)

	deps := &Dependencies{
		Config:   config,
		Stores:   st,
		Router:   router,
		Logger:   lg,
		EventBus: eventBus,
		Recorder: recorder,
	}

	if config.Payment.EntitlementTTL > 0 {
		sweeper := payment.NewExpirySweeper(st.Payments, eventBus, config.Payment.StoreTimeout, lg)
		if err := sweeper.Start(context.Background(), config.Payment.ExpirySweepCron); err != nil {
			deps.shutdown(context.Background())
			return nil, err
		}
		deps.Sweeper = sweeper
	}

	return deps, nil
}
