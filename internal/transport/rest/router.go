package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payment-gate/internal/audit"
	"github.com/frahmantamala/payment-gate/internal/auth"
	"github.com/frahmantamala/payment-gate/internal/payment"
	"github.com/frahmantamala/payment-gate/internal/transport/middleware"
	"github.com/frahmantamala/payment-gate/internal/transport/swagger"
	"github.com/frahmantamala/payment-gate/pkg/rate"
)

const (
	APIPrefix      = "/api/v1"
	RecoveryPrefix = APIPrefix + "/recovery"
)

// Handlers is everything the router mounts. Spec and Feature are optional.
type Handlers struct {
	Health   *HealthHandler
	Auth     *auth.Handler
	RBAC     *auth.RBACAuthorization
	ABAC     *auth.ABACPolicy
	Payment  *payment.Handler
	Enforcer *payment.Enforcer
	Audit    *audit.Handler
	Feature  http.Handler
	Spec     *swagger.Spec

	ConfirmLimiter rate.Limiter
	AllowedOrigins string
}

func RegisterAllRoutes(router chi.Router, h Handlers, logger *slog.Logger) {
	confirmLimiter := h.ConfirmLimiter
	if confirmLimiter == nil {
		confirmLimiter = &rate.NoLimiter{}
	}
	feature := h.Feature
	if feature == nil {
		feature = NewFeatureLanding(logger)
	}

	// Apply global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORS(h.AllowedOrigins))

	if h.Spec != nil {
		router.Get(swagger.SpecURL, h.Spec.ServeHTTP)
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", h.Health.Health)
		r.Get("/ping", h.Health.Ping)

		// everything below needs a verified identity
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/auth/session", h.Auth.Session)

			pr.Route("/payment", func(pmr chi.Router) {
				pmr.With(middleware.RateLimit(confirmLimiter, logger)).Post("/confirm", h.Payment.Confirm)
				pmr.Get("/entitlement", h.Payment.Entitlement)
				pmr.Get("/status", h.Payment.Status)
				// GET serves the enforcer's browser redirect
				pmr.Get("/checkout", h.Payment.Checkout)
				pmr.Post("/checkout", h.Payment.Checkout)
			})

			pr.Route("/admin/payments", func(ar chi.Router) {
				ar.With(h.RBAC.RequireManagePayments()).Get("/confirmations", h.Audit.ListConfirmations)
				ar.With(auth.RequireCanViewPayment(h.ABAC)).Get("/{userID}", h.Payment.GetUserPayment)
			})

			pr.Group(func(fr chi.Router) {
				fr.Use(h.RBAC.RequireUseRecovery())
				fr.Use(h.Enforcer.Middleware)
				fr.Handle("/recovery", feature)
				fr.Handle("/recovery/*", feature)
			})
		})
	})
}
