package payment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionPaymentRequired
	DecisionUnavailable
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionPaymentRequired:
		return "payment_required"
	case DecisionUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Enforcer guards the paid feature. It fails closed: any doubt about the
// user's entitlement denies access.
type Enforcer struct {
	*transport.BaseHandler
	gate        GateAPI
	checkoutURL string
}

func NewEnforcer(gate GateAPI, checkoutURL string, lg *slog.Logger) *Enforcer {
	return &Enforcer{
		BaseHandler: transport.NewBaseHandler(lg),
		gate:        gate,
		checkoutURL: checkoutURL,
	}
}

func (e *Enforcer) Check(ctx context.Context, userID string) Decision {
	entitled, err := e.gate.IsEntitled(ctx, userID)
	if err != nil {
		logger.FromOr(ctx, e.Logger).Error("entitlement check failed, denying access", "user_id", userID, "error", err)
		return DecisionUnavailable
	}
	if !entitled {
		return DecisionPaymentRequired
	}
	return DecisionAllowed
}

// Middleware runs after authentication and the capability check.
func (e *Enforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := internal.UserIDFromContext(r.Context())
		if userID == "" {
			e.HandleError(w, internal.ErrAuthenticationFailed)
			return
		}

		decision := e.Check(r.Context(), userID)
		switch decision {
		case DecisionAllowed:
			next.ServeHTTP(w, r)
		case DecisionPaymentRequired:
			logger.FromOr(r.Context(), e.Logger).Info("payment required", "user_id", userID, "path", r.URL.Path)
			if transport.WantsHTML(r) && e.checkoutURL != "" {
				http.Redirect(w, r, e.checkoutURL, http.StatusSeeOther)
				return
			}
			e.HandleError(w, internal.ErrPaymentRequired.WithDetails(map[string]string{
				"checkout_url": e.checkoutURL,
			}))
		default:
			e.HandleError(w, internal.ErrStoreUnavailable)
		}
	})
}
