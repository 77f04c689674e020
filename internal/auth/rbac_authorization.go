package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
)

type PermissionAuthorizer interface {
	HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error)
	CanUseRecoveryCtx(ctx context.Context, userPermissions []string) (bool, error)
	CanManagePaymentsCtx(ctx context.Context, userPermissions []string) (bool, error)
}

type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
	}
}

type accessCheck func(ctx context.Context, userPermissions []string) (bool, error)

func (ra *RBACAuthorization) guard(next http.Handler, name string, check accessCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			ra.Logger.WarnContext(r.Context(), "authorization check failed: user not found in context")
			ra.HandleError(w, internal.ErrAuthenticationFailed)
			return
		}

		hasAccess, err := check(r.Context(), user.Permissions)
		if err != nil {
			ra.Logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", user.ID, "permission", name)
			ra.HandleError(w, internal.NewInternalError("authorization check failed", err))
			return
		}

		if !hasAccess {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"required_permission", name,
				"user_permissions", user.Permissions)
			ra.HandleError(w, internal.ErrInsufficientAccess)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.guard(next, permission, func(ctx context.Context, perms []string) (bool, error) {
			return ra.authorizer.HasPermission(ctx, perms, permission)
		})
	}
}

func (ra *RBACAuthorization) RequireUseRecovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.guard(next, PermissionUseRecovery, ra.authorizer.CanUseRecoveryCtx)
	}
}

func (ra *RBACAuthorization) RequireManagePayments() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.guard(next, PermissionManagePayments, ra.authorizer.CanManagePaymentsCtx)
	}
}
