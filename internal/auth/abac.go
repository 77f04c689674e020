package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payment-gate/internal"
)

var ErrForbidden = errors.New("forbidden")

const (
	ActionRead   = "read"
	ActionManage = "manage"
)

// ABACPolicy is a small attribute-based access control helper.
type ABACPolicy struct{}

func (p *ABACPolicy) Allow(userAttrs map[string]string, resourceOwnerID string, action string) bool {
	if role, ok := userAttrs["role"]; ok && role == PermissionAdmin {
		return true
	}

	if permissions, ok := userAttrs["permissions"]; ok {
		for _, perm := range strings.Split(permissions, ",") {
			if perm == PermissionManagePayments && (action == ActionRead || action == ActionManage) {
				return true
			}
		}
	}

	// owners may only look at their own record
	if uid, ok := userAttrs["user_id"]; ok && uid != "" && uid == resourceOwnerID {
		return action == ActionRead
	}

	return false
}

// CanViewPayment checks whether the user can view the payment record owned by ownerID.
func (p *ABACPolicy) CanViewPayment(u *User, ownerID string) error {
	attrs := extractUserAttributes(u)
	if attrs["user_id"] == "" || ownerID == "" {
		return ErrForbidden
	}
	if p.Allow(attrs, ownerID, ActionRead) {
		return nil
	}
	return ErrForbidden
}

func extractUserAttributes(u *User) map[string]string {
	if u == nil {
		return map[string]string{}
	}

	attrs := map[string]string{
		"user_id":     u.ID,
		"permissions": strings.Join(u.Permissions, ","),
	}
	if u.IsAdmin() {
		attrs["role"] = PermissionAdmin
	}
	return attrs
}

// RequireABAC is a generic middleware wrapper that runs an ABAC check function.
func RequireABAC(abac *ABACPolicy, check func(a *ABACPolicy, u *User, r *http.Request) error) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				writeAppError(w, internal.ErrAuthenticationFailed)
				return
			}
			if err := check(abac, u, r); err != nil {
				if errors.Is(err, ErrForbidden) {
					writeAppError(w, internal.ErrInsufficientAccess)
					return
				}
				writeAppError(w, internal.NewInternalError("authorization check failed", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCanViewPayment guards routes carrying the record owner in the userID path parameter.
func RequireCanViewPayment(abac *ABACPolicy) func(next http.Handler) http.Handler {
	return RequireABAC(abac, func(a *ABACPolicy, u *User, r *http.Request) error {
		return a.CanViewPayment(u, chi.URLParam(r, "userID"))
	})
}
