package auth

import "context"

const (
	PermissionUseRecovery    = "use_recovery"
	PermissionManagePayments = "manage_payments"
	PermissionAdmin          = "admin"
)

// DefaultPermissionChecker grants every permission to holders of admin.
type DefaultPermissionChecker struct{}

func NewPermissionChecker() *DefaultPermissionChecker {
	return &DefaultPermissionChecker{}
}

func (c *DefaultPermissionChecker) HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error) {
	return c.HasAnyPermission(userPermissions, []string{permission, PermissionAdmin}), nil
}

func (c *DefaultPermissionChecker) CanUseRecoveryCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.CanUseRecovery(userPermissions), nil
}

func (c *DefaultPermissionChecker) CanManagePaymentsCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.CanManagePayments(userPermissions), nil
}

func (c *DefaultPermissionChecker) CanUseRecovery(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{PermissionUseRecovery, PermissionAdmin})
}

func (c *DefaultPermissionChecker) CanManagePayments(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{PermissionManagePayments, PermissionAdmin})
}

func (c *DefaultPermissionChecker) HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		for _, requiredPerm := range requiredPermissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}
