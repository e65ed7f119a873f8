package rbac

import "github.com/dealroom/backend/internal/models"

// Permission constants
const (
	PermViewTerms         = "view_terms"
	PermViewAuditTrail    = "view_audit_trail"
	PermPostMessage       = "post_message"
	PermReadMessages      = "read_messages"
	PermReadNotifications = "read_notifications"
	PermManagePreferences = "manage_preferences"
	PermListDeals         = "list_deals"
)

// RolePermissions defines what each role can do on a deal.
// Status transitions, including dispute resolution, are governed by
// models.DealTransitions, not by this table.
var RolePermissions = map[models.Role][]string{
	models.RoleBuyer: {
		PermViewTerms, PermViewAuditTrail, PermPostMessage, PermReadMessages,
		PermReadNotifications, PermManagePreferences,
	},
	models.RoleSeller: {
		PermViewTerms, PermViewAuditTrail, PermPostMessage, PermReadMessages,
		PermReadNotifications, PermManagePreferences,
	},
	models.RoleAdmin: {
		PermViewTerms, PermViewAuditTrail, PermPostMessage, PermReadMessages,
		PermReadNotifications, PermManagePreferences, PermListDeals,
	},
	// Observer can only see the masked view and the status timeline.
	models.RoleObserver: {
		PermViewAuditTrail,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role models.Role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
