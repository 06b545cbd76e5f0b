package auth

// Roles known to the system. Fulfillment mutations (part approval,
// receiving, stock adjustments) are restricted to shop staff roles;
// viewer is read-only.
const (
	RoleAdmin          = "admin"
	RoleServiceAdvisor = "service_advisor"
	RoleParts          = "parts"
	RoleViewer         = "viewer"
)

var fulfillmentRoles = map[string]struct{}{
	RoleAdmin:          {},
	RoleServiceAdvisor: {},
	RoleParts:          {},
}

// CanFulfill reports whether a role may approve parts, receive stock,
// or adjust inventory.
func CanFulfill(role string) bool {
	_, ok := fulfillmentRoles[role]
	return ok
}

// IsAdmin reports whether a role has administrative access.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}
