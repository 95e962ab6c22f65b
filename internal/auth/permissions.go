package auth

// Role is the authorisation tier carried in a token.
type Role string

const (
	// RoleClient sends messages and reads session state for its tenants.
	RoleClient Role = "client"

	// RoleOperator additionally provisions, restarts and logs out sessions.
	RoleOperator Role = "operator"

	// RoleAdmin reaches every tenant plus audit, cleanup and session listing.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleClient, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermSessionRead    Permission = "session:read"
	PermSessionManage  Permission = "session:manage"
	PermMessageSend    Permission = "message:send"
	PermMediaUpload    Permission = "media:upload"
	PermSystemAdmin    Permission = "system:admin"
	PermSystemCleanup  Permission = "system:cleanup"
	PermAuditRead      Permission = "audit:read"
	PermSessionListAll Permission = "session:list"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleClient: {
		PermSessionRead,
		PermMessageSend,
		PermMediaUpload,
	},
	RoleOperator: {
		PermSessionRead,
		PermSessionManage,
		PermMessageSend,
		PermMediaUpload,
		PermSystemCleanup,
	},
	RoleAdmin: {
		PermSessionRead,
		PermSessionManage,
		PermMessageSend,
		PermMediaUpload,
		PermSystemCleanup,
		PermSystemAdmin,
		PermAuditRead,
		PermSessionListAll,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role,
// or nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
