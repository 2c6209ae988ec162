package auth

// Role gates the few endpoints that change shared settings
type Role string

const (
	// RoleAdmin may change budget limits
	RoleAdmin Role = "admin"

	// RoleUser may run analyses and read usage
	RoleUser Role = "user"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Admin has all permissions.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
