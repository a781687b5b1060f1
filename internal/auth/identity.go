package auth

// Roles assignable to a user.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleMember  = "MEMBER"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	Email string
	Role  string
}

// CanSeeAll reports whether the role may read tasks assigned to other users.
func (id Identity) CanSeeAll() bool {
	return id.Role == RoleAdmin || id.Role == RoleManager
}

// CanDelegate reports whether the role may create tasks for other users.
func (id Identity) CanDelegate() bool {
	return id.Role == RoleAdmin || id.Role == RoleManager
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}
