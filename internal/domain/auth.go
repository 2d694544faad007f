package domain

// Role identifies what an authenticated caller may do. Admins own the
// configuration and reporting surfaces; the external ticket system
// authenticates as a service to push lifecycle events.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleService Role = "SERVICE"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleService
}
