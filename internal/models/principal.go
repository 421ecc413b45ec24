// internal/models/principal.go
package models

// RoleAdmin is the role that may read soft-deleted records.
const RoleAdmin = "admin"

// Principal is the authenticated caller identity forwarded by the API
// gateway. Edge authentication itself happens before requests reach the
// runtime; the runtime only consumes the resolved identity.
type Principal struct {
	Subject string
	Tenant  string
	Roles   []string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
