package auth

import "github.com/fleetwatch/fleetwatch/internal/domain"

// Principal is the sum type a resolved request carries: either an
// operator authenticated via bearer token, or an agent authenticated
// via API key. Exactly the two types below implement Principal; there
// is no zero-value Principal that resolves to "none".
type Principal interface {
	principal()
	// RoleOrScope reports the bearer-token role for a UserPrincipal, or
	// domain.RoleService for a ServicePrincipal (whose capabilities come
	// from its scope list instead).
	RoleOrScope() domain.Role
}

// UserPrincipal is an operator identified by bearer token.
type UserPrincipal struct {
	UserID        int64
	Username      string
	Role          domain.Role
	SecurityStamp string
}

func (UserPrincipal) principal() {}

func (p UserPrincipal) RoleOrScope() domain.Role { return p.Role }

// ServicePrincipal is an agent identified by API key, scoped to the
// key's own Scope list (e.g. "logs:write") rather than a Role.
type ServicePrincipal struct {
	APIKeyID   int64
	Name       string
	Scope      []string
	ServerName string
}

func (ServicePrincipal) principal() {}

func (ServicePrincipal) RoleOrScope() domain.Role { return domain.RoleService }

// HasScope reports whether a ServicePrincipal carries the named scope.
func (p ServicePrincipal) HasScope(scope string) bool {
	for _, s := range p.Scope {
		if s == scope {
			return true
		}
	}
	return false
}
