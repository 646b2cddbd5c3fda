package domain

import "time"

// Role is a principal's position in the role->capability table of spec.md §6.
type Role string

const (
	RoleViewer        Role = "Viewer"
	RoleOperator      Role = "Operator"
	RoleAdministrator Role = "Administrator"
	RoleService       Role = "Service"
)

// User is an operator-facing account. Password hashing and credential
// verification are out of scope (spec.md §1) — this module only carries
// the claims a bearer token needs to mint.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Role           Role      `json:"role"`
	SecurityStamp  string    `json:"securityStamp"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// APIKey is a scoped, hashed credential used by agents (spec.md §6).
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Scope      []string   `json:"scope"`
	ServerName string     `json:"serverName,omitempty"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

// HasScope reports whether the key carries the named scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// AuditLog records a capability-bearing action for compliance review.
// Named by spec.md §4.F retention ("AuditLog older than 180 days") but
// not otherwise defined by the distilled spec — supplied by SPEC_FULL.md §3.
type AuditLog struct {
	ID         int64     `json:"id"`
	ActorID    string    `json:"actorId"`
	Action     string    `json:"action"`
	TargetType string    `json:"targetType,omitempty"`
	TargetID   string    `json:"targetId,omitempty"`
	Detail     []byte    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RefreshToken backs session renewal. Named by spec.md §4.F retention
// ("expired refresh tokens... deleted") but not otherwise defined —
// supplied by SPEC_FULL.md §3.
type RefreshToken struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}
