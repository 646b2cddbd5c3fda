// Package auth resolves a request's Principal (bearer-token user or
// API-key service) and enforces the role/scope capability table of
// spec.md §6, grounded on r3e-network-service_layer's
// internal/app/httpapi JWT validator and internal/auth supabase
// claims shape, generalized from Supabase-issued tokens to tokens this
// service mints itself.
package auth

import (
	"github.com/golang-jwt/jwt/v4"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// Claims is the JWT payload spec.md §6 specifies verbatim:
// {userId, username, role, securityStamp}.
type Claims struct {
	UserID        int64       `json:"userId"`
	Username      string      `json:"username"`
	Role          domain.Role `json:"role"`
	SecurityStamp string      `json:"securityStamp"`
	jwt.RegisteredClaims
}
