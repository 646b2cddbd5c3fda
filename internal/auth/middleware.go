package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
)

type ctxKey int

const principalCtxKey ctxKey = iota

// FromContext returns the Principal attached by Middleware, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok
}

// Authenticator resolves a Principal from an incoming request's bearer
// token or API key, grounded on
// r3e-network-service_layer/internal/app/httpapi's wrapWithAuth: a
// token lookup followed by a JWT fallback, adapted here to the two
// credential shapes spec.md §6 actually specifies (no opaque static
// token set, no tenant headers — just bearer JWT and API key).
type Authenticator struct {
	issuer *TokenIssuer
	store  AuthStore
	clock  clock.Clock
}

// AuthStore is what Authenticator needs from internal/store.Store.
type AuthStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)
}

func NewAuthenticator(issuer *TokenIssuer, store AuthStore, clk clock.Clock) *Authenticator {
	return &Authenticator{issuer: issuer, store: store, clock: clk}
}

// Authenticate resolves the Principal for r and stores it on the
// request context, or returns an apperr.CodeUnauthorized error if no
// valid credential is presented.
func (a *Authenticator) Authenticate(r *http.Request) (*http.Request, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		principal, err := a.resolveAPIKey(r.Context(), key)
		if err != nil {
			return r, err
		}
		return r.WithContext(context.WithValue(r.Context(), principalCtxKey, principal)), nil
	}

	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		principal, err := a.resolveBearer(r.Context(), token)
		if err != nil {
			return r, err
		}
		return r.WithContext(context.WithValue(r.Context(), principalCtxKey, principal)), nil
	}

	return r, apperr.Unauthorized("missing bearer token or API key")
}

func (a *Authenticator) resolveBearer(ctx context.Context, token string) (Principal, error) {
	claims, err := a.issuer.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	user, err := a.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.Unauthorized("account not found or inactive")
	}
	if user.SecurityStamp != claims.SecurityStamp {
		return nil, apperr.Unauthorized("token invalidated by credential change")
	}
	return UserPrincipal{
		UserID:        user.ID,
		Username:      user.Username,
		Role:          user.Role,
		SecurityStamp: user.SecurityStamp,
	}, nil
}

func (a *Authenticator) resolveAPIKey(ctx context.Context, key string) (Principal, error) {
	hash := HashToken(key)
	rec, err := a.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if rec == nil || !rec.IsActive || rec.RevokedAt != nil {
		return nil, apperr.Unauthorized("unknown or revoked API key")
	}
	return ServicePrincipal{
		APIKeyID:   rec.ID,
		Name:       rec.Name,
		Scope:      rec.Scope,
		ServerName: rec.ServerName,
	}, nil
}

// Middleware wraps next, rejecting any request that fails
// Authenticate with the mapped apperr HTTP status.
func Middleware(authr *Authenticator, writeErr func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authed, err := authr.Authenticate(r)
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, authed)
		})
	}
}

// RequireCapability wraps next, rejecting a request whose resolved
// Principal lacks cap with apperr.CodeForbidden.
func RequireCapability(cap Capability, writeErr func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := FromContext(r.Context())
			if !ok {
				writeErr(w, apperr.Unauthorized("no principal on request"))
				return
			}
			if !Allow(principal, cap) {
				writeErr(w, apperr.Forbidden("principal lacks capability %q", cap))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
