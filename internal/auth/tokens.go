package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
)

const (
	// DefaultAccessTokenTTL is how long a minted bearer token is valid.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL is how long a refresh token may redeem a
	// new access token before it must be re-issued by login.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenIssuer mints and validates the bearer access tokens spec.md §6
// describes: stateless JWTs HMAC-signed with a server-held secret,
// carrying {userId, username, role, securityStamp}.
type TokenIssuer struct {
	secret    []byte
	clock     clock.Clock
	accessTTL time.Duration
}

func NewTokenIssuer(secret string, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), clock: clk, accessTTL: DefaultAccessTokenTTL}
}

// IssueAccessToken mints a signed JWT for the given user.
func (t *TokenIssuer) IssueAccessToken(u *domain.User) (string, error) {
	if len(t.secret) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := t.clock.NowUTC()
	claims := Claims{
		UserID:        u.ID,
		Username:      u.Username,
		Role:          u.Role,
		SecurityStamp: u.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			Subject:   u.Username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates a bearer token's signature and expiry and
// returns its claims. Signature/expiry failures are reported as
// apperr.CodeUnauthorized, matching spec.md §7's taxonomy.
func (t *TokenIssuer) ParseAccessToken(raw string) (*Claims, error) {
	if len(t.secret) == 0 {
		return nil, apperr.Unauthorized("jwt secret not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, apperr.Unauthorized("invalid access token").Wrap(err)
	}
	if !parsed.Valid {
		return nil, apperr.Unauthorized("invalid access token")
	}
	return claims, nil
}

// NewRefreshToken mints a random opaque refresh token (returned to the
// caller once) and its SHA-256 hash (what gets persisted). Mirrors the
// API-key pattern: a plaintext secret is never stored, only its hash.
func NewRefreshToken(userID int64, now time.Time, ttl time.Duration) (plaintext string, record *domain.RefreshToken, err error) {
	plaintext, err = randomToken(32)
	if err != nil {
		return "", nil, err
	}
	record = &domain.RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(plaintext),
		ExpiresAt: now.Add(ttl),
	}
	return plaintext, record, nil
}

// HashToken returns the hex-encoded SHA-256 digest used to match a
// presented API key or refresh token against its stored hash, exactly
// as spec.md §6 specifies for API keys.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
