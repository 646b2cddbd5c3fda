package auth

import (
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
)

func testUser() *domain.User {
	return &domain.User{
		ID:            7,
		Username:      "alice",
		Role:          domain.RoleOperator,
		SecurityStamp: "stamp-1",
		IsActive:      true,
	}
}

func TestIssueAndParseAccessToken(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := NewTokenIssuer("test-secret", clk)

	token, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" || claims.Role != domain.RoleOperator {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.SecurityStamp != "stamp-1" {
		t.Errorf("expected security stamp to round-trip, got %q", claims.SecurityStamp)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := NewTokenIssuer("test-secret", clk)

	token, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	clk.Advance(DefaultAccessTokenTTL + time.Minute)

	if _, err := issuer.ParseAccessToken(token); err == nil {
		t.Error("expected expired token to fail validation")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := NewTokenIssuer("secret-a", clk)
	other := NewTokenIssuer("secret-b", clk)

	token, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := other.ParseAccessToken(token); err == nil {
		t.Error("expected token signed with a different secret to fail validation")
	}
}

func TestNewRefreshTokenHashesSecretAtRest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plaintext, record, err := NewRefreshToken(7, now, DefaultRefreshTokenTTL)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if record.TokenHash == plaintext {
		t.Error("expected stored hash to differ from plaintext token")
	}
	if record.TokenHash != HashToken(plaintext) {
		t.Error("stored hash does not match HashToken(plaintext)")
	}
	if !record.ExpiresAt.Equal(now.Add(DefaultRefreshTokenTTL)) {
		t.Errorf("expected expiry %v, got %v", now.Add(DefaultRefreshTokenTTL), record.ExpiresAt)
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("same-input") != HashToken("same-input") {
		t.Error("expected HashToken to be deterministic")
	}
	if HashToken("a") == HashToken("b") {
		t.Error("expected different inputs to hash differently")
	}
}
