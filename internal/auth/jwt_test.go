package auth

import (
	"testing"
	"time"

	"voice-bridge/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		StreamTokenTTL:  2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" || claims.Role != "member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "w", "r")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestStreamToken_RoundTripAndExpiry(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.IssueStreamToken(now, StreamGrant{CallSID: "CA1", TenantID: "t1", To: "+15550000001", Direction: "outbound"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	g, err := m.VerifyStreamToken(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if g.CallSID != "CA1" || g.TenantID != "t1" || g.Direction != "outbound" {
		t.Fatalf("unexpected grant %+v", g)
	}
	if _, err := m.VerifyStreamToken(tok, now.Add(10*time.Minute)); err == nil {
		t.Fatalf("expected expired stream token to fail")
	}
	if _, err := m.IssueStreamToken(now, StreamGrant{}); err == nil {
		t.Fatalf("expected call sid to be required")
	}
}

func TestStreamAndAccessTokensAreNotInterchangeable(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	pair, _ := m.IssuePair(now, "u", "t1", "member")
	if _, err := m.VerifyStreamToken(pair.AccessToken, now); err == nil {
		t.Fatalf("access token accepted as stream token")
	}
	stream, _ := m.IssueStreamToken(now, StreamGrant{CallSID: "CA1"})
	if _, err := m.Verify(stream, TokenTypeAccess, now); err == nil {
		t.Fatalf("stream token accepted as access token")
	}
}
