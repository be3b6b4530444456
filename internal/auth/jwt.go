package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voice-bridge/internal/config"
)

type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	streamTTL  time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	streamTTL := cfg.StreamTokenTTL
	if streamTTL <= 0 {
		streamTTL = 2 * time.Minute
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		streamTTL:  streamTTL,
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

/* ===================== ISSUE TOKENS ===================== */

func (m *Manager) IssuePair(now time.Time, userID, tenantID, role string) (TokenPair, error) {
	access, err := m.issue(now, TokenTypeAccess, userID, tenantID, role, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := m.issue(
		now,
		TokenTypeRefresh,
		userID,
		tenantID,
		"", // refresh tokens DO NOT carry role
		m.refreshTTL,
	)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// StreamGrant is what a media-stream token carries.
type StreamGrant struct {
	CallSID   string
	TenantID  string
	To        string
	Direction string
}

// IssueStreamToken mints the short-lived token passed to the media stream as
// a custom parameter.
func (m *Manager) IssueStreamToken(now time.Time, g StreamGrant) (string, error) {
	if g.CallSID == "" {
		return "", errors.New("call_sid required for stream token")
	}
	claims := StreamClaims{
		RegisteredClaims: m.registered(now, m.streamTTL),
		CallSID:          g.CallSID,
		TenantID:         g.TenantID,
		To:               g.To,
		Direction:        g.Direction,
		TokenType:        TokenTypeStream,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

/* ===================== VERIFY TOKEN ===================== */

func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims
	if err := m.parse(tokenString, &claims, &claims.RegisteredClaims, now); err != nil {
		return Claims{}, err
	}

	// Custom claims validation
	if claims.TokenType != expected {
		return Claims{}, errors.New("token_type mismatch")
	}
	if claims.UserID == "" {
		return Claims{}, errors.New("user_id missing")
	}
	if claims.TenantID == "" {
		return Claims{}, errors.New("tenant_id missing")
	}

	// Role is required ONLY for access tokens
	if expected == TokenTypeAccess && claims.Role == "" {
		return Claims{}, errors.New("role missing in access token")
	}

	return claims, nil
}

// VerifyStreamToken checks a media-stream token and returns its grant.
func (m *Manager) VerifyStreamToken(tokenString string, now time.Time) (StreamGrant, error) {
	var claims StreamClaims
	if err := m.parse(tokenString, &claims, &claims.RegisteredClaims, now); err != nil {
		return StreamGrant{}, err
	}
	if claims.TokenType != TokenTypeStream {
		return StreamGrant{}, errors.New("token_type mismatch")
	}
	if claims.CallSID == "" {
		return StreamGrant{}, errors.New("call_sid missing")
	}
	return StreamGrant{
		CallSID:   claims.CallSID,
		TenantID:  claims.TenantID,
		To:        claims.To,
		Direction: claims.Direction,
	}, nil
}

func (m *Manager) parse(tokenString string, claims jwt.Claims, registered *jwt.RegisteredClaims, now time.Time) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	return jwt.NewValidator(opts...).Validate(*registered)
}

/* ===================== INTERNAL ISSUE ===================== */

func (m *Manager) issue(now time.Time, tokenType TokenType, userID, tenantID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: m.registered(now, ttl),
		UserID:           userID,
		TenantID:         tenantID,
		Role:             role,
		TokenType:        tokenType,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func (m *Manager) registered(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Audience:  audienceOrNil(m.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
