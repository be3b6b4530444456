package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeStream authorizes one media-stream connection.
	TokenTypeStream TokenType = "stream"
)

// Claims are the REST token claims. TenantID is required; every API read is
// scoped to it.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// StreamClaims bind a media-stream connection to the call that requested it.
// TenantID is set for outbound calls placed through the API and empty for
// inbound calls, whose tenant is resolved from the dialed number.
type StreamClaims struct {
	jwt.RegisteredClaims

	CallSID   string    `json:"call_sid"`
	TenantID  string    `json:"tenant_id,omitempty"`
	To        string    `json:"to,omitempty"`
	Direction string    `json:"direction,omitempty"`
	TokenType TokenType `json:"token_type"`
}
