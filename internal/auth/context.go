package auth

import (
	"context"
	"errors"
)

var ErrNoIdentity = errors.New("auth: no identity in context")

// Identity is the verified caller of an API request.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// TenantID is the tenant every API read and write is scoped to.
func TenantID(ctx context.Context) (string, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.TenantID == "" {
		return "", ErrNoIdentity
	}
	return id.TenantID, nil
}
