package tenants

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tenants: not found")

// Store reads tenant configuration.
//
// Both lookups must return the complete field set of Config. Implementations
// must not narrow the selected columns for one path only.
// A missing tenant is (Config{}, false, nil), not an error.
type Store interface {
	ByPhoneNumber(ctx context.Context, phoneNumber string) (Config, bool, error)
	ByID(ctx context.Context, tenantID string) (Config, bool, error)
}
