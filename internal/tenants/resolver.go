package tenants

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"voice-bridge/pkg/logger"
)

// Lookup carries the routing hints available at call start.
// TenantID is set for outbound calls placed by the dialer; inbound calls only
// carry the dialed number.
type Lookup struct {
	TenantID     string
	CalledNumber string
}

// Resolver maps an inbound call to a tenant configuration.
//
// Resolution never fails: no match, a blank number or a store error all yield
// DefaultConfig. The fallback path logs at WARN with tenant_resolution=fallback
// so it can be told apart from real failures.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, in Lookup) Config {
	log := logger.From(ctx)

	if r == nil || r.store == nil {
		return fallback(log, in, "store_not_configured", nil)
	}

	if id := strings.TrimSpace(in.TenantID); id != "" {
		c, ok, err := r.store.ByID(ctx, id)
		switch {
		case err != nil:
			return fallback(log, in, "store_error", err)
		case ok:
			log.Info("tenant resolved", "tenant_resolution", "by_id", "tenant_id", c.TenantID)
			return c
		}
		// An unknown explicit id still gets a chance by number.
	}

	number := NormalizePhone(in.CalledNumber)
	if number == "" {
		return fallback(log, in, "no_called_number", nil)
	}
	c, ok, err := r.store.ByPhoneNumber(ctx, number)
	if err != nil {
		return fallback(log, in, "store_error", err)
	}
	if !ok {
		return fallback(log, in, "no_match", nil)
	}
	log.Info("tenant resolved", "tenant_resolution", "by_number", "tenant_id", c.TenantID, "called_number", number)
	return c
}

// ByID re-reads a known tenant. Unlike Resolve it reports absence and errors.
func (r *Resolver) ByID(ctx context.Context, tenantID string) (Config, error) {
	if r == nil || r.store == nil {
		return Config{}, ErrNotFound
	}
	c, ok, err := r.store.ByID(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotFound
	}
	return c, nil
}

func fallback(log *slog.Logger, in Lookup, reason string, err error) Config {
	attrs := []any{
		"tenant_resolution", "fallback",
		"reason", reason,
		"called_number", in.CalledNumber,
		"requested_tenant_id", in.TenantID,
	}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	log.Warn("tenant fallback config used", attrs...)
	return DefaultConfig()
}

// CallResolver memoizes resolution for a single call.
//
// The first Resolve pins the tenant; later calls return that tenant even if
// storage changed in between. Refresh re-reads the pinned tenant's fields once
// (at model configuration) without changing which tenant the call belongs to.
// Never share a CallResolver across calls.
type CallResolver struct {
	resolver *Resolver

	mu       sync.Mutex
	resolved bool
	cfg      Config
}

func (r *Resolver) ForCall() *CallResolver {
	return &CallResolver{resolver: r}
}

func (c *CallResolver) Resolve(ctx context.Context, in Lookup) Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return c.cfg
	}
	c.cfg = c.resolver.Resolve(ctx, in)
	c.resolved = true
	return c.cfg
}

// Refresh returns the pinned tenant's latest configuration. The fallback
// config is never refreshed. On any read error the current snapshot is kept.
func (c *CallResolver) Refresh(ctx context.Context) Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved || c.cfg.Fallback {
		return c.cfg
	}
	fresh, err := c.resolver.ByID(ctx, c.cfg.TenantID)
	if err != nil {
		logger.From(ctx).Warn("tenant refresh failed; keeping call-start snapshot", "tenant_id", c.cfg.TenantID, "err", err)
		return c.cfg
	}
	c.cfg = fresh
	return c.cfg
}

// Current returns the pinned configuration (zero Config before Resolve).
func (c *CallResolver) Current() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}
