package tenants

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]Config

	// Err, when set, is returned by every lookup.
	Err error
}

func NewMemoryStore(configs ...Config) *MemoryStore {
	s := &MemoryStore{tenants: map[string]Config{}}
	for _, c := range configs {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a tenant, as a dashboard save would.
func (s *MemoryStore) Put(c Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.PhoneNumber = NormalizePhone(c.PhoneNumber)
	s.tenants[c.TenantID] = c
}

func (s *MemoryStore) ByPhoneNumber(ctx context.Context, phoneNumber string) (Config, bool, error) {
	if s.Err != nil {
		return Config{}, false, s.Err
	}
	n := NormalizePhone(phoneNumber)
	if n == "" {
		return Config{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.tenants {
		if c.PhoneNumber == n {
			return c, true, nil
		}
	}
	return Config{}, false, nil
}

func (s *MemoryStore) ByID(ctx context.Context, tenantID string) (Config, bool, error) {
	if s.Err != nil {
		return Config{}, false, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.tenants[tenantID]
	return c, ok, nil
}
