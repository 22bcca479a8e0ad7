// Package identity verifies token owners and looks up their spending limits,
// either from the identity service or from a static table.
package identity

import (
	"context"

	"github.com/kailas-cloud/agentpay/internal/domain/identity"
)

// Static is a fixed owner table. Owners not in the table are not verified
// unless a default is set.
type Static struct {
	owners   map[string]identity.Limits
	fallback *identity.Limits
}

// NewStatic creates a verifier over owners.
func NewStatic(owners map[string]identity.Limits) *Static {
	m := make(map[string]identity.Limits, len(owners))
	for k, v := range owners {
		m[k] = v
	}
	return &Static{owners: m}
}

// WithDefault verifies every owner, applying limits to those not in the table.
func (s *Static) WithDefault(limits identity.Limits) *Static {
	s.fallback = &limits
	return s
}

// Verify reports whether owner is known.
func (s *Static) Verify(_ context.Context, owner string) (bool, error) {
	if owner == "" {
		return false, nil
	}
	_, ok := s.owners[owner]
	return ok || s.fallback != nil, nil
}

// Limits returns the owner's limits.
func (s *Static) Limits(_ context.Context, owner string) (identity.Limits, error) {
	if l, ok := s.owners[owner]; ok {
		return l, nil
	}
	if s.fallback != nil {
		return *s.fallback, nil
	}
	return identity.Limits{}, nil
}
