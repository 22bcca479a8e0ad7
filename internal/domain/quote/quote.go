package quote

import (
	"fmt"
	"time"
)

// Quote is a price quote issued with a "payment required" signal.
type Quote struct {
	id         string
	resourceID string
	price      int64
	expiresAt  time.Time
}

// New validates and creates a Quote.
func New(id, resourceID string, price int64, expiresAt time.Time) (Quote, error) {
	if id == "" {
		return Quote{}, fmt.Errorf("quote ID is required")
	}
	if resourceID == "" {
		return Quote{}, fmt.Errorf("quote resource ID is required")
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("quote price must be positive, got %d", price)
	}
	return Quote{id: id, resourceID: resourceID, price: price, expiresAt: expiresAt.UTC()}, nil
}

// Reconstruct creates a Quote without validation (wire hydration).
func Reconstruct(id, resourceID string, price int64, expiresAt time.Time) Quote {
	return Quote{id: id, resourceID: resourceID, price: price, expiresAt: expiresAt}
}

// ID returns the quote identifier.
func (q Quote) ID() string { return q.id }

// ResourceID returns the quoted resource.
func (q Quote) ResourceID() string { return q.resourceID }

// Price returns the quoted price.
func (q Quote) Price() int64 { return q.price }

// ExpiresAt returns when the quote stops being honoured.
func (q Quote) ExpiresAt() time.Time { return q.expiresAt }

// IsExpired reports whether now is at or past the expiry.
func (q Quote) IsExpired(now time.Time) bool { return !now.Before(q.expiresAt) }
