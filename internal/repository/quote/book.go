package quote

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
)

// Book keeps issued price quotes until they expire.
type Book struct {
	mu     sync.Mutex
	quotes map[string]quote.Quote
	now    func() time.Time
}

// New creates an empty quote book.
func New() *Book {
	return &Book{quotes: make(map[string]quote.Quote), now: time.Now}
}

// WithClock overrides the time source (tests).
func (b *Book) WithClock(now func() time.Time) *Book {
	b.now = now
	return b
}

// Put registers a quote and drops expired ones.
func (b *Book) Put(_ context.Context, q quote.Quote) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, old := range b.quotes {
		if old.IsExpired(now) {
			delete(b.quotes, id)
		}
	}
	b.quotes[q.ID()] = q
	return nil
}

// Get returns a live quote.
func (b *Book) Get(_ context.Context, id string) (quote.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.quotes[id]
	if !ok {
		return quote.Quote{}, domain.ErrQuoteNotFound
	}
	if q.IsExpired(b.now()) {
		delete(b.quotes, id)
		return quote.Quote{}, domain.ErrQuoteNotFound
	}
	return q, nil
}

// Len returns the number of stored quotes, expired ones included.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.quotes)
}
