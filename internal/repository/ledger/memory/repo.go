package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// entry serializes all mutations of a single token.
type entry struct {
	mu  sync.Mutex
	tok token.Token
}

// Repo is an in-process ledger store. Each token has its own lock,
// so charges on different tokens never contend.
type Repo struct {
	mu     sync.RWMutex
	tokens map[string]*entry
}

// New creates an empty in-memory ledger store.
func New() *Repo {
	return &Repo{tokens: make(map[string]*entry)}
}

// Create stores a new token.
func (r *Repo) Create(_ context.Context, tok token.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[tok.ID()]; ok {
		return fmt.Errorf("token %s already exists", tok.ID())
	}
	r.tokens[tok.ID()] = &entry{tok: tok}
	return nil
}

// Get returns a snapshot of the token.
func (r *Repo) Get(_ context.Context, id string) (token.Token, error) {
	e, ok := r.lookup(id)
	if !ok {
		return token.Token{}, domain.ErrTokenNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.tok), nil
}

// Consume applies tx under the token's lock.
func (r *Repo) Consume(_ context.Context, id string, tx token.Transaction, now time.Time) (payment.Record, error) {
	e, ok := r.lookup(id)
	if !ok {
		return payment.Record{}, domain.ErrTokenNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	committed, replayed, err := e.tok.Consume(tx, now)
	if err != nil {
		return payment.Record{}, err
	}
	return payment.NewRecord(id, committed, e.tok.Remaining(), replayed), nil
}

// Len returns the number of stored tokens.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

func (r *Repo) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tokens[id]
	return e, ok
}

// snapshot detaches the transaction history from the stored token.
func snapshot(t token.Token) token.Token {
	return token.Reconstruct(
		t.ID(), t.OwnerIdentity(), t.IssuerRef(),
		t.TotalAllocated(), t.Remaining(),
		t.CreatedAt(), t.ExpiresAt(),
		t.Transactions(),
	)
}
