package token

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
)

// Transaction is a single committed charge against a token (immutable value object).
type Transaction struct {
	id             string
	amount         int64
	description    string
	idempotencyKey string
	timestamp      time.Time
}

// NewTransaction creates a Transaction.
func NewTransaction(id string, amount int64, description, idempotencyKey string, ts time.Time) Transaction {
	return Transaction{
		id:             id,
		amount:         amount,
		description:    description,
		idempotencyKey: idempotencyKey,
		timestamp:      ts.UTC(),
	}
}

// ID returns the transaction identifier.
func (t Transaction) ID() string { return t.id }

// Amount returns the charged amount.
func (t Transaction) Amount() int64 { return t.amount }

// Description returns the human-readable charge description.
func (t Transaction) Description() string { return t.description }

// IdempotencyKey returns the key the charge was made under (may be empty).
func (t Transaction) IdempotencyKey() string { return t.idempotencyKey }

// Timestamp returns the commit time.
func (t Transaction) Timestamp() time.Time { return t.timestamp }

// Token is a budget-bounded spending authorization.
// remaining is only changed through Consume; totalAllocated never changes.
type Token struct {
	id             string
	ownerIdentity  string
	issuerRef      string
	totalAllocated int64
	remaining      int64
	createdAt      time.Time
	expiresAt      time.Time
	transactions   []Transaction
}

// New validates and creates a fresh Token with its full budget available.
func New(id, ownerIdentity string, totalAllocated int64, createdAt time.Time, ttl time.Duration) (Token, error) {
	if totalAllocated <= 0 {
		return Token{}, fmt.Errorf("%w: must be positive, got %d", domain.ErrInvalidBudget, totalAllocated)
	}
	if id == "" {
		return Token{}, fmt.Errorf("token ID is required")
	}
	if ttl <= 0 {
		return Token{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	createdAt = createdAt.UTC()
	return Token{
		id:             id,
		ownerIdentity:  ownerIdentity,
		totalAllocated: totalAllocated,
		remaining:      totalAllocated,
		createdAt:      createdAt,
		expiresAt:      createdAt.Add(ttl),
	}, nil
}

// Reconstruct creates a Token without validation (storage hydration).
func Reconstruct(
	id, ownerIdentity, issuerRef string,
	totalAllocated, remaining int64,
	createdAt, expiresAt time.Time,
	transactions []Transaction,
) Token {
	return Token{
		id:             id,
		ownerIdentity:  ownerIdentity,
		issuerRef:      issuerRef,
		totalAllocated: totalAllocated,
		remaining:      remaining,
		createdAt:      createdAt.UTC(),
		expiresAt:      expiresAt.UTC(),
		transactions:   transactions,
	}
}

// WithIssuerRef returns a copy carrying the external issuer's reference.
func (t Token) WithIssuerRef(ref string) Token {
	t.issuerRef = ref
	return t
}

// ID returns the token identifier.
func (t Token) ID() string { return t.id }

// OwnerIdentity returns the opaque principal the token was issued to.
func (t Token) OwnerIdentity() string { return t.ownerIdentity }

// IssuerRef returns the external issuer reference, if any.
func (t Token) IssuerRef() string { return t.issuerRef }

// TotalAllocated returns the budget fixed at creation.
func (t Token) TotalAllocated() int64 { return t.totalAllocated }

// Remaining returns the unspent balance regardless of expiry.
func (t Token) Remaining() int64 { return t.remaining }

// Consumed returns the spent amount.
func (t Token) Consumed() int64 { return t.totalAllocated - t.remaining }

// CreatedAt returns the issuance time.
func (t Token) CreatedAt() time.Time { return t.createdAt }

// ExpiresAt returns the expiry time.
func (t Token) ExpiresAt() time.Time { return t.expiresAt }

// IsExpired reports whether now is at or past the expiry.
func (t Token) IsExpired(now time.Time) bool { return !now.Before(t.expiresAt) }

// Balance returns the spendable balance at now: 0 once expired.
func (t Token) Balance(now time.Time) int64 {
	if t.IsExpired(now) || t.remaining < 0 {
		return 0
	}
	return t.remaining
}

// TTL returns the time left until expiry (0 when expired).
func (t Token) TTL(now time.Time) time.Duration {
	if t.IsExpired(now) {
		return 0
	}
	return t.expiresAt.Sub(now)
}

// Transactions returns a copy of the charge history in commit order.
func (t Token) Transactions() []Transaction {
	out := make([]Transaction, len(t.transactions))
	copy(out, t.transactions)
	return out
}

// FindByKey returns the transaction committed under key, if any.
func (t Token) FindByKey(key string) (Transaction, bool) {
	if key == "" {
		return Transaction{}, false
	}
	for _, tx := range t.transactions {
		if tx.idempotencyKey == key {
			return tx, true
		}
	}
	return Transaction{}, false
}

// Consume applies a charge in place. The caller must hold the token's lock.
// An expired token rejects every charge, replays included. A charge whose key
// was already committed is returned with replayed=true and changes nothing;
// the replay check precedes the balance check.
func (t *Token) Consume(tx Transaction, now time.Time) (committed Transaction, replayed bool, err error) {
	if tx.amount < 0 {
		return Transaction{}, false, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, tx.amount)
	}
	if t.IsExpired(now) {
		return Transaction{}, false, domain.ErrTokenExpired
	}
	if prev, ok := t.FindByKey(tx.idempotencyKey); ok {
		return prev, true, nil
	}
	if tx.amount > t.remaining {
		return Transaction{}, false, domain.NewInsufficientBalance(tx.amount, t.remaining)
	}

	t.remaining -= tx.amount
	t.transactions = append(t.transactions, tx)
	return tx, false, nil
}

// Report builds the read-only introspection aggregate.
func (t Token) Report(now time.Time) Report {
	r := Report{
		tokenID:          t.id,
		totalAllocated:   t.totalAllocated,
		remaining:        t.remaining,
		consumed:         t.Consumed(),
		transactionCount: len(t.transactions),
		expiresAt:        t.expiresAt,
		expired:          t.IsExpired(now),
	}
	if n := len(t.transactions); n > 0 {
		last := t.transactions[n-1]
		r.lastTransaction = &last
	}
	return r
}

// Report is a read-only token aggregate for introspection.
type Report struct {
	tokenID          string
	totalAllocated   int64
	remaining        int64
	consumed         int64
	transactionCount int
	lastTransaction  *Transaction
	expiresAt        time.Time
	expired          bool
}

// TokenID returns the token identifier.
func (r Report) TokenID() string { return r.tokenID }

// TotalAllocated returns the original budget.
func (r Report) TotalAllocated() int64 { return r.totalAllocated }

// Remaining returns the unspent balance.
func (r Report) Remaining() int64 { return r.remaining }

// Consumed returns the spent amount.
func (r Report) Consumed() int64 { return r.consumed }

// TransactionCount returns the number of committed charges.
func (r Report) TransactionCount() int { return r.transactionCount }

// LastTransaction returns the most recent charge, or nil.
func (r Report) LastTransaction() *Transaction { return r.lastTransaction }

// ExpiresAt returns the expiry time.
func (r Report) ExpiresAt() time.Time { return r.expiresAt }

// Expired reports whether the token was expired when the report was built.
func (r Report) Expired() bool { return r.expired }
