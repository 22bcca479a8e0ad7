package authority

import (
	"context"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// TokenLedger is the subset of the ledger the authority drives.
type TokenLedger interface {
	CreateToken(ctx context.Context, totalAllocated int64, ownerIdentity string, ttl time.Duration, issuerRef string) (token.Token, error)
	GetBalance(ctx context.Context, tokenID string) (int64, error)
	Report(ctx context.Context, tokenID string) (token.Report, error)
}

// IdentityVerifier confirms a principal and returns its spending limits.
type IdentityVerifier interface {
	Verify(ctx context.Context, ownerIdentity string) (bool, error)
	Limits(ctx context.Context, ownerIdentity string) (identity.Limits, error)
}

// Authorization is an external issuer's grant backing a token.
type Authorization struct {
	ID  string
	TTL time.Duration
}

// ExternalIssuer obtains an authorization from an upstream token issuer.
type ExternalIssuer interface {
	Issue(ctx context.Context) (Authorization, error)
}

// BudgetStore persists what each owner has been issued per day and month.
type BudgetStore interface {
	// AddIssued adds delta (negative on release) to the day and month containing at.
	AddIssued(ctx context.Context, owner string, at time.Time, delta int64) error
	// Issued returns the owner's totals for the day and month containing at.
	Issued(ctx context.Context, owner string, at time.Time) (daily, monthly int64, err error)
}
