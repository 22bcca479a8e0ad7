package ledger

import (
	"context"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// Repository persists tokens. Consume must be linearizable per token:
// the idempotency lookup, expiry and balance checks, the deduction and the
// history append happen as one step.
type Repository interface {
	Create(ctx context.Context, tok token.Token) error
	Get(ctx context.Context, id string) (token.Token, error)
	Consume(ctx context.Context, id string, tx token.Transaction, now time.Time) (payment.Record, error)
}
