package payment

import (
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// Charge is a request to deduct an amount from a token.
type Charge struct {
	TokenID        string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// Record is the outcome of a committed (or replayed) charge.
// A replay reports the AmountCharged of the original transaction but moves no
// money. Callers summing records must count each TransactionID once; Spent
// does that.
type Record struct {
	TokenID          string
	TransactionID    string
	AmountCharged    int64
	RemainingBalance int64
	Timestamp        time.Time
	Success          bool
	Replayed         bool
}

// NewRecord builds a successful record from a committed transaction.
// replayed marks a record returned for an idempotency key that had already
// committed tx.
func NewRecord(tokenID string, tx token.Transaction, remaining int64, replayed bool) Record {
	if remaining < 0 {
		remaining = 0
	}
	return Record{
		TokenID:          tokenID,
		TransactionID:    tx.ID(),
		AmountCharged:    tx.Amount(),
		RemainingBalance: remaining,
		Timestamp:        tx.Timestamp(),
		Success:          true,
		Replayed:         replayed,
	}
}

// Spent sums AmountCharged over records, counting each transaction once.
// The first record seen for a transaction counts even when it is a replay,
// since the response carrying the original commit may have been lost.
func Spent(records []Record) int64 {
	seen := make(map[string]struct{}, len(records))
	var total int64
	for _, rec := range records {
		if rec.TransactionID != "" {
			if _, ok := seen[rec.TransactionID]; ok {
				continue
			}
			seen[rec.TransactionID] = struct{}{}
		} else if rec.Replayed {
			continue
		}
		total += rec.AmountCharged
	}
	return total
}
