package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// txRow is the JSON representation of a transaction in the txn list and idempotency hash.
type txRow struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Timestamp      int64  `json:"ts"` // unix millis
}

func encodeTx(tx token.Transaction) (string, error) {
	b, err := json.Marshal(txRow{
		ID:             tx.ID(),
		Amount:         tx.Amount(),
		Description:    tx.Description(),
		IdempotencyKey: tx.IdempotencyKey(),
		Timestamp:      tx.Timestamp().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return string(b), nil
}

func decodeTx(s string) (token.Transaction, error) {
	var row txRow
	if err := json.Unmarshal([]byte(s), &row); err != nil {
		return token.Transaction{}, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return token.NewTransaction(row.ID, row.Amount, row.Description, row.IdempotencyKey, time.UnixMilli(row.Timestamp)), nil
}

// tokenToHash converts a Token to a map for HSET.
func tokenToHash(t token.Token) map[string]string {
	return map[string]string{
		"id":              t.ID(),
		"owner_identity":  t.OwnerIdentity(),
		"issuer_ref":      t.IssuerRef(),
		"total_allocated": strconv.FormatInt(t.TotalAllocated(), 10),
		"remaining":       strconv.FormatInt(t.Remaining(), 10),
		"created_at":      strconv.FormatInt(t.CreatedAt().UnixMilli(), 10),
		"expires_at":      strconv.FormatInt(t.ExpiresAt().UnixMilli(), 10),
	}
}

// tokenFromHash hydrates a Token from an HGETALL result and the txn list.
func tokenFromHash(m map[string]string, txRows []string) (token.Token, error) {
	ints := make(map[string]int64, 4)
	for _, f := range []string{"total_allocated", "remaining", "created_at", "expires_at"} {
		v, err := strconv.ParseInt(m[f], 10, 64)
		if err != nil {
			return token.Token{}, fmt.Errorf("invalid %s: %w", f, err)
		}
		ints[f] = v
	}

	txns := make([]token.Transaction, 0, len(txRows))
	for _, row := range txRows {
		tx, err := decodeTx(row)
		if err != nil {
			return token.Token{}, err
		}
		txns = append(txns, tx)
	}

	return token.Reconstruct(
		m["id"], m["owner_identity"], m["issuer_ref"],
		ints["total_allocated"], ints["remaining"],
		time.UnixMilli(ints["created_at"]), time.UnixMilli(ints["expires_at"]),
		txns,
	), nil
}
