package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	pg "github.com/kailas-cloud/agentpay/internal/db/postgres"
	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

// Repo stores tokens in Postgres. Consume locks the token row for the
// duration of the charge.
type Repo struct {
	pool *pg.Pool
}

// New creates a Postgres ledger store.
func New(pool *pg.Pool) *Repo {
	return &Repo{pool: pool}
}

// Create inserts a new token.
func (r *Repo) Create(ctx context.Context, tok token.Token) error {
	query := `
		INSERT INTO payment_tokens (
			id, owner_identity, issuer_ref, total_allocated, remaining, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		tok.ID(),
		tok.OwnerIdentity(),
		tok.IssuerRef(),
		tok.TotalAllocated(),
		tok.Remaining(),
		tok.CreatedAt(),
		tok.ExpiresAt(),
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return fmt.Errorf("token %s already exists", tok.ID())
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Get loads the token and its transactions in commit order.
func (r *Repo) Get(ctx context.Context, id string) (token.Token, error) {
	var (
		owner, issuerRef     string
		total, remaining     int64
		createdAt, expiresAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT owner_identity, issuer_ref, total_allocated, remaining, created_at, expires_at
		FROM payment_tokens
		WHERE id = $1
	`, id).Scan(&owner, &issuerRef, &total, &remaining, &createdAt, &expiresAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return token.Token{}, domain.ErrTokenNotFound
		}
		return token.Token{}, fmt.Errorf("select token: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, amount, description, COALESCE(idempotency_key, ''), created_at
		FROM token_transactions
		WHERE token_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return token.Token{}, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var txns []token.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return token.Token{}, err
		}
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return token.Token{}, fmt.Errorf("iterate transactions: %w", err)
	}

	return token.Reconstruct(id, owner, issuerRef, total, remaining, createdAt, expiresAt, txns), nil
}

// Consume charges the token inside a transaction holding the row lock.
func (r *Repo) Consume(ctx context.Context, id string, tx token.Transaction, now time.Time) (rec payment.Record, err error) {
	dbtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return payment.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = dbtx.Rollback(ctx)
		}
	}()

	var remaining int64
	var expiresAt time.Time
	err = dbtx.QueryRow(ctx,
		`SELECT remaining, expires_at FROM payment_tokens WHERE id = $1 FOR UPDATE`, id,
	).Scan(&remaining, &expiresAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return payment.Record{}, domain.ErrTokenNotFound
		}
		return payment.Record{}, fmt.Errorf("lock token: %w", err)
	}

	if !now.Before(expiresAt) {
		err = domain.ErrTokenExpired
		return payment.Record{}, err
	}

	if key := tx.IdempotencyKey(); key != "" {
		prev, found, lookupErr := findByKey(ctx, dbtx, id, key)
		if lookupErr != nil {
			return payment.Record{}, lookupErr
		}
		if found {
			if err = dbtx.Commit(ctx); err != nil {
				return payment.Record{}, fmt.Errorf("commit: %w", err)
			}
			return payment.NewRecord(id, prev, remaining, true), nil
		}
	}

	if tx.Amount() > remaining {
		err = domain.NewInsufficientBalance(tx.Amount(), remaining)
		return payment.Record{}, err
	}

	err = dbtx.QueryRow(ctx,
		`UPDATE payment_tokens SET remaining = remaining - $2 WHERE id = $1 RETURNING remaining`,
		id, tx.Amount(),
	).Scan(&remaining)
	if err != nil {
		return payment.Record{}, fmt.Errorf("deduct: %w", err)
	}

	var key *string
	if k := tx.IdempotencyKey(); k != "" {
		key = &k
	}
	_, err = dbtx.Exec(ctx, `
		INSERT INTO token_transactions (id, token_id, amount, description, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tx.ID(), id, tx.Amount(), tx.Description(), key, tx.Timestamp())
	if err != nil {
		return payment.Record{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err = dbtx.Commit(ctx); err != nil {
		return payment.Record{}, fmt.Errorf("commit: %w", err)
	}
	return payment.NewRecord(id, tx, remaining, false), nil
}

func findByKey(ctx context.Context, q pgx.Tx, tokenID, key string) (token.Transaction, bool, error) {
	row := q.QueryRow(ctx, `
		SELECT id, amount, description, COALESCE(idempotency_key, ''), created_at
		FROM token_transactions
		WHERE token_id = $1 AND idempotency_key = $2
	`, tokenID, key)
	tx, err := scanTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token.Transaction{}, false, nil
		}
		return token.Transaction{}, false, err
	}
	return tx, true, nil
}

func scanTx(row pgx.Row) (token.Transaction, error) {
	var (
		id, description, key string
		amount               int64
		ts                   time.Time
	)
	if err := row.Scan(&id, &amount, &description, &key, &ts); err != nil {
		return token.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return token.NewTransaction(id, amount, description, key, ts), nil
}
