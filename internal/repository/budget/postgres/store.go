package postgres

import (
	"context"
	"fmt"
	"time"

	pg "github.com/kailas-cloud/agentpay/internal/db/postgres"
)

const (
	periodDaily   = "daily"
	periodMonthly = "monthly"
)

// Store persists per-owner issued-budget counters in Postgres, one row per
// owner, period and UTC bucket (day, or first day of the month).
type Store struct {
	pool *pg.Pool
}

// New creates a Postgres budget store.
func New(pool *pg.Pool) *Store {
	return &Store{pool: pool}
}

// AddIssued adds delta to the owner's counters for the day and month containing at.
func (s *Store) AddIssued(ctx context.Context, owner string, at time.Time, delta int64) error {
	day, month := buckets(at)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owner_issuance (owner_identity, period, bucket, amount)
		VALUES ($1, $2, $3, $5), ($1, $4, $6, $5)
		ON CONFLICT (owner_identity, period, bucket)
		DO UPDATE SET amount = owner_issuance.amount + EXCLUDED.amount, updated_at = now()
	`, owner, periodDaily, day, periodMonthly, delta, month)
	if err != nil {
		return fmt.Errorf("upsert issuance for %s: %w", owner, err)
	}
	return nil
}

// Issued returns the owner's counters for the day and month containing at.
// Missing rows count as zero.
func (s *Store) Issued(ctx context.Context, owner string, at time.Time) (daily, monthly int64, err error) {
	day, month := buckets(at)
	rows, err := s.pool.Query(ctx, `
		SELECT period, amount
		FROM owner_issuance
		WHERE owner_identity = $1
		  AND ((period = $2 AND bucket = $3) OR (period = $4 AND bucket = $5))
	`, owner, periodDaily, day, periodMonthly, month)
	if err != nil {
		return 0, 0, fmt.Errorf("select issuance for %s: %w", owner, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			period string
			amount int64
		)
		if err := rows.Scan(&period, &amount); err != nil {
			return 0, 0, fmt.Errorf("scan issuance: %w", err)
		}
		switch period {
		case periodDaily:
			daily = amount
		case periodMonthly:
			monthly = amount
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate issuance: %w", err)
	}
	return daily, monthly, nil
}

// buckets returns the UTC day and month start containing t.
func buckets(t time.Time) (day, month time.Time) {
	t = t.UTC()
	day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}
