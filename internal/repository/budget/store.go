package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/agentpay/internal/db"
)

// keyPrefix namespaces issuance counters in the KV store.
const keyPrefix = "agentpay:issued:"

// store is the consumer interface for issuance counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store persists per-owner issued-budget counters, one key per day and per month.
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store.
// dailyTTL is the TTL for daily keys (recommended: 48h).
// monthTTL is the TTL for monthly keys (recommended: 62 days).
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// AddIssued adds delta to the owner's counters for the day and month containing at.
func (s *Store) AddIssued(ctx context.Context, owner string, at time.Time, delta int64) error {
	at = at.UTC()
	if err := s.incr(ctx, DailyKey(owner, at), delta, s.dailyTTL); err != nil {
		return err
	}
	return s.incr(ctx, MonthlyKey(owner, at), delta, s.monthTTL)
}

// Issued returns the owner's counters for the day and month containing at.
// Missing keys count as zero.
func (s *Store) Issued(ctx context.Context, owner string, at time.Time) (daily, monthly int64, err error) {
	at = at.UTC()
	if daily, err = s.get(ctx, DailyKey(owner, at)); err != nil {
		return 0, 0, err
	}
	if monthly, err = s.get(ctx, MonthlyKey(owner, at)); err != nil {
		return 0, 0, err
	}
	return daily, monthly, nil
}

func (s *Store) incr(ctx context.Context, key string, delta int64, ttl time.Duration) error {
	if err := s.store.IncrBy(ctx, key, delta); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}
	// NX: the first write in a period fixes the expiry.
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

// DailyKey is the counter key for owner on the UTC day of t.
func DailyKey(owner string, t time.Time) string {
	return fmt.Sprintf("%s{%s}:daily:%s", keyPrefix, owner, t.UTC().Format("2006-01-02"))
}

// MonthlyKey is the counter key for owner in the UTC month of t.
func MonthlyKey(owner string, t time.Time) string {
	return fmt.Sprintf("%s{%s}:monthly:%s", keyPrefix, owner, t.UTC().Format("2006-01"))
}
