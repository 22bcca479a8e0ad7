package authority

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/identity"
)

// ownerCounters holds one owner's issued budget for the current day and month.
type ownerCounters struct {
	daily          int64
	monthly        int64
	lastDayReset   time.Time
	lastMonthReset time.Time
}

// IssuanceLimiter tracks budget issued per owner against daily and monthly limits.
// Checks are in-memory; reservations are written behind to the store when attached.
// Counters for an owner are loaded from the store on first use.
type IssuanceLimiter struct {
	mu     sync.Mutex
	owners map[string]*ownerCounters
	store  BudgetStore
	logger *zap.Logger
	now    func() time.Time
}

// NewIssuanceLimiter creates an in-memory limiter.
func NewIssuanceLimiter(logger *zap.Logger) *IssuanceLimiter {
	return &IssuanceLimiter{
		owners: make(map[string]*ownerCounters),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithStore attaches a persistence store.
func (l *IssuanceLimiter) WithStore(store BudgetStore) *IssuanceLimiter {
	l.store = store
	return l
}

// WithClock overrides the time source (tests).
func (l *IssuanceLimiter) WithClock(now func() time.Time) *IssuanceLimiter {
	l.now = func() time.Time { return now().UTC() }
	return l
}

// Issued returns what the owner has been issued today and this month.
func (l *IssuanceLimiter) Issued(ctx context.Context, owner string) (daily, monthly int64) {
	l.ensureLoaded(ctx, owner)

	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.countersLocked(owner)
	return c.daily, c.monthly
}

// Reserve checks amount against limits and, if allowed, counts it as issued.
// Returns a BudgetLimitError carrying the allowed maximum otherwise.
func (l *IssuanceLimiter) Reserve(ctx context.Context, owner string, amount int64, limits identity.Limits) error {
	l.ensureLoaded(ctx, owner)

	l.mu.Lock()
	c := l.countersLocked(owner)
	allowed := limits.MaxBudget(c.daily, c.monthly)
	if allowed >= 0 && amount > allowed {
		l.mu.Unlock()
		return domain.NewBudgetLimitExceeded(allowed)
	}
	c.daily += amount
	c.monthly += amount
	l.mu.Unlock()

	l.persist(owner, amount)
	return nil
}

// Release returns a reservation whose token was never created.
func (l *IssuanceLimiter) Release(owner string, amount int64) {
	l.mu.Lock()
	c := l.countersLocked(owner)
	c.daily -= amount
	c.monthly -= amount
	if c.daily < 0 {
		c.daily = 0
	}
	if c.monthly < 0 {
		c.monthly = 0
	}
	l.mu.Unlock()

	l.persist(owner, -amount)
}

// persist writes the delta behind to the store with its own short deadline.
func (l *IssuanceLimiter) persist(owner string, delta int64) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.store.AddIssued(ctx, owner, l.now(), delta); err != nil {
		l.logger.Warn("Failed to persist issuance",
			zap.String("owner", owner), zap.Int64("delta", delta), zap.Error(err))
	}
}

// ensureLoaded hydrates an owner's counters from the store once.
// A store failure starts the owner from zero.
func (l *IssuanceLimiter) ensureLoaded(ctx context.Context, owner string) {
	l.mu.Lock()
	_, known := l.owners[owner]
	l.mu.Unlock()
	if known || l.store == nil {
		return
	}

	now := l.now()
	daily, monthly, err := l.store.Issued(ctx, owner, now)
	if err != nil {
		l.logger.Warn("Failed to load issuance from store", zap.String("owner", owner), zap.Error(err))
		daily, monthly = 0, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.owners[owner]; ok {
		return
	}
	l.owners[owner] = &ownerCounters{
		daily:          daily,
		monthly:        monthly,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
	}
}

// countersLocked returns the owner's counters, rolled over if the day or month changed.
func (l *IssuanceLimiter) countersLocked(owner string) *ownerCounters {
	now := l.now()
	c, ok := l.owners[owner]
	if !ok {
		c = &ownerCounters{lastDayReset: truncateToDay(now), lastMonthReset: truncateToMonth(now)}
		l.owners[owner] = c
	}

	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)
	if today.After(c.lastDayReset) {
		c.daily = 0
		c.lastDayReset = today
	}
	if thisMonth.After(c.lastMonthReset) {
		c.monthly = 0
		c.lastMonthReset = thisMonth
	}
	return c
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
