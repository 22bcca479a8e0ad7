package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
	"github.com/kailas-cloud/agentpay/internal/id"
	"github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
)

// DefaultTTL is the token lifetime when none is requested.
const DefaultTTL = time.Hour

// Service is the token ledger.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// New creates a ledger Service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateToken issues a fresh token holding totalAllocated.
// A non-positive ttl falls back to DefaultTTL.
func (s *Service) CreateToken(
	ctx context.Context, totalAllocated int64, ownerIdentity string, ttl time.Duration, issuerRef string,
) (token.Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok, err := token.New(id.NewToken(), ownerIdentity, totalAllocated, s.now(), ttl)
	if err != nil {
		return token.Token{}, err
	}
	tok = tok.WithIssuerRef(issuerRef)

	if err := s.repo.Create(ctx, tok); err != nil {
		return token.Token{}, fmt.Errorf("create token: %w", err)
	}

	logger.FromContextOr(ctx, s.logger).Info("Token created",
		zap.String("token_id", tok.ID()),
		zap.Int64("budget", totalAllocated),
		zap.Time("expires_at", tok.ExpiresAt()),
	)
	return tok, nil
}

// GetBalance returns the spendable balance: 0 for unknown or expired tokens.
// Storage failures are returned; they are never reported as a zero balance.
func (s *Service) GetBalance(ctx context.Context, tokenID string) (int64, error) {
	tok, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return tok.Balance(s.now()), nil
}

// Get returns the token with its full transaction history.
func (s *Service) Get(ctx context.Context, tokenID string) (token.Token, error) {
	tok, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		return token.Token{}, wrapNotFound("get token", err)
	}
	return tok, nil
}

// Validate returns the token when it exists and has not expired.
func (s *Service) Validate(ctx context.Context, tokenID string) (token.Token, error) {
	tok, err := s.Get(ctx, tokenID)
	if err != nil {
		return token.Token{}, err
	}
	if tok.IsExpired(s.now()) {
		return token.Token{}, domain.ErrTokenExpired
	}
	return tok, nil
}

// Report returns the introspection aggregate for a token.
func (s *Service) Report(ctx context.Context, tokenID string) (token.Report, error) {
	tok, err := s.Get(ctx, tokenID)
	if err != nil {
		return token.Report{}, err
	}
	return tok.Report(s.now()), nil
}

// Consume charges amount against the token. A non-empty idempotencyKey that
// was already charged on this token returns the original record with
// Replayed set and charges nothing. Expired tokens fail with ErrTokenExpired
// before any replay is considered.
func (s *Service) Consume(ctx context.Context, c payment.Charge) (payment.Record, error) {
	if c.Amount < 0 {
		metrics.ChargesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return payment.Record{}, fmt.Errorf("%w: must not be negative, got %d", domain.ErrInvalidAmount, c.Amount)
	}
	if strings.TrimSpace(c.TokenID) == "" {
		metrics.ChargesTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return payment.Record{}, domain.ErrTokenNotFound
	}

	now := s.now()
	tx := token.NewTransaction(id.Transaction(), c.Amount, c.Description, c.IdempotencyKey, now)

	rec, err := s.repo.Consume(ctx, c.TokenID, tx, now)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues(chargeOutcome(err)).Inc()
		if errors.Is(err, domain.ErrTokenNotFound) ||
			errors.Is(err, domain.ErrTokenExpired) ||
			errors.Is(err, domain.ErrInsufficientBalance) {
			return payment.Record{}, err
		}
		return payment.Record{}, fmt.Errorf("consume: %w", err)
	}

	log := logger.FromContextOr(ctx, s.logger)
	if rec.Replayed {
		metrics.ChargesTotal.WithLabelValues(metrics.OutcomeReplayed).Inc()
		log.Info("Charge replayed",
			zap.String("token_id", c.TokenID),
			zap.String("transaction_id", rec.TransactionID),
			zap.String("idempotency_key", c.IdempotencyKey),
		)
		return rec, nil
	}

	metrics.ChargesTotal.WithLabelValues(metrics.OutcomeCharged).Inc()
	metrics.ChargedAmountTotal.Add(float64(rec.AmountCharged))
	log.Info("Charge committed",
		zap.String("token_id", c.TokenID),
		zap.String("transaction_id", rec.TransactionID),
		zap.Int64("amount", rec.AmountCharged),
		zap.Int64("remaining", rec.RemainingBalance),
	)
	return rec, nil
}

func chargeOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return metrics.OutcomeInsufficient
	case errors.Is(err, domain.ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, domain.ErrTokenNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, domain.ErrTokenNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
