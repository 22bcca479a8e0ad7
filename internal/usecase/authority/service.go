package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
	"github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
	"github.com/kailas-cloud/agentpay/internal/retry"
)

// Issued is the outcome of a successful IssueToken.
type Issued struct {
	TokenID   string
	ExpiresIn int64 // seconds
	ExpiresAt time.Time
}

// Service is the token/budget authority.
type Service struct {
	ledger   TokenLedger
	verifier IdentityVerifier
	limiter  *IssuanceLimiter
	issuer   ExternalIssuer
	tokenTTL time.Duration
	policy   retry.Policy
	logger   *zap.Logger
}

// New creates an authority Service. limiter may be nil (transaction limit only).
func New(ledger TokenLedger, verifier IdentityVerifier, limiter *IssuanceLimiter, logger *zap.Logger) *Service {
	return &Service{
		ledger:   ledger,
		verifier: verifier,
		limiter:  limiter,
		tokenTTL: time.Hour,
		policy:   retry.DefaultPolicy(),
		logger:   logger,
	}
}

// WithIssuer attaches an external token issuer.
func (s *Service) WithIssuer(issuer ExternalIssuer) *Service {
	s.issuer = issuer
	return s
}

// WithTokenTTL sets the token lifetime.
func (s *Service) WithTokenTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
	return s
}

// WithRetryPolicy sets the policy for collaborator calls.
func (s *Service) WithRetryPolicy(p retry.Policy) *Service {
	s.policy = p
	return s
}

// IssueToken verifies the owner, enforces limits and creates a token.
// No token is created on any failure.
func (s *Service) IssueToken(ctx context.Context, requestedBudget int64, ownerIdentity string) (Issued, error) {
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("owner", ownerIdentity))

	if requestedBudget <= 0 {
		metrics.TokensIssuedTotal.WithLabelValues("invalid_budget").Inc()
		return Issued{}, fmt.Errorf("%w: must be positive, got %d", domain.ErrInvalidBudget, requestedBudget)
	}

	verified, err := retry.Do(ctx, s.policy, "identity_verify", func(ctx context.Context) (bool, error) {
		return s.verifier.Verify(ctx, ownerIdentity)
	})
	if err != nil {
		metrics.TokensIssuedTotal.WithLabelValues("upstream_error").Inc()
		return Issued{}, fmt.Errorf("verify identity: %w", err)
	}
	if !verified {
		metrics.TokensIssuedTotal.WithLabelValues("authentication_failed").Inc()
		log.Warn("Identity verification failed")
		return Issued{}, domain.ErrAuthenticationFailed
	}

	limits, err := retry.Do(ctx, s.policy, "identity_limits", func(ctx context.Context) (identity.Limits, error) {
		return s.verifier.Limits(ctx, ownerIdentity)
	})
	if err != nil {
		metrics.TokensIssuedTotal.WithLabelValues("upstream_error").Inc()
		return Issued{}, fmt.Errorf("get limits: %w", err)
	}

	if err := s.reserve(ctx, ownerIdentity, requestedBudget, limits); err != nil {
		metrics.TokensIssuedTotal.WithLabelValues("budget_limit_exceeded").Inc()
		log.Info("Requested budget above limit", zap.Int64("requested", requestedBudget), zap.Error(err))
		return Issued{}, err
	}

	tok, err := s.create(ctx, requestedBudget, ownerIdentity)
	if err != nil {
		s.release(ownerIdentity, requestedBudget)
		metrics.TokensIssuedTotal.WithLabelValues("error").Inc()
		return Issued{}, err
	}

	metrics.TokensIssuedTotal.WithLabelValues("issued").Inc()
	log.Info("Token issued",
		zap.String("token_id", tok.ID()),
		zap.Int64("budget", requestedBudget),
		zap.String("issuer_ref", tok.IssuerRef()),
	)

	ttl := tok.ExpiresAt().Sub(tok.CreatedAt())
	return Issued{
		TokenID:   tok.ID(),
		ExpiresIn: int64(ttl / time.Second),
		ExpiresAt: tok.ExpiresAt(),
	}, nil
}

// GetBalance passes through to the ledger.
func (s *Service) GetBalance(ctx context.Context, tokenID string) (int64, error) {
	return s.ledger.GetBalance(ctx, tokenID)
}

// Report passes through to the ledger.
func (s *Service) Report(ctx context.Context, tokenID string) (token.Report, error) {
	return s.ledger.Report(ctx, tokenID)
}

func (s *Service) create(ctx context.Context, budget int64, owner string) (token.Token, error) {
	ttl := s.tokenTTL
	var issuerRef string

	if s.issuer != nil {
		auth, err := retry.Do(ctx, s.policy, "issuer_token", s.issuer.Issue)
		if err != nil {
			return token.Token{}, fmt.Errorf("external issuer: %w", err)
		}
		if auth.TTL > 0 && auth.TTL < ttl {
			ttl = auth.TTL
		}
		issuerRef = auth.ID
	}

	tok, err := s.ledger.CreateToken(ctx, budget, owner, ttl, issuerRef)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidBudget) {
			return token.Token{}, err
		}
		return token.Token{}, fmt.Errorf("create token: %w", err)
	}
	return tok, nil
}

func (s *Service) reserve(ctx context.Context, owner string, amount int64, limits identity.Limits) error {
	if s.limiter == nil {
		if allowed := limits.MaxBudget(0, 0); allowed >= 0 && amount > allowed {
			return domain.NewBudgetLimitExceeded(allowed)
		}
		return nil
	}
	return s.limiter.Reserve(ctx, owner, amount, limits)
}

func (s *Service) release(owner string, amount int64) {
	if s.limiter != nil {
		s.limiter.Release(owner, amount)
	}
}
