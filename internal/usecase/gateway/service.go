package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/id"
	"github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
)

// DefaultQuoteTTL is how long a price quote stays payable.
const DefaultQuoteTTL = 5 * time.Minute

// AccessKey is the idempotency key of a resource charge. Detail and a
// quote-backed Pay share it, so one resource is charged once per token.
func AccessKey(resourceID string) string { return "access:" + resourceID }

// PayRequest is an explicit payment against a token.
type PayRequest struct {
	TokenID        string
	Amount         int64
	QuoteID        string // optional; binds the charge to a quoted resource
	IdempotencyKey string // used when QuoteID is empty
}

// Service is the data provider gateway.
type Service struct {
	catalog  Catalog
	quotes   QuoteBook
	payments PaymentValidator
	quoteTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a gateway Service.
func New(catalog Catalog, quotes QuoteBook, payments PaymentValidator, logger *zap.Logger) *Service {
	return &Service{
		catalog:  catalog,
		quotes:   quotes,
		payments: payments,
		quoteTTL: DefaultQuoteTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// WithQuoteTTL sets the quote lifetime.
func (s *Service) WithQuoteTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.quoteTTL = ttl
	}
	return s
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List is the free tier: resource summaries whose name contains keyword.
func (s *Service) List(ctx context.Context, keyword string) ([]resource.Summary, error) {
	items, err := s.catalog.List(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return items, nil
}

// Detail serves a premium resource. Without a token it returns a price
// quote; with one it charges the price before releasing the resource.
func (s *Service) Detail(ctx context.Context, resourceID, tokenID string) (access.Result, error) {
	res, err := s.catalog.Get(ctx, resourceID)
	if err != nil {
		return access.Result{}, err
	}
	if res.IsFree() {
		return access.Served(res, nil), nil
	}

	log := logger.FromContextOr(ctx, s.logger).With(zap.String("resource_id", res.ID()))

	if tokenID == "" {
		q, err := s.issueQuote(ctx, res)
		if err != nil {
			return access.Result{}, err
		}
		log.Info("Payment required", zap.String("quote_id", q.ID()), zap.Int64("price", q.Price()))
		return access.PaymentRequired(q), nil
	}

	rec, err := s.payments.Consume(ctx, payment.Charge{
		TokenID:        tokenID,
		Amount:         res.Price(),
		Description:    "detail " + res.ID(),
		IdempotencyKey: AccessKey(res.ID()),
	})
	if err != nil {
		var ibe *domain.InsufficientBalanceError
		switch {
		case errors.As(err, &ibe):
			log.Info("Insufficient funds", zap.Int64("required", ibe.Required), zap.Int64("available", ibe.Available))
			return access.InsufficientFunds(ibe.Required, ibe.Available), nil
		case errors.Is(err, domain.ErrTokenNotFound):
			return access.AuthFailed("token not found"), nil
		case errors.Is(err, domain.ErrTokenExpired):
			return access.AuthFailed("token expired"), nil
		default:
			return access.Result{}, fmt.Errorf("charge detail: %w", err)
		}
	}
	return access.Served(res, &rec), nil
}

// Pay charges amount against a token. With a quote, the amount must equal
// the quoted price and the charge counts as the quoted resource's access.
func (s *Service) Pay(ctx context.Context, req PayRequest) (payment.Record, error) {
	if req.Amount <= 0 {
		return payment.Record{}, fmt.Errorf("%w: must be positive, got %d", domain.ErrInvalidAmount, req.Amount)
	}

	charge := payment.Charge{
		TokenID:        req.TokenID,
		Amount:         req.Amount,
		Description:    "payment",
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.QuoteID != "" {
		q, err := s.quotes.Get(ctx, req.QuoteID)
		if err != nil {
			return payment.Record{}, err
		}
		if q.Price() != req.Amount {
			return payment.Record{}, fmt.Errorf("%w: quote %s is priced %d, got %d",
				domain.ErrInvalidAmount, q.ID(), q.Price(), req.Amount)
		}
		charge.Description = "quote " + q.ID()
		charge.IdempotencyKey = AccessKey(q.ResourceID())
	}

	rec, err := s.payments.Consume(ctx, charge)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) || errors.Is(err, domain.ErrTokenExpired) {
			return payment.Record{}, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
		}
		return payment.Record{}, err
	}
	return rec, nil
}

func (s *Service) issueQuote(ctx context.Context, res resource.Resource) (quote.Quote, error) {
	q, err := quote.New(id.Quote(), res.ID(), res.Price(), s.now().Add(s.quoteTTL))
	if err != nil {
		return quote.Quote{}, fmt.Errorf("new quote: %w", err)
	}
	if err := s.quotes.Put(ctx, q); err != nil {
		return quote.Quote{}, fmt.Errorf("store quote: %w", err)
	}
	metrics.PaymentRequiredTotal.Inc()
	return q, nil
}
