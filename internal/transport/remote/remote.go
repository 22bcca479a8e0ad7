// Package remote adapts the agentpay HTTP client to the orchestrator's
// collaborator interfaces when the authority or the gateway run as
// separate services.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/usecase/authority"
	"github.com/kailas-cloud/agentpay/internal/usecase/gateway"
	agentpay "github.com/kailas-cloud/agentpay/pkg/sdk"
)

// Authority issues tokens through a remote token authority.
type Authority struct {
	client *agentpay.Client
	now    func() time.Time
}

// NewAuthority creates an Authority over client.
func NewAuthority(client *agentpay.Client) *Authority {
	return &Authority{client: client, now: time.Now}
}

// IssueToken requests a token of budget for owner.
func (a *Authority) IssueToken(ctx context.Context, budget int64, owner string) (authority.Issued, error) {
	tok, err := a.client.Authority().IssueToken(ctx, budget, owner)
	if err != nil {
		return authority.Issued{}, fmt.Errorf("remote issue token: %w", err)
	}
	return authority.Issued{
		TokenID:   tok.TokenID,
		ExpiresIn: tok.ExpiresIn,
		ExpiresAt: a.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

// HealthCheck fails unless the authority reports ok.
func (a *Authority) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, a.client)
}

// Gateway reads and pays for data through a remote data gateway.
type Gateway struct {
	client *agentpay.Client
}

// NewGateway creates a Gateway over client.
func NewGateway(client *agentpay.Client) *Gateway {
	return &Gateway{client: client}
}

// List returns the free listing filtered by keyword.
func (g *Gateway) List(ctx context.Context, keyword string) ([]resource.Summary, error) {
	items, err := g.client.Gateway().List(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("remote list: %w", err)
	}
	out := make([]resource.Summary, len(items))
	for i, it := range items {
		out[i] = resource.Summary{ID: it.ID, Name: it.Name}
	}
	return out, nil
}

// Detail requests a premium resource, paying with tokenID when set.
func (g *Gateway) Detail(ctx context.Context, resourceID, tokenID string) (access.Result, error) {
	res, err := g.client.Gateway().Detail(ctx, resourceID, tokenID)
	if err != nil {
		return access.Result{}, fmt.Errorf("remote detail: %w", err)
	}

	switch res.Kind {
	case agentpay.DetailServed:
		item, err := resource.New(res.Company.ID, res.Company.Name, res.Company.Description, res.Company.Price)
		if err != nil {
			return access.Result{}, fmt.Errorf("remote detail: %w", err)
		}
		var rec *payment.Record
		if res.TransactionID != "" {
			rec = &payment.Record{
				TokenID:          tokenID,
				TransactionID:    res.TransactionID,
				AmountCharged:    item.Price(),
				RemainingBalance: res.Remaining,
				Success:          true,
			}
		}
		return access.Served(item, rec), nil
	case agentpay.DetailPaymentRequired:
		q := res.Quote
		return access.PaymentRequired(quote.Reconstruct(q.ID, q.ResourceID, q.Price, q.ExpiresAt)), nil
	case agentpay.DetailAuthFailed:
		return access.AuthFailed(res.Reason), nil
	case agentpay.DetailInsufficientFunds:
		return access.InsufficientFunds(res.Required, res.Available), nil
	}
	return access.Result{}, fmt.Errorf("remote detail: unknown result %q", res.Kind)
}

// Pay charges a token on the gateway.
func (g *Gateway) Pay(ctx context.Context, req gateway.PayRequest) (payment.Record, error) {
	rec, err := g.client.Gateway().Pay(ctx, agentpay.PayRequest{
		TokenID:        req.TokenID,
		Amount:         req.Amount,
		QuoteID:        req.QuoteID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return payment.Record{}, fmt.Errorf("remote pay: %w", err)
	}
	return payment.Record{
		TokenID:          rec.TokenID,
		TransactionID:    rec.TransactionID,
		AmountCharged:    rec.AmountCharged,
		RemainingBalance: rec.RemainingBalance,
		Timestamp:        rec.Timestamp,
		Success:          rec.Success,
		Replayed:         rec.Replayed,
	}, nil
}

// HealthCheck fails unless the gateway reports ok.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, g.client)
}

func healthCheck(ctx context.Context, c *agentpay.Client) error {
	hs, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if hs.Status != "ok" {
		return fmt.Errorf("remote status %s", hs.Status)
	}
	return nil
}
