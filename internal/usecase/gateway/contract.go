package gateway

import (
	"context"

	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
)

// Catalog lists and resolves priced resources.
type Catalog interface {
	List(ctx context.Context, keyword string) ([]resource.Summary, error)
	Get(ctx context.Context, id string) (resource.Resource, error)
}

// QuoteBook keeps issued price quotes.
type QuoteBook interface {
	Put(ctx context.Context, q quote.Quote) error
	Get(ctx context.Context, id string) (quote.Quote, error)
}

// PaymentValidator charges payment tokens.
type PaymentValidator interface {
	Consume(ctx context.Context, c payment.Charge) (payment.Record, error)
}
