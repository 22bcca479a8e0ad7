package orchestrator

import (
	"context"

	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/domain/task"
	"github.com/kailas-cloud/agentpay/internal/usecase/authority"
	"github.com/kailas-cloud/agentpay/internal/usecase/gateway"
)

// TaskStore persists research tasks.
type TaskStore interface {
	Create(ctx context.Context, t task.Task) error
	Get(ctx context.Context, id string) (task.Task, error)
	Update(ctx context.Context, id string, fn func(*task.Task) error) (task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
}

// TokenIssuer hands out payment tokens. Satisfied by the authority service
// and by its HTTP client.
type TokenIssuer interface {
	IssueToken(ctx context.Context, budget int64, ownerIdentity string) (authority.Issued, error)
}

// DataGateway is the priced data provider. Satisfied by the gateway service
// and by its HTTP client.
type DataGateway interface {
	List(ctx context.Context, keyword string) ([]resource.Summary, error)
	Detail(ctx context.Context, resourceID, tokenID string) (access.Result, error)
	Pay(ctx context.Context, req gateway.PayRequest) (payment.Record, error)
}

// Reporter turns fetched resources into a report.
type Reporter interface {
	Generate(ctx context.Context, theme string, findings []resource.Resource) (string, error)
}
