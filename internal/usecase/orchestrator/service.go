package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/quote"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/domain/task"
	"github.com/kailas-cloud/agentpay/internal/id"
	"github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
	"github.com/kailas-cloud/agentpay/internal/retry"
	"github.com/kailas-cloud/agentpay/internal/usecase/gateway"
)

// Config tunes the task runner.
type Config struct {
	Workers      int          // concurrent tasks
	QueueSize    int          // queued tasks beyond Workers; Create blocks when full
	MaxResources int          // resources fetched per task
	Retry        retry.Policy // collaborator calls
}

// DefaultConfig returns the runner settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueSize:    64,
		MaxResources: 3,
		Retry:        retry.DefaultPolicy(),
	}
}

// CreateRequest starts a research task.
type CreateRequest struct {
	Theme         string
	Budget        int64
	OwnerIdentity string
}

// Service runs research tasks that pay for premium data as they go.
type Service struct {
	tasks    TaskStore
	issuer   TokenIssuer
	gateway  DataGateway
	reporter Reporter
	cfg      Config
	pool     pond.Pool
	payments singleflight.Group
	now      func() time.Time
	logger   *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates an orchestrator and starts its worker pool.
func New(
	tasks TaskStore, issuer TokenIssuer, gw DataGateway, reporter Reporter, cfg Config, logger *zap.Logger,
) *Service {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxResources <= 0 {
		cfg.MaxResources = def.MaxResources
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		tasks:    tasks,
		issuer:   issuer,
		gateway:  gw,
		reporter: reporter,
		cfg:      cfg,
		pool:     pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.QueueSize), pond.WithContext(ctx)),
		now:      time.Now,
		logger:   logger,
		baseCtx:  ctx,
		stop:     stop,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Close cancels running tasks and waits for the workers to exit.
func (s *Service) Close() {
	s.stop()
	s.pool.StopAndWait()
}

// Create validates and queues a task.
func (s *Service) Create(ctx context.Context, req CreateRequest) (task.Task, error) {
	t, err := task.New(id.Task(), req.Theme, req.Budget, req.OwnerIdentity, s.now())
	if err != nil {
		return task.Task{}, err
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return task.Task{}, fmt.Errorf("create task: %w", err)
	}

	taskCtx, cancel := context.WithCancel(s.baseCtx)
	taskCtx = logger.With(taskCtx, s.logger, zap.String("task_id", t.ID()))

	s.mu.Lock()
	s.cancels[t.ID()] = cancel
	s.mu.Unlock()

	s.pool.Submit(func() {
		defer s.forget(t.ID())
		s.run(taskCtx, t.ID())
	})

	logger.FromContextOr(ctx, s.logger).Info("Task queued",
		zap.String("task_id", t.ID()),
		zap.String("theme", t.Theme()),
		zap.Int64("budget", t.Budget()),
	)
	return t, nil
}

// Get returns a task snapshot.
func (s *Service) Get(ctx context.Context, taskID string) (task.Task, error) {
	return s.tasks.Get(ctx, taskID)
}

// List returns all tasks, newest first.
func (s *Service) List(ctx context.Context) ([]task.Task, error) {
	return s.tasks.List(ctx)
}

// Cancel stops a pending or running task. Charges already committed stay.
func (s *Service) Cancel(ctx context.Context, taskID string) (task.Task, error) {
	t, err := s.tasks.Update(ctx, taskID, func(t *task.Task) error {
		return t.Cancel(s.now())
	})
	if err != nil {
		return task.Task{}, err
	}

	s.mu.Lock()
	cancel := s.cancels[taskID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	metrics.TasksTotal.WithLabelValues(string(task.StatusCancelled)).Inc()
	logger.FromContextOr(ctx, s.logger).Info("Task cancelled", zap.String("task_id", taskID))
	return t, nil
}

func (s *Service) forget(taskID string) {
	s.mu.Lock()
	cancel := s.cancels[taskID]
	delete(s.cancels, taskID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run executes the workflow: list, attempt each resource, report.
func (s *Service) run(ctx context.Context, taskID string) {
	log := logger.FromContext(ctx)

	t, err := s.tasks.Update(ctx, taskID, func(t *task.Task) error {
		return t.Start(s.now())
	})
	if err != nil {
		// Cancelled while queued.
		log.Info("Task not started", zap.Error(err))
		return
	}

	r := &runState{task: t, paid: make(map[string]payment.Record)}
	report, err := s.workflow(ctx, r)
	if ctx.Err() != nil {
		if s.baseCtx.Err() != nil {
			// Shutdown, not Cancel: the task would otherwise stay running forever.
			s.finish(context.WithoutCancel(ctx), taskID, task.StatusFailed, func(t *task.Task) error {
				return t.Fail(errors.New("orchestrator shut down"), s.now())
			})
		}
		log.Info("Task stopped", zap.Error(ctx.Err()))
		return
	}

	if err != nil {
		s.finish(ctx, taskID, task.StatusFailed, func(t *task.Task) error { return t.Fail(err, s.now()) })
		log.Warn("Task failed", zap.Error(err))
		return
	}
	s.finish(ctx, taskID, task.StatusCompleted, func(t *task.Task) error { return t.Complete(report, s.now()) })
	log.Info("Task completed", zap.Int("payments", len(r.paid)))
}

func (s *Service) finish(ctx context.Context, taskID string, status task.Status, fn func(*task.Task) error) {
	if _, err := s.tasks.Update(ctx, taskID, fn); err != nil {
		// Lost a race with Cancel; the task already has its final state.
		logger.FromContext(ctx).Info("Task final state not recorded", zap.Error(err))
		return
	}
	metrics.TasksTotal.WithLabelValues(string(status)).Inc()
}

func (s *Service) workflow(ctx context.Context, r *runState) (string, error) {
	targets, err := s.discover(ctx, r.task.Theme())
	if err != nil {
		return "", fmt.Errorf("list resources: %w", err)
	}

	findings := make([]resource.Resource, 0, len(targets))
	for _, target := range targets {
		res, err := s.Attempt(ctx, r, target.ID)
		if err != nil {
			return "", err
		}
		findings = append(findings, res)
	}

	report, err := s.reporter.Generate(ctx, r.task.Theme(), findings)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	return report, nil
}

// discover lists resources matching theme, falling back to the full listing.
func (s *Service) discover(ctx context.Context, theme string) ([]resource.Summary, error) {
	list := func(keyword string) ([]resource.Summary, error) {
		return retry.Do(ctx, s.cfg.Retry, "gateway_list", func(ctx context.Context) ([]resource.Summary, error) {
			return s.gateway.List(ctx, keyword)
		})
	}

	items, err := list(theme)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if items, err = list(""); err != nil {
			return nil, err
		}
	}
	if len(items) > s.cfg.MaxResources {
		items = items[:s.cfg.MaxResources]
	}
	return items, nil
}

// runState is what one task run knows about its payments.
type runState struct {
	task task.Task

	mu      sync.Mutex
	tokenID string
	paid    map[string]payment.Record // by quote id
}

// Attempt fetches one resource, paying for it when the gateway asks.
func (s *Service) Attempt(ctx context.Context, r *runState, resourceID string) (resource.Resource, error) {
	first, err := s.detail(ctx, resourceID, "")
	if err != nil {
		return resource.Resource{}, abort(resourceID, StageDetail, err)
	}

	switch first.Kind() {
	case access.KindServed:
		return first.Resource(), nil
	case access.KindPaymentRequired:
	default:
		return resource.Resource{}, abort(resourceID, StageDetail, resultError(first))
	}

	tokenID, err := s.token(ctx, r)
	if err != nil {
		return resource.Resource{}, abort(resourceID, StageToken, err)
	}

	q := first.Quote()
	paid, err := s.pay(ctx, r, tokenID, q)
	if err != nil {
		return resource.Resource{}, abort(resourceID, StagePay, err)
	}

	second, err := s.detail(ctx, resourceID, tokenID)
	if err != nil {
		return resource.Resource{}, abort(resourceID, StageRetry, err)
	}
	if second.Kind() != access.KindServed {
		return resource.Resource{}, abort(resourceID, StageRetry, resultError(second))
	}
	if rec := second.Payment(); rec != nil && rec.TransactionID != paid.TransactionID {
		s.recordPayment(ctx, r, *rec)
	}
	return second.Resource(), nil
}

// recordPayment appends rec to the stored task. Task.Spent counts each transaction once.
func (s *Service) recordPayment(ctx context.Context, r *runState, rec payment.Record) {
	if _, err := s.tasks.Update(ctx, r.task.ID(), func(t *task.Task) error {
		t.RecordPayment(rec, s.now())
		return nil
	}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record payment on task", zap.Error(err))
	}
}

func (s *Service) detail(ctx context.Context, resourceID, tokenID string) (access.Result, error) {
	return retry.Do(ctx, s.cfg.Retry, "gateway_detail", func(ctx context.Context) (access.Result, error) {
		return s.gateway.Detail(ctx, resourceID, tokenID)
	})
}

// token returns the task's payment token, issuing one for the remaining budget on first use.
func (s *Service) token(ctx context.Context, r *runState) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokenID != "" {
		return r.tokenID, nil
	}

	issued, err := retry.Do(ctx, s.cfg.Retry, "authority_issue", func(ctx context.Context) (string, error) {
		out, err := s.issuer.IssueToken(ctx, r.task.RemainingBudget(), r.task.OwnerIdentity())
		return out.TokenID, err
	})
	if err != nil {
		return "", err
	}
	r.tokenID = issued

	if _, err := s.tasks.Update(ctx, r.task.ID(), func(t *task.Task) error {
		t.AttachToken(issued, s.now())
		return nil
	}); err != nil {
		logger.FromContext(ctx).Warn("Failed to attach token to task", zap.Error(err))
	}
	return issued, nil
}

// pay settles a quote once per task. Concurrent payments of the same quote share one call.
func (s *Service) pay(ctx context.Context, r *runState, tokenID string, q quote.Quote) (payment.Record, error) {
	r.mu.Lock()
	if rec, ok := r.paid[q.ID()]; ok {
		r.mu.Unlock()
		return rec, nil
	}
	r.mu.Unlock()

	v, err, _ := s.payments.Do(q.ID(), func() (any, error) {
		r.mu.Lock()
		if rec, ok := r.paid[q.ID()]; ok {
			r.mu.Unlock()
			return rec, nil
		}
		r.mu.Unlock()

		rec, err := retry.Do(ctx, s.cfg.Retry, "gateway_pay", func(ctx context.Context) (payment.Record, error) {
			return s.gateway.Pay(ctx, gateway.PayRequest{TokenID: tokenID, Amount: q.Price(), QuoteID: q.ID()})
		})
		if err != nil {
			return payment.Record{}, err
		}

		r.mu.Lock()
		r.paid[q.ID()] = rec
		r.mu.Unlock()

		s.recordPayment(ctx, r, rec)
		logger.FromContext(ctx).Info("Quote paid",
			zap.String("quote_id", q.ID()),
			zap.String("transaction_id", rec.TransactionID),
			zap.Int64("amount", rec.AmountCharged),
			zap.Bool("replayed", rec.Replayed),
		)
		return rec, nil
	})
	if err != nil {
		return payment.Record{}, err
	}
	return v.(payment.Record), nil
}

// resultError converts a terminal access result into an error.
func resultError(res access.Result) error {
	switch res.Kind() {
	case access.KindAuthFailed:
		return fmt.Errorf("%w: %s", domain.ErrAuthenticationFailed, res.Reason())
	case access.KindInsufficientFunds:
		return domain.NewInsufficientBalance(res.Required(), res.Available())
	case access.KindPaymentRequired:
		return fmt.Errorf("%w: payment required again for quote %s", ErrProtocol, res.Quote().ID())
	default:
		return errors.New("unexpected access result " + string(res.Kind()))
	}
}
