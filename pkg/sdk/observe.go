package agentpay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	details    *prometheus.CounterVec
	spent      prometheus.Counter
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpay",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentpay",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		details: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpay",
			Subsystem: "sdk",
			Name:      "detail_outcomes_total",
			Help:      "Company detail requests by outcome.",
		}, []string{"kind"}),
		spent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentpay",
			Subsystem: "sdk",
			Name:      "spent_total",
			Help:      "Amount charged through Pay, replays excluded.",
		}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.details); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.spent); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("agentpay: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("agentpay: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(
	op string, start time.Time, err error,
) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = errorStatus(err)
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(
			dur.Seconds(),
		)
	}

	if o.logger != nil {
		if err != nil {
			o.logger.Warn("operation failed",
				"op", op,
				"duration", dur,
				"error", err,
			)
		} else {
			o.logger.Debug("operation completed",
				"op", op,
				"duration", dur,
			)
		}
	}
}

// detail counts a detail outcome.
func (o *observer) detail(kind DetailKind) {
	if o == nil || o.metrics == nil {
		return
	}
	o.metrics.details.WithLabelValues(string(kind)).Inc()
}

// paid records a committed charge. Replays moved no money and are skipped.
func (o *observer) paid(p Payment) {
	if o == nil || p.Replayed {
		return
	}
	if o.metrics != nil {
		o.metrics.spent.Add(float64(p.AmountCharged))
	}
	if o.logger != nil {
		o.logger.Info("payment committed",
			"token", p.TokenID,
			"transaction", p.TransactionID,
			"amount", p.AmountCharged,
			"remaining", p.RemainingBalance,
		)
	}
}

// errorStatus labels a failed operation with its API error code when there is one.
func errorStatus(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	return "error"
}
