package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Charge outcomes.
const (
	OutcomeCharged      = "charged"
	OutcomeReplayed     = "replayed"
	OutcomeInsufficient = "insufficient"
	OutcomeExpired      = "expired"
	OutcomeNotFound     = "not_found"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// Payment Prometheus metrics.
var (
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "charges_total",
			Help:      "Total number of ledger charge attempts by outcome",
		},
		[]string{"outcome"},
	)

	ChargedAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "charged_amount_total",
			Help:      "Sum of committed charge amounts",
		},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "tokens_issued_total",
			Help:      "Token issuance attempts by outcome",
		},
		[]string{"outcome"},
	)

	PaymentRequiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "payment_required_total",
			Help:      "Number of payment required responses (price quotes issued)",
		},
	)

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "tasks_total",
			Help:      "Research tasks by final status",
		},
		[]string{"status"},
	)

	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentpay",
			Name:      "upstream_retries_total",
			Help:      "Retries of collaborator calls after transient failures",
		},
		[]string{"operation"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentpay",
			Name:      "upstream_request_duration_seconds",
			Help:      "Collaborator request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)
)

var registerPaymentOnce sync.Once

// RegisterPaymentMetrics registers Prometheus payment metrics. Safe to call more than once.
func RegisterPaymentMetrics() {
	registerPaymentOnce.Do(func() {
		prometheus.MustRegister(
			ChargesTotal,
			ChargedAmountTotal,
			TokensIssuedTotal,
			PaymentRequiredTotal,
			TasksTotal,
			UpstreamRetriesTotal,
			UpstreamRequestDuration,
		)
	})
}
