package agentpay

import (
	"fmt"
	"net/http"

	"github.com/kailas-cloud/agentpay/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check; an *APIError unwraps to the matching sentinel.
var (
	ErrInvalidBudget        = domain.ErrInvalidBudget
	ErrInvalidAmount        = domain.ErrInvalidAmount
	ErrTokenNotFound        = domain.ErrTokenNotFound
	ErrTokenExpired         = domain.ErrTokenExpired
	ErrInsufficientBalance  = domain.ErrInsufficientBalance
	ErrBudgetLimitExceeded  = domain.ErrBudgetLimitExceeded
	ErrAuthenticationFailed = domain.ErrAuthenticationFailed
	ErrUpstreamTimeout      = domain.ErrUpstreamTimeout
	ErrUpstreamUnavailable  = domain.ErrUpstreamUnavailable
	ErrResourceNotFound     = domain.ErrResourceNotFound
	ErrQuoteNotFound        = domain.ErrQuoteNotFound
	ErrTaskNotFound         = domain.ErrTaskNotFound
	ErrTaskFinished         = domain.ErrTaskFinished
)

// Typed errors re-exported from the domain layer. Use errors.As() to read
// the amounts of a budget or balance rejection.
type (
	BudgetLimitError         = domain.BudgetLimitError
	InsufficientBalanceError = domain.InsufficientBalanceError
)

// IsRetryable reports whether err is a timeout or an unavailable service.
func IsRetryable(err error) bool { return domain.IsRetryable(err) }

var codeSentinels = map[string]error{
	"invalid_budget":        domain.ErrInvalidBudget,
	"invalid_amount":        domain.ErrInvalidAmount,
	"authentication_failed": domain.ErrAuthenticationFailed,
	"token_not_found":       domain.ErrTokenNotFound,
	"token_expired":         domain.ErrTokenExpired,
	"resource_not_found":    domain.ErrResourceNotFound,
	"quote_not_found":       domain.ErrQuoteNotFound,
	"task_not_found":        domain.ErrTaskNotFound,
	"task_finished":         domain.ErrTaskFinished,
	"upstream_timeout":      domain.ErrUpstreamTimeout,
	"upstream_unavailable":  domain.ErrUpstreamUnavailable,
}

// APIError is a non-2xx answer from an agentpay service.
type APIError struct {
	Op      string
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`

	// Set for budget_limit_exceeded.
	Allowed int64 `json:"allowed"`
	// Set for insufficient_funds.
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Code, e.Status, e.Message)
}

// Unwrap returns the domain error matching Code, or nil for unknown codes
// outside the retryable status range.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "budget_limit_exceeded":
		return domain.NewBudgetLimitExceeded(e.Allowed)
	case "insufficient_funds":
		return domain.NewInsufficientBalance(e.Required, e.Available)
	}
	if s, ok := codeSentinels[e.Code]; ok {
		return s
	}
	switch {
	case e.Status == http.StatusGatewayTimeout:
		return domain.ErrUpstreamTimeout
	case e.Status == http.StatusTooManyRequests, e.Status >= http.StatusInternalServerError && e.Code != "internal_error":
		return domain.ErrUpstreamUnavailable
	}
	return nil
}
