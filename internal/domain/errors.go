package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBudget signals a non-positive token budget.
	ErrInvalidBudget = errors.New("invalid budget")
	// ErrInvalidAmount signals a negative or otherwise malformed charge amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTokenNotFound signals an unknown payment token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired signals a payment token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInsufficientBalance signals a charge larger than the remaining balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBudgetLimitExceeded signals a budget above the owner's verified limit.
	ErrBudgetLimitExceeded = errors.New("budget limit exceeded")
	// ErrAuthenticationFailed signals a failed identity or token check.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUpstreamTimeout signals a collaborator call that timed out (outcome unknown).
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamUnavailable signals a collaborator that could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrResourceNotFound signals a missing catalog resource.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrQuoteNotFound signals an unknown or expired price quote.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrTaskNotFound signals a missing research task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinished signals an operation on a task that already reached a final state.
	ErrTaskFinished = errors.New("task already finished")
)

// InsufficientBalanceError wraps ErrInsufficientBalance with the amounts involved.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: required %d, available %d", ErrInsufficientBalance.Error(), e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NewInsufficientBalance creates an insufficient balance error.
func NewInsufficientBalance(required, available int64) error {
	if available < 0 {
		available = 0
	}
	return &InsufficientBalanceError{Required: required, Available: available}
}

// BudgetLimitError wraps ErrBudgetLimitExceeded with the maximum the owner may request.
type BudgetLimitError struct {
	Allowed int64
}

func (e *BudgetLimitError) Error() string {
	return fmt.Sprintf("%s: allowed maximum is %d", ErrBudgetLimitExceeded.Error(), e.Allowed)
}

func (e *BudgetLimitError) Unwrap() error { return ErrBudgetLimitExceeded }

// NewBudgetLimitExceeded creates a budget limit error.
func NewBudgetLimitExceeded(allowed int64) error {
	if allowed < 0 {
		allowed = 0
	}
	return &BudgetLimitError{Allowed: allowed}
}

// IsRetryable reports whether err is a transient collaborator failure.
// Everything else is terminal for the current attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable)
}
