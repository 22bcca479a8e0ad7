package agentpay

import "time"

// IssuedToken is a freshly issued payment token.
type IssuedToken struct {
	TokenID   string `json:"tokenId"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}

// Transaction is a committed charge.
type Transaction struct {
	ID             string    `json:"id"`
	Amount         int64     `json:"amount"`
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TokenReport summarizes a token's spending.
type TokenReport struct {
	TokenID          string       `json:"tokenId"`
	TotalAllocated   int64        `json:"totalAllocated"`
	Remaining        int64        `json:"remaining"`
	Consumed         int64        `json:"consumed"`
	TransactionCount int          `json:"transactionCount"`
	LastTransaction  *Transaction `json:"lastTransaction,omitempty"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	Expired          bool         `json:"expired"`
}

// CompanySummary is the free listing entry of a company.
type CompanySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Company is the premium company detail.
type Company struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

// Quote is the price offered for a premium detail.
type Quote struct {
	ID         string    `json:"quoteId"`
	ResourceID string    `json:"resourceId"`
	Price      int64     `json:"price"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// DetailKind tags the outcome of a detail request.
type DetailKind string

// Detail outcomes.
const (
	DetailServed            DetailKind = "served"
	DetailPaymentRequired   DetailKind = "payment_required"
	DetailAuthFailed        DetailKind = "authentication_failed"
	DetailInsufficientFunds DetailKind = "insufficient_funds"
)

// DetailResult is the outcome of a detail request. Only the fields of Kind are set.
type DetailResult struct {
	Kind DetailKind

	// DetailServed. TransactionID is empty when nothing was charged.
	Company       Company
	TransactionID string
	Remaining     int64

	// DetailPaymentRequired.
	Quote Quote

	// DetailAuthFailed.
	Reason string

	// DetailInsufficientFunds.
	Required  int64
	Available int64
}

// PayRequest pays an amount from a token, optionally against a quote.
type PayRequest struct {
	TokenID        string
	Amount         int64
	QuoteID        string
	IdempotencyKey string
}

// Payment is a committed (or replayed) charge.
type Payment struct {
	Success          bool      `json:"success"`
	TokenID          string    `json:"tokenId"`
	TransactionID    string    `json:"transactionId"`
	AmountCharged    int64     `json:"amountCharged"`
	RemainingBalance int64     `json:"remainingBalance"`
	Replayed         bool      `json:"replayed"`
	Timestamp        time.Time `json:"timestamp"`
}

// TaskRequest starts a research task.
type TaskRequest struct {
	Theme         string `json:"theme"`
	Budget        int64  `json:"budget"`
	OwnerIdentity string `json:"ownerIdentity"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsFinal reports whether the task can no longer change.
func (s TaskStatus) IsFinal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a research task snapshot.
type Task struct {
	ID            string     `json:"id"`
	Theme         string     `json:"theme"`
	Budget        int64      `json:"budget"`
	OwnerIdentity string     `json:"ownerIdentity"`
	Status        TaskStatus `json:"status"`
	TokenID       string     `json:"tokenId,omitempty"`
	Spent         int64      `json:"spent"`
	Report        string     `json:"report,omitempty"`
	Error         string     `json:"error,omitempty"`
	Payments      []Payment  `json:"payments"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HealthStatus represents the aggregated service health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}
