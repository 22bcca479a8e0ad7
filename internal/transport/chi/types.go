package chi

import "time"

// ErrorResponseCode is the machine-readable error code.
type ErrorResponseCode string

const (
	ErrorResponseCodeBadRequest          ErrorResponseCode = "bad_request"
	ErrorResponseCodeValidationFailed    ErrorResponseCode = "validation_failed"
	ErrorResponseCodeUnauthorized        ErrorResponseCode = "unauthorized"
	ErrorResponseCodeInvalidBudget       ErrorResponseCode = "invalid_budget"
	ErrorResponseCodeInvalidAmount       ErrorResponseCode = "invalid_amount"
	ErrorResponseCodeAuthFailed          ErrorResponseCode = "authentication_failed"
	ErrorResponseCodeBudgetLimitExceeded ErrorResponseCode = "budget_limit_exceeded"
	ErrorResponseCodePaymentRequired     ErrorResponseCode = "payment_required"
	ErrorResponseCodeInsufficientFunds   ErrorResponseCode = "insufficient_funds"
	ErrorResponseCodeTokenNotFound       ErrorResponseCode = "token_not_found"
	ErrorResponseCodeTokenExpired        ErrorResponseCode = "token_expired"
	ErrorResponseCodeResourceNotFound    ErrorResponseCode = "resource_not_found"
	ErrorResponseCodeQuoteNotFound       ErrorResponseCode = "quote_not_found"
	ErrorResponseCodeTaskNotFound        ErrorResponseCode = "task_not_found"
	ErrorResponseCodeTaskFinished        ErrorResponseCode = "task_finished"
	ErrorResponseCodeUpstreamTimeout     ErrorResponseCode = "upstream_timeout"
	ErrorResponseCodeUpstreamUnavailable ErrorResponseCode = "upstream_unavailable"
	ErrorResponseCodeNotImplemented      ErrorResponseCode = "not_implemented"
	ErrorResponseCodeInternalError       ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// BudgetLimitResponse is a 403 budget_limit_exceeded.
type BudgetLimitResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
	Allowed int64             `json:"allowed"`
}

// PaymentRequiredResponse is a 402 carrying a price quote.
type PaymentRequiredResponse struct {
	Code       ErrorResponseCode `json:"code"`
	Message    string            `json:"message"`
	Price      int64             `json:"price"`
	QuoteId    string            `json:"quoteId"`
	ResourceId string            `json:"resourceId"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// InsufficientFundsResponse is a 402 for a token that cannot cover the price.
type InsufficientFundsResponse struct {
	Code      ErrorResponseCode `json:"code"`
	Message   string            `json:"message"`
	Required  int64             `json:"required"`
	Available int64             `json:"available"`
}

// IssueTokenRequest is the body of POST /token.
type IssueTokenRequest struct {
	Budget        int64  `json:"budget"`
	OwnerIdentity string `json:"ownerIdentity"`
}

// IssueTokenResponse is the answer of POST /token.
type IssueTokenResponse struct {
	TokenId   string `json:"tokenId"`
	ExpiresIn int64  `json:"expiresIn"`
}

// BalanceResponse is the answer of GET /balance/{tokenId}.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// Transaction is a committed charge.
type Transaction struct {
	Id             string    `json:"id"`
	Amount         int64     `json:"amount"`
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TokenReport is the answer of GET /tokens/{tokenId}.
type TokenReport struct {
	TokenId          string       `json:"tokenId"`
	TotalAllocated   int64        `json:"totalAllocated"`
	Remaining        int64        `json:"remaining"`
	Consumed         int64        `json:"consumed"`
	TransactionCount int          `json:"transactionCount"`
	LastTransaction  *Transaction `json:"lastTransaction,omitempty"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	Expired          bool         `json:"expired"`
}

// CompanySummary is the free-tier view of a resource.
type CompanySummary struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// CompanyListResponse is the answer of GET /company/basic.
type CompanyListResponse struct {
	Data []CompanySummary `json:"data"`
}

// CompanyDetail is the premium view of a resource.
type CompanyDetail struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

// PayRequest is the body of POST /pay.
type PayRequest struct {
	TokenId string  `json:"tokenId"`
	Amount  int64   `json:"amount"`
	QuoteId *string `json:"quoteId,omitempty"`
}

// PaymentRecord is the answer of POST /pay.
type PaymentRecord struct {
	Success          bool      `json:"success"`
	TokenId          string    `json:"tokenId"`
	TransactionId    string    `json:"transactionId"`
	AmountCharged    int64     `json:"amountCharged"`
	RemainingBalance int64     `json:"remainingBalance"`
	Replayed         bool      `json:"replayed"`
	Timestamp        time.Time `json:"timestamp"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Theme         string `json:"theme"`
	Budget        int64  `json:"budget"`
	OwnerIdentity string `json:"ownerIdentity"`
}

// CreateTaskResponse is the answer of POST /tasks.
type CreateTaskResponse struct {
	TaskId string `json:"taskId"`
}

// Task is a research task.
type Task struct {
	Id            string          `json:"id"`
	Theme         string          `json:"theme"`
	Budget        int64           `json:"budget"`
	OwnerIdentity string          `json:"ownerIdentity"`
	Status        string          `json:"status"`
	TokenId       string          `json:"tokenId,omitempty"`
	Spent         int64           `json:"spent"`
	Report        string          `json:"report,omitempty"`
	Error         string          `json:"error,omitempty"`
	Payments      []PaymentRecord `json:"payments"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// TaskListResponse is the answer of GET /tasks.
type TaskListResponse struct {
	Items []Task `json:"items"`
}

// HealthResponse is the answer of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ListCompaniesParams are the query parameters of GET /company/basic.
type ListCompaniesParams struct {
	Keyword *string
}

// GetCompanyDetailParams are the parameters of GET /company/detail.
type GetCompanyDetailParams struct {
	Id            string
	XPaymentToken *string
}

// PayParams are the header parameters of POST /pay.
type PayParams struct {
	IdempotencyKey *string
}
