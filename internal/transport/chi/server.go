package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/task"
	"github.com/kailas-cloud/agentpay/internal/domain/token"
	"github.com/kailas-cloud/agentpay/internal/logger"
	authorityuc "github.com/kailas-cloud/agentpay/internal/usecase/authority"
	gatewayuc "github.com/kailas-cloud/agentpay/internal/usecase/gateway"
	healthuc "github.com/kailas-cloud/agentpay/internal/usecase/health"
	orchestratoruc "github.com/kailas-cloud/agentpay/internal/usecase/orchestrator"
)

// Response headers set on a charged detail request.
const (
	HeaderPaymentToken       = "X-Payment-Token"
	HeaderPaymentTransaction = "X-Payment-Transaction"
	HeaderPaymentRemaining   = "X-Payment-Remaining"
	HeaderIdempotencyKey     = "Idempotency-Key"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements ServerInterface. A nil component answers its routes with 501.
type Server struct {
	Unimplemented
	authority     *authorityuc.Service
	gateway       *gatewayuc.Service
	tasks         *orchestratoruc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	authority *authorityuc.Service,
	gateway *gatewayuc.Service,
	tasks *orchestratoruc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		authority: authority,
		gateway:   gateway,
		tasks:     tasks,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		budgetLimitHandler,
		insufficientBalanceHandler,
		// AuthenticationFailed wraps the token sentinels on /pay, so it goes first.
		sentinelHandler(domain.ErrAuthenticationFailed, http.StatusUnauthorized, ErrorResponseCodeAuthFailed),
		sentinelHandler(domain.ErrInvalidBudget, http.StatusBadRequest, ErrorResponseCodeInvalidBudget),
		sentinelHandler(domain.ErrInvalidAmount, http.StatusBadRequest, ErrorResponseCodeInvalidAmount),
		sentinelHandler(domain.ErrTokenNotFound, http.StatusNotFound, ErrorResponseCodeTokenNotFound),
		sentinelHandler(domain.ErrTokenExpired, http.StatusUnauthorized, ErrorResponseCodeTokenExpired),
		sentinelHandler(domain.ErrResourceNotFound, http.StatusNotFound, ErrorResponseCodeResourceNotFound),
		sentinelHandler(domain.ErrQuoteNotFound, http.StatusNotFound, ErrorResponseCodeQuoteNotFound),
		sentinelHandler(domain.ErrTaskNotFound, http.StatusNotFound, ErrorResponseCodeTaskNotFound),
		sentinelHandler(domain.ErrTaskFinished, http.StatusConflict, ErrorResponseCodeTaskFinished),
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, ErrorResponseCodeUpstreamTimeout),
		sentinelHandler(domain.ErrUpstreamUnavailable,
			http.StatusServiceUnavailable, ErrorResponseCodeUpstreamUnavailable),
	}
	return s
}

// IssueToken handles POST /token.
func (s *Server) IssueToken(w http.ResponseWriter, r *http.Request) {
	if s.authority == nil {
		s.Unimplemented.IssueToken(w, r)
		return
	}

	var req IssueTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OwnerIdentity) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "ownerIdentity is required")
		return
	}

	issued, err := s.authority.IssueToken(r.Context(), req.Budget, req.OwnerIdentity)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, IssueTokenResponse{
		TokenId:   issued.TokenID,
		ExpiresIn: issued.ExpiresIn,
	})
}

// GetBalance handles GET /balance/{tokenId}.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request, tokenID string) {
	if s.authority == nil {
		s.Unimplemented.GetBalance(w, r, tokenID)
		return
	}

	balance, err := s.authority.GetBalance(r.Context(), tokenID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}

// GetTokenReport handles GET /tokens/{tokenId}.
func (s *Server) GetTokenReport(w http.ResponseWriter, r *http.Request, tokenID string) {
	if s.authority == nil {
		s.Unimplemented.GetTokenReport(w, r, tokenID)
		return
	}

	report, err := s.authority.Report(r.Context(), tokenID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenReportToAPI(report))
}

// ListCompanies handles GET /company/basic.
func (s *Server) ListCompanies(w http.ResponseWriter, r *http.Request, params ListCompaniesParams) {
	if s.gateway == nil {
		s.Unimplemented.ListCompanies(w, r, params)
		return
	}

	keyword := ""
	if params.Keyword != nil {
		keyword = *params.Keyword
	}

	summaries, err := s.gateway.List(r.Context(), keyword)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	data := make([]CompanySummary, len(summaries))
	for i, sum := range summaries {
		data[i] = CompanySummary{Id: sum.ID, Name: sum.Name}
	}
	writeJSON(w, http.StatusOK, CompanyListResponse{Data: data})
}

// GetCompanyDetail handles GET /company/detail.
func (s *Server) GetCompanyDetail(w http.ResponseWriter, r *http.Request, params GetCompanyDetailParams) {
	if s.gateway == nil {
		s.Unimplemented.GetCompanyDetail(w, r, params)
		return
	}
	if params.Id == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "id is required")
		return
	}

	tokenID := ""
	if params.XPaymentToken != nil {
		tokenID = strings.TrimSpace(*params.XPaymentToken)
	}

	res, err := s.gateway.Detail(r.Context(), params.Id, tokenID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	switch res.Kind() {
	case access.KindServed:
		if rec := res.Payment(); rec != nil {
			w.Header().Set(HeaderPaymentTransaction, rec.TransactionID)
			w.Header().Set(HeaderPaymentRemaining, strconv.FormatInt(rec.RemainingBalance, 10))
		}
		item := res.Resource()
		writeJSON(w, http.StatusOK, CompanyDetail{
			Id:          item.ID(),
			Name:        item.Name(),
			Description: item.Description(),
			Price:       item.Price(),
		})
	case access.KindPaymentRequired:
		q := res.Quote()
		writeJSON(w, http.StatusPaymentRequired, PaymentRequiredResponse{
			Code:       ErrorResponseCodePaymentRequired,
			Message:    "payment required",
			Price:      q.Price(),
			QuoteId:    q.ID(),
			ResourceId: q.ResourceID(),
			ExpiresAt:  q.ExpiresAt(),
		})
	case access.KindAuthFailed:
		writeError(w, http.StatusUnauthorized, ErrorResponseCodeAuthFailed, res.Reason())
	case access.KindInsufficientFunds:
		writeJSON(w, http.StatusPaymentRequired, InsufficientFundsResponse{
			Code:      ErrorResponseCodeInsufficientFunds,
			Message:   domain.ErrInsufficientBalance.Error(),
			Required:  res.Required(),
			Available: res.Available(),
		})
	default:
		s.handleDomainError(w, r, errors.New("unknown access result: "+string(res.Kind())))
	}
}

// Pay handles POST /pay.
func (s *Server) Pay(w http.ResponseWriter, r *http.Request, params PayParams) {
	if s.gateway == nil {
		s.Unimplemented.Pay(w, r, params)
		return
	}

	var req PayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TokenId == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "tokenId is required")
		return
	}

	payReq := gatewayuc.PayRequest{TokenID: req.TokenId, Amount: req.Amount}
	if req.QuoteId != nil {
		payReq.QuoteID = *req.QuoteId
	}
	if params.IdempotencyKey != nil {
		payReq.IdempotencyKey = *params.IdempotencyKey
	}

	rec, err := s.gateway.Pay(r.Context(), payReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentToAPI(rec))
}

// CreateTask handles POST /tasks.
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.Unimplemented.CreateTask(w, r)
		return
	}

	var req CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Theme) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "theme is required")
		return
	}
	if strings.TrimSpace(req.OwnerIdentity) == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "ownerIdentity is required")
		return
	}

	t, err := s.tasks.Create(r.Context(), orchestratoruc.CreateRequest{
		Theme:         req.Theme,
		Budget:        req.Budget,
		OwnerIdentity: req.OwnerIdentity,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/tasks/"+t.ID())
	writeJSON(w, http.StatusAccepted, CreateTaskResponse{TaskId: t.ID()})
}

// ListTasks handles GET /tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.Unimplemented.ListTasks(w, r)
		return
	}

	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]Task, len(tasks))
	for i, t := range tasks {
		items[i] = taskToAPI(t)
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Items: items})
}

// GetTask handles GET /tasks/{taskId}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if s.tasks == nil {
		s.Unimplemented.GetTask(w, r, taskID)
		return
	}

	t, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToAPI(t))
}

// CancelTask handles POST /tasks/{taskId}/cancel.
func (s *Server) CancelTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if s.tasks == nil {
		s.Unimplemented.CancelTask(w, r, taskID)
		return
	}

	t, err := s.tasks.Cancel(r.Context(), taskID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToAPI(t))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: string(healthuc.Healthy), Checks: map[string]string{}})
		return
	}

	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrAuthenticationFailed,
		domain.ErrInvalidBudget,
		domain.ErrInvalidAmount,
		domain.ErrTokenNotFound,
		domain.ErrTokenExpired,
		domain.ErrInsufficientBalance,
		domain.ErrBudgetLimitExceeded,
		domain.ErrResourceNotFound,
		domain.ErrQuoteNotFound,
		domain.ErrTaskNotFound,
		domain.ErrTaskFinished,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler creates an errorHandler for a sentinel error → HTTP status + code.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// budgetLimitHandler answers 403 with the maximum the owner may request.
func budgetLimitHandler(w http.ResponseWriter, err error, msg string) bool {
	var ble *domain.BudgetLimitError
	if !errors.As(err, &ble) {
		return false
	}
	writeJSON(w, http.StatusForbidden, BudgetLimitResponse{
		Code:    ErrorResponseCodeBudgetLimitExceeded,
		Message: msg,
		Allowed: ble.Allowed,
	})
	return true
}

// insufficientBalanceHandler answers 402 with the amounts involved.
func insufficientBalanceHandler(w http.ResponseWriter, err error, msg string) bool {
	var ibe *domain.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		return false
	}
	writeJSON(w, http.StatusPaymentRequired, InsufficientFundsResponse{
		Code:      ErrorResponseCodeInsufficientFunds,
		Message:   msg,
		Required:  ibe.Required,
		Available: ibe.Available,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func tokenReportToAPI(r token.Report) TokenReport {
	resp := TokenReport{
		TokenId:          r.TokenID(),
		TotalAllocated:   r.TotalAllocated(),
		Remaining:        r.Remaining(),
		Consumed:         r.Consumed(),
		TransactionCount: r.TransactionCount(),
		ExpiresAt:        r.ExpiresAt(),
		Expired:          r.Expired(),
	}
	if tx := r.LastTransaction(); tx != nil {
		resp.LastTransaction = &Transaction{
			Id:             tx.ID(),
			Amount:         tx.Amount(),
			Description:    tx.Description(),
			IdempotencyKey: tx.IdempotencyKey(),
			Timestamp:      tx.Timestamp(),
		}
	}
	return resp
}

func paymentToAPI(rec payment.Record) PaymentRecord {
	return PaymentRecord{
		Success:          rec.Success,
		TokenId:          rec.TokenID,
		TransactionId:    rec.TransactionID,
		AmountCharged:    rec.AmountCharged,
		RemainingBalance: rec.RemainingBalance,
		Replayed:         rec.Replayed,
		Timestamp:        rec.Timestamp,
	}
}

func taskToAPI(t task.Task) Task {
	payments := make([]PaymentRecord, 0, len(t.Payments()))
	for _, p := range t.Payments() {
		payments = append(payments, paymentToAPI(p))
	}
	return Task{
		Id:            t.ID(),
		Theme:         t.Theme(),
		Budget:        t.Budget(),
		OwnerIdentity: t.OwnerIdentity(),
		Status:        string(t.Status()),
		TokenId:       t.TokenID(),
		Spent:         t.Spent(),
		Report:        t.Report(),
		Error:         t.Error(),
		Payments:      payments,
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
}
