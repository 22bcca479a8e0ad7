package agentpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// --- Tests ---

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("localhost:8080"); err == nil {
		t.Fatal("expected error for relative base url")
	}
	if _, err := New("/api"); err == nil {
		t.Fatal("expected error for path-only base url")
	}
}

func TestAuthority_IssueToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Errorf("authorization: got %q", got)
		}
		var body struct {
			Budget        int64  `json:"budget"`
			OwnerIdentity string `json:"ownerIdentity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Budget != 100 || body.OwnerIdentity != "agent-1" {
			t.Errorf("body: %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"tokenId": "tok_1", "expiresIn": 3600})
	})
	c := newTestClient(t, mux, WithAPIKey("k1"))

	tok, err := c.Authority().IssueToken(context.Background(), 100, "agent-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if tok.TokenID != "tok_1" || tok.ExpiresIn != 3600 {
		t.Errorf("token: %+v", tok)
	}
}

func TestAuthority_TypedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "budget limit",
			status: http.StatusForbidden,
			body:   map[string]any{"code": "budget_limit_exceeded", "message": "budget limit exceeded", "allowed": 40},
			check: func(t *testing.T, err error) {
				var ble *BudgetLimitError
				if !errors.As(err, &ble) || ble.Allowed != 40 {
					t.Errorf("expected BudgetLimitError{40}, got %v", err)
				}
				if !errors.Is(err, ErrBudgetLimitExceeded) {
					t.Errorf("expected ErrBudgetLimitExceeded, got %v", err)
				}
			},
		},
		{
			name:   "authentication",
			status: http.StatusUnauthorized,
			body:   map[string]any{"code": "authentication_failed", "message": "authentication failed"},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrAuthenticationFailed) {
					t.Errorf("expected ErrAuthenticationFailed, got %v", err)
				}
				if IsRetryable(err) {
					t.Error("authentication failure must not be retryable")
				}
			},
		},
		{
			name:   "upstream unavailable",
			status: http.StatusServiceUnavailable,
			body:   map[string]any{"code": "upstream_unavailable", "message": "upstream unavailable"},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUpstreamUnavailable) || !IsRetryable(err) {
					t.Errorf("expected retryable ErrUpstreamUnavailable, got %v", err)
				}
			},
		},
		{
			name:   "internal error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"code": "internal_error", "message": "internal error"},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
					t.Errorf("expected APIError 500, got %v", err)
				}
				if IsRetryable(err) {
					t.Error("internal error must not be retryable")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c := newTestClient(t, mux)

			_, err := c.Authority().IssueToken(context.Background(), 50, "agent-1")
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestAPIError_NonJSONBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /balance/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})
	c := newTestClient(t, mux)

	_, err := c.Authority().Balance(context.Background(), "tok_1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "bad gateway" || apiErr.Code != "" {
		t.Errorf("api error: %+v", apiErr)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("502 should map to ErrUpstreamUnavailable, got %v", err)
	}
}

func TestTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Authority().Balance(context.Background(), "x"); !errors.Is(err, ErrUpstreamTimeout) {
		t.Errorf("slow server: expected ErrUpstreamTimeout, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	c, err = New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Authority().Balance(context.Background(), "x"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("closed server: expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestGateway_Detail(t *testing.T) {
	expires := time.Date(2026, 5, 1, 12, 5, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /company/detail", func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("X-Payment-Token")
		switch {
		case r.URL.Query().Get("id") == "missing":
			writeJSON(w, http.StatusNotFound, map[string]any{"code": "resource_not_found", "message": "resource not found"})
		case tok == "":
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"code": "payment_required", "message": "payment required",
				"price": 10, "quoteId": "q_1", "resourceId": "acme", "expiresAt": expires,
			})
		case tok == "bad":
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "authentication_failed", "message": "token not found"})
		case tok == "poor":
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"code": "insufficient_funds", "message": "insufficient balance", "required": 10, "available": 4,
			})
		default:
			w.Header().Set("X-Payment-Transaction", "tx_1")
			w.Header().Set("X-Payment-Remaining", "90")
			writeJSON(w, http.StatusOK, map[string]any{"id": "acme", "name": "ACME Corp", "description": "d", "price": 10})
		}
	})
	c := newTestClient(t, mux)
	gw := c.Gateway()
	ctx := context.Background()

	res, err := gw.Detail(ctx, "acme", "")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind != DetailPaymentRequired || res.Quote.ID != "q_1" || res.Quote.Price != 10 ||
		res.Quote.ResourceID != "acme" || !res.Quote.ExpiresAt.Equal(expires) {
		t.Errorf("payment required: %+v", res)
	}

	res, err = gw.Detail(ctx, "acme", "good")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind != DetailServed || res.Company.Name != "ACME Corp" || res.TransactionID != "tx_1" || res.Remaining != 90 {
		t.Errorf("served: %+v", res)
	}

	res, err = gw.Detail(ctx, "acme", "bad")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind != DetailAuthFailed || res.Reason != "token not found" {
		t.Errorf("auth failed: %+v", res)
	}

	res, err = gw.Detail(ctx, "acme", "poor")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind != DetailInsufficientFunds || res.Required != 10 || res.Available != 4 {
		t.Errorf("insufficient funds: %+v", res)
	}

	if _, err := gw.Detail(ctx, "missing", ""); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestGateway_ListAndPay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /company/basic", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("keyword"); got != "acme" {
			t.Errorf("keyword: got %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]string{{"id": "acme", "name": "ACME Corp"}}})
	})
	mux.HandleFunc("POST /pay", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Idempotency-Key"); got != "order-1" {
			t.Errorf("idempotency key: got %q", got)
		}
		raw := new(bytes.Buffer)
		_, _ = raw.ReadFrom(r.Body)
		if !strings.Contains(raw.String(), `"quoteId":"q_1"`) {
			t.Errorf("body misses quoteId: %s", raw)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "tokenId": "tok_1", "transactionId": "tx_1",
			"amountCharged": 10, "remainingBalance": 90, "replayed": false,
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.Gateway().List(ctx, "acme")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "acme" {
		t.Errorf("list: %+v", list)
	}

	rec, err := c.Gateway().Pay(ctx, PayRequest{TokenID: "tok_1", Amount: 10, QuoteID: "q_1", IdempotencyKey: "order-1"})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if !rec.Success || rec.TransactionID != "tx_1" || rec.RemainingBalance != 90 {
		t.Errorf("payment: %+v", rec)
	}
}

func TestTasks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]string{"taskId": "task_1"})
	})
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "task_1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "task_not_found", "message": "task not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "task_1", "status": "completed", "spent": 10, "payments": []any{}})
	})
	mux.HandleFunc("POST /tasks/{id}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"code": "task_finished", "message": "task already finished"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	id, err := c.Tasks().Create(ctx, TaskRequest{Theme: "ACME", Budget: 50, OwnerIdentity: "agent-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	task, err := c.Tasks().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !task.Status.IsFinal() || task.Spent != 10 {
		t.Errorf("task: %+v", task)
	}
	if _, err := c.Tasks().Get(ctx, "nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := c.Tasks().Cancel(ctx, id); !errors.Is(err, ErrTaskFinished) {
		t.Errorf("expected ErrTaskFinished, got %v", err)
	}
}

func TestHealth_DegradedIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded", "checks": map[string]string{"database": "ok", "report_writer": "error"},
		})
	})
	c := newTestClient(t, mux)

	hs, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if hs.Status != "degraded" || hs.Checks["report_writer"] != "error" {
		t.Errorf("health: %+v", hs)
	}
}

func TestObserver_Metrics(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /balance/{id}", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]int64{"balance": 5})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"code": "upstream_unavailable", "message": "x"})
	})
	reg := prometheus.NewRegistry()
	c := newTestClient(t, mux, WithPrometheus(reg), WithLogger(slog.New(slog.DiscardHandler)))

	_, _ = c.Authority().Balance(context.Background(), "a")
	_, _ = c.Authority().Balance(context.Background(), "a")

	if got := testutil.CollectAndCount(reg, "agentpay_sdk_operations_total"); got != 2 {
		t.Errorf("operation series: got %d, want 2", got)
	}

	// A second client on the same registry reuses the collectors.
	if _, err := New("http://localhost", WithPrometheus(reg)); err != nil {
		t.Errorf("re-register: %v", err)
	}
}

func TestObserver_PaymentMetrics(t *testing.T) {
	var pays atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /company/detail", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"code": "payment_required", "message": "payment required",
			"quoteId": "quote_1", "resourceId": "acme", "price": 10,
		})
	})
	mux.HandleFunc("POST /pay", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "tokenId": "tok", "transactionId": "txn_1",
			"amountCharged": 10, "remainingBalance": 90, "replayed": pays.Add(1) > 1,
		})
	})
	reg := prometheus.NewRegistry()
	c := newTestClient(t, mux, WithPrometheus(reg))

	if _, err := c.Gateway().Detail(context.Background(), "acme", ""); err != nil {
		t.Fatalf("Detail: %v", err)
	}
	for range 2 {
		if _, err := c.Gateway().Pay(context.Background(), PayRequest{TokenID: "tok", Amount: 10, QuoteID: "quote_1"}); err != nil {
			t.Fatalf("Pay: %v", err)
		}
	}

	if got := testutil.CollectAndCount(reg, "agentpay_sdk_detail_outcomes_total"); got != 1 {
		t.Errorf("detail outcome series: got %d, want 1", got)
	}
	// The replayed second payment is not counted.
	if got := testutil.ToFloat64(c.obs.metrics.spent); got != 10 {
		t.Errorf("spent_total = %f, want 10", got)
	}
}
