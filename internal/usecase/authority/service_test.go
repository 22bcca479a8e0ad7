package authority

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/repository/ledger/memory"
	"github.com/kailas-cloud/agentpay/internal/retry"
	"github.com/kailas-cloud/agentpay/internal/usecase/ledger"
)

// --- Mocks ---

type mockVerifier struct {
	verified  bool
	limits    identity.Limits
	verifyErr error
	limitErr  error
	failFirst int32 // number of Verify calls that fail with ErrUpstreamUnavailable
	calls     atomic.Int32
}

func (m *mockVerifier) Verify(context.Context, string) (bool, error) {
	n := m.calls.Add(1)
	if n <= m.failFirst {
		return false, domain.ErrUpstreamUnavailable
	}
	return m.verified, m.verifyErr
}

func (m *mockVerifier) Limits(context.Context, string) (identity.Limits, error) {
	return m.limits, m.limitErr
}

type mockIssuer struct {
	auth Authorization
	err  error
}

func (m *mockIssuer) Issue(context.Context) (Authorization, error) { return m.auth, m.err }

// --- Helpers ---

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func newTestService(v *mockVerifier) (*Service, *ledger.Service, *memory.Repo) {
	repo := memory.New()
	l := ledger.New(repo, zap.NewNop())
	svc := New(l, v, NewIssuanceLimiter(zap.NewNop()), zap.NewNop()).WithRetryPolicy(fastPolicy)
	return svc, l, repo
}

// --- Tests ---

func TestIssueToken(t *testing.T) {
	v := &mockVerifier{verified: true, limits: identity.Limits{Transaction: 1000}}
	svc, l, _ := newTestService(v)
	ctx := context.Background()

	issued, err := svc.IssueToken(ctx, 100, "voice-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if issued.TokenID == "" {
		t.Fatal("empty token id")
	}
	if issued.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", issued.ExpiresIn)
	}

	bal, err := svc.GetBalance(ctx, issued.TokenID)
	if err != nil || bal != 100 {
		t.Errorf("GetBalance = %d, %v; want 100", bal, err)
	}

	tok, err := l.Get(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.OwnerIdentity() != "voice-1" {
		t.Errorf("OwnerIdentity() = %q", tok.OwnerIdentity())
	}

	rep, err := svc.Report(ctx, issued.TokenID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.TotalAllocated() != 100 || rep.TransactionCount() != 0 {
		t.Errorf("report = %d allocated, %d txns", rep.TotalAllocated(), rep.TransactionCount())
	}
}

func TestIssueToken_InvalidBudget(t *testing.T) {
	v := &mockVerifier{verified: true}
	svc, _, repo := newTestService(v)

	for _, b := range []int64{0, -1} {
		if _, err := svc.IssueToken(context.Background(), b, "voice-1"); !errors.Is(err, domain.ErrInvalidBudget) {
			t.Errorf("IssueToken(%d) error = %v, want ErrInvalidBudget", b, err)
		}
	}
	if v.calls.Load() != 0 {
		t.Errorf("verifier called %d times for invalid budget", v.calls.Load())
	}
	if repo.Len() != 0 {
		t.Errorf("tokens created: %d", repo.Len())
	}
}

func TestIssueToken_AuthenticationFailed(t *testing.T) {
	v := &mockVerifier{verified: false}
	svc, _, repo := newTestService(v)

	_, err := svc.IssueToken(context.Background(), 100, "stranger")
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("error = %v, want ErrAuthenticationFailed", err)
	}
	if repo.Len() != 0 {
		t.Errorf("tokens created: %d", repo.Len())
	}
}

func TestIssueToken_LimitExceededCreatesNoToken(t *testing.T) {
	v := &mockVerifier{verified: true, limits: identity.Limits{Transaction: 50}}
	svc, _, repo := newTestService(v)

	_, err := svc.IssueToken(context.Background(), 100, "voice-1")
	var ble *domain.BudgetLimitError
	if !errors.As(err, &ble) {
		t.Fatalf("error = %v, want BudgetLimitError", err)
	}
	if ble.Allowed != 50 {
		t.Errorf("Allowed = %d, want 50", ble.Allowed)
	}
	if repo.Len() != 0 {
		t.Errorf("tokens created: %d", repo.Len())
	}
}

func TestIssueToken_DailyAllowanceAcrossTokens(t *testing.T) {
	v := &mockVerifier{verified: true, limits: identity.Limits{Daily: 150}}
	svc, _, repo := newTestService(v)
	ctx := context.Background()

	if _, err := svc.IssueToken(ctx, 100, "voice-1"); err != nil {
		t.Fatalf("first IssueToken: %v", err)
	}
	_, err := svc.IssueToken(ctx, 100, "voice-1")
	var ble *domain.BudgetLimitError
	if !errors.As(err, &ble) || ble.Allowed != 50 {
		t.Fatalf("second IssueToken error = %v, want allowed 50", err)
	}
	if repo.Len() != 1 {
		t.Errorf("tokens created: %d, want 1", repo.Len())
	}
}

func TestIssueToken_RetriesUnavailableVerifier(t *testing.T) {
	v := &mockVerifier{verified: true, failFirst: 2}
	svc, _, _ := newTestService(v)

	if _, err := svc.IssueToken(context.Background(), 10, "voice-1"); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if got := v.calls.Load(); got != 3 {
		t.Errorf("Verify calls = %d, want 3", got)
	}
}

func TestIssueToken_VerifierDown(t *testing.T) {
	v := &mockVerifier{verified: true, failFirst: 10}
	svc, _, repo := newTestService(v)

	_, err := svc.IssueToken(context.Background(), 10, "voice-1")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if repo.Len() != 0 {
		t.Errorf("tokens created: %d", repo.Len())
	}
}

func TestIssueToken_ExternalIssuer(t *testing.T) {
	v := &mockVerifier{verified: true}
	svc, l, _ := newTestService(v)
	svc.WithIssuer(&mockIssuer{auth: Authorization{ID: "t-abc", TTL: 10 * time.Minute}})

	issued, err := svc.IssueToken(context.Background(), 10, "voice-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if issued.ExpiresIn != 600 {
		t.Errorf("ExpiresIn = %d, want 600 (issuer ttl caps token ttl)", issued.ExpiresIn)
	}
	tok, err := l.Get(context.Background(), issued.TokenID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.IssuerRef() != "t-abc" {
		t.Errorf("IssuerRef() = %q, want t-abc", tok.IssuerRef())
	}
}

func TestIssueToken_IssuerFailureReleasesReservation(t *testing.T) {
	v := &mockVerifier{verified: true, limits: identity.Limits{Daily: 100}}
	svc, _, repo := newTestService(v)
	issuer := &mockIssuer{err: errors.New("issuer rejected credentials")}
	svc.WithIssuer(issuer)
	ctx := context.Background()

	if _, err := svc.IssueToken(ctx, 100, "voice-1"); err == nil {
		t.Fatal("expected error")
	}
	if repo.Len() != 0 {
		t.Errorf("tokens created: %d", repo.Len())
	}

	issuer.err = nil
	issuer.auth = Authorization{ID: "t-1"}
	if _, err := svc.IssueToken(ctx, 100, "voice-1"); err != nil {
		t.Fatalf("IssueToken after release: %v", err)
	}
}

func TestGetBalance_UnknownToken(t *testing.T) {
	svc, _, _ := newTestService(&mockVerifier{verified: true})
	bal, err := svc.GetBalance(context.Background(), "nope")
	if err != nil || bal != 0 {
		t.Errorf("GetBalance = %d, %v; want 0, nil", bal, err)
	}
}
