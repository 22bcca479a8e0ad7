package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/access"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/repository/catalog"
	ledgermem "github.com/kailas-cloud/agentpay/internal/repository/ledger/memory"
	quotebook "github.com/kailas-cloud/agentpay/internal/repository/quote"
	"github.com/kailas-cloud/agentpay/internal/usecase/ledger"
)

// --- Mocks ---

type failingValidator struct{ err error }

func (f *failingValidator) Consume(context.Context, payment.Charge) (payment.Record, error) {
	return payment.Record{}, f.err
}

// --- Helpers ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	book   *quotebook.Book
	clock  *clock
}

func mustResource(t *testing.T, id, name string, price int64) resource.Resource {
	t.Helper()
	r, err := resource.New(id, name, name+" detail", price)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	return r
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.New([]resource.Resource{
		mustResource(t, "acme", "ACME Corp", 10),
		mustResource(t, "globex", "Globex Corporation", 10),
		mustResource(t, "initech", "Initech", 10),
		mustResource(t, "public", "Public Registry", 0),
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	c := &clock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	l := ledger.New(ledgermem.New(), zap.NewNop()).WithClock(c.Now)
	book := quotebook.New().WithClock(c.Now)
	svc := New(cat, book, l, zap.NewNop()).WithClock(c.Now)
	return &fixture{svc: svc, ledger: l, book: book, clock: c}
}

func (f *fixture) token(t *testing.T, budget int64) string {
	t.Helper()
	tok, err := f.ledger.CreateToken(context.Background(), budget, "voice-1", time.Hour, "")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok.ID()
}

func (f *fixture) balance(t *testing.T, tokenID string) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b
}

// --- Tests ---

func TestList(t *testing.T) {
	f := newFixture(t)

	items, err := f.svc.List(context.Background(), "corp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].ID != "acme" || items[1].ID != "globex" {
		t.Errorf("List(corp) = %+v", items)
	}

	all, _ := f.svc.List(context.Background(), "")
	if len(all) != 4 {
		t.Errorf("List() returned %d items, want 4", len(all))
	}
}

func TestDetail_NoTokenReturnsQuote(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Detail(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindPaymentRequired {
		t.Fatalf("Kind() = %s, want payment_required", res.Kind())
	}
	q := res.Quote()
	if q.Price() != 10 || q.ResourceID() != "acme" {
		t.Errorf("quote = %d for %s", q.Price(), q.ResourceID())
	}
	if !q.ExpiresAt().Equal(f.clock.Now().Add(DefaultQuoteTTL)) {
		t.Errorf("ExpiresAt() = %v", q.ExpiresAt())
	}
	if _, err := f.book.Get(context.Background(), q.ID()); err != nil {
		t.Errorf("quote not registered: %v", err)
	}
}

func TestDetail_ChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)

	res, err := f.svc.Detail(ctx, "acme", tok)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindServed {
		t.Fatalf("Kind() = %s, want served", res.Kind())
	}
	if res.Resource().Name() != "ACME Corp" {
		t.Errorf("Resource().Name() = %q", res.Resource().Name())
	}
	rec := res.Payment()
	if rec == nil || rec.AmountCharged != 10 || rec.RemainingBalance != 90 || rec.Replayed {
		t.Fatalf("payment = %+v", rec)
	}

	again, err := f.svc.Detail(ctx, "acme", tok)
	if err != nil {
		t.Fatalf("second Detail: %v", err)
	}
	if again.Kind() != access.KindServed || !again.Payment().Replayed {
		t.Errorf("second Detail = %s, replayed=%v", again.Kind(), again.Payment().Replayed)
	}
	if again.Payment().TransactionID != rec.TransactionID {
		t.Errorf("replay transaction = %s, want %s", again.Payment().TransactionID, rec.TransactionID)
	}
	if b := f.balance(t, tok); b != 90 {
		t.Errorf("balance = %d, want 90", b)
	}
}

func TestDetail_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 5)

	res, err := f.svc.Detail(context.Background(), "acme", tok)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindInsufficientFunds {
		t.Fatalf("Kind() = %s, want insufficient_funds", res.Kind())
	}
	if res.Required() != 10 || res.Available() != 5 {
		t.Errorf("required=%d available=%d", res.Required(), res.Available())
	}
	if b := f.balance(t, tok); b != 5 {
		t.Errorf("balance = %d, want 5 (no partial deduction)", b)
	}
}

func TestDetail_AuthFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Detail(ctx, "acme", "not-a-token")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindAuthFailed {
		t.Errorf("unknown token Kind() = %s", res.Kind())
	}

	tok := f.token(t, 100)
	f.clock.Advance(2 * time.Hour)
	res, err = f.svc.Detail(ctx, "acme", tok)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindAuthFailed || res.Reason() != "token expired" {
		t.Errorf("expired token = %s (%q)", res.Kind(), res.Reason())
	}
}

func TestDetail_ExpiredTokenNotServedFromPriorCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)

	res, err := f.svc.Detail(ctx, "acme", tok)
	if err != nil || res.Kind() != access.KindServed {
		t.Fatalf("Detail = %v, %v", res.Kind(), err)
	}

	f.clock.Advance(2 * time.Hour)
	res, err = f.svc.Detail(ctx, "acme", tok)
	if err != nil {
		t.Fatalf("Detail after expiry: %v", err)
	}
	if res.Kind() != access.KindAuthFailed || res.Reason() != "token expired" {
		t.Errorf("Detail after expiry = %s (%q), want auth_failed", res.Kind(), res.Reason())
	}

	_, err = f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: 30, IdempotencyKey: "order-1"})
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("Pay after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestDetail_FreeResourceNeedsNoToken(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Detail(context.Background(), "public", "")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if res.Kind() != access.KindServed || res.Payment() != nil {
		t.Errorf("Detail(public) = %s, payment=%v", res.Kind(), res.Payment())
	}
}

func TestDetail_ResourceNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Detail(context.Background(), "nope", ""); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("error = %v, want ErrResourceNotFound", err)
	}
}

func TestDetail_StorageErrorIsNotAuthFailure(t *testing.T) {
	f := newFixture(t)
	storageErr := errors.New("redis down")
	f.svc.payments = &failingValidator{err: storageErr}

	_, err := f.svc.Detail(context.Background(), "acme", "tok")
	if !errors.Is(err, storageErr) {
		t.Errorf("error = %v, want storage error", err)
	}
}

func TestDetail_ConcurrentChargesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 25)
	ids := []string{"acme", "globex", "initech"}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served int
		short  int
	)
	for i := range 30 {
		wg.Add(1)
		go func(rid string) {
			defer wg.Done()
			res, err := f.svc.Detail(context.Background(), rid, tok)
			if err != nil {
				t.Errorf("Detail: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Kind() {
			case access.KindServed:
				if !res.Payment().Replayed {
					served++
				}
			case access.KindInsufficientFunds:
				short++
			}
		}(ids[i%len(ids)])
	}
	wg.Wait()

	if served != 2 {
		t.Errorf("fresh charges = %d, want 2", served)
	}
	if b := f.balance(t, tok); b != 5 {
		t.Errorf("balance = %d, want 5", b)
	}
	if short == 0 {
		t.Error("expected some insufficient funds results")
	}
}

func TestPay_QuoteThenRetryChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)

	res, _ := f.svc.Detail(ctx, "acme", "")
	q := res.Quote()

	rec, err := f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: q.Price(), QuoteID: q.ID()})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if !rec.Success || rec.AmountCharged != 10 || rec.RemainingBalance != 90 {
		t.Errorf("record = %+v", rec)
	}

	served, err := f.svc.Detail(ctx, "acme", tok)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if served.Kind() != access.KindServed || !served.Payment().Replayed {
		t.Fatalf("retry = %s, replayed=%v", served.Kind(), served.Payment().Replayed)
	}

	// Paying the same quote again is a replay too.
	again, err := f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: q.Price(), QuoteID: q.ID()})
	if err != nil {
		t.Fatalf("second Pay: %v", err)
	}
	if !again.Replayed {
		t.Error("second Pay not replayed")
	}
	if b := f.balance(t, tok); b != 90 {
		t.Errorf("balance = %d, want 90", b)
	}
}

func TestPay_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)
	res, _ := f.svc.Detail(ctx, "acme", "")
	q := res.Quote()

	tests := []struct {
		name string
		req  PayRequest
		want error
	}{
		{"zero amount", PayRequest{TokenID: tok, Amount: 0}, domain.ErrInvalidAmount},
		{"negative amount", PayRequest{TokenID: tok, Amount: -3}, domain.ErrInvalidAmount},
		{"price mismatch", PayRequest{TokenID: tok, Amount: 9, QuoteID: q.ID()}, domain.ErrInvalidAmount},
		{"unknown quote", PayRequest{TokenID: tok, Amount: 10, QuoteID: "quote_x"}, domain.ErrQuoteNotFound},
		{"unknown token", PayRequest{TokenID: "missing", Amount: 10}, domain.ErrAuthenticationFailed},
		{"over balance", PayRequest{TokenID: tok, Amount: 101}, domain.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Pay(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Pay error = %v, want %v", err, tt.want)
			}
		})
	}
	if b := f.balance(t, tok); b != 100 {
		t.Errorf("balance = %d, want 100", b)
	}
}

func TestPay_ExpiredQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)
	res, _ := f.svc.Detail(ctx, "acme", "")

	f.clock.Advance(DefaultQuoteTTL)
	_, err := f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: 10, QuoteID: res.Quote().ID()})
	if !errors.Is(err, domain.ErrQuoteNotFound) {
		t.Errorf("error = %v, want ErrQuoteNotFound", err)
	}
}

func TestPay_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, 100)

	for i := range 3 {
		rec, err := f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: 30, IdempotencyKey: "order-7"})
		if err != nil {
			t.Fatalf("Pay #%d: %v", i, err)
		}
		if rec.Replayed != (i > 0) {
			t.Errorf("Pay #%d replayed = %v", i, rec.Replayed)
		}
	}
	if b := f.balance(t, tok); b != 70 {
		t.Errorf("balance = %d, want 70", b)
	}

	// Without a key every call charges.
	for i := range 2 {
		if _, err := f.svc.Pay(ctx, PayRequest{TokenID: tok, Amount: 10}); err != nil {
			t.Fatalf("Pay #%d: %v", i, err)
		}
	}
	if b := f.balance(t, tok); b != 50 {
		t.Errorf("balance = %d, want 50", b)
	}
}

func TestAccessKey(t *testing.T) {
	if got := AccessKey("acme"); got != "access:acme" {
		t.Errorf("AccessKey = %q", got)
	}
}
