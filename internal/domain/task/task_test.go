package task

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNew(t *testing.T) {
	tk, err := New("task-1", " acme ", 100, "voice-1", t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tk.Theme() != "acme" {
		t.Errorf("Theme() = %q", tk.Theme())
	}
	if tk.Status() != StatusPending {
		t.Errorf("Status() = %q", tk.Status())
	}
	if tk.RemainingBudget() != 100 {
		t.Errorf("RemainingBudget() = %d", tk.RemainingBudget())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("task-1", "", 100, "", t0); err == nil {
		t.Error("expected error for empty theme")
	}
	if _, err := New("task-1", "x", 0, "", t0); !errors.Is(err, domain.ErrInvalidBudget) {
		t.Errorf("error = %v, want ErrInvalidBudget", err)
	}
}

func TestLifecycle(t *testing.T) {
	tk, _ := New("task-1", "acme", 100, "", t0)
	if err := tk.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tk.AttachToken("tok-1", t0)
	tk.RecordPayment(payment.Record{AmountCharged: 10, Success: true}, t0)
	tk.RecordPayment(payment.Record{AmountCharged: 10, Success: true, Replayed: true}, t0)
	if tk.Spent() != 10 {
		t.Errorf("Spent() = %d, want 10 (replays not counted)", tk.Spent())
	}
	if len(tk.Payments()) != 2 {
		t.Errorf("Payments() = %d", len(tk.Payments()))
	}
	if err := tk.Complete("## acme", t0.Add(time.Second)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tk.Report() != "## acme" || !tk.Status().IsFinal() {
		t.Errorf("report/status = %q/%q", tk.Report(), tk.Status())
	}
	if err := tk.Cancel(t0); !errors.Is(err, domain.ErrTaskFinished) {
		t.Errorf("Cancel after complete error = %v, want ErrTaskFinished", err)
	}
}

func TestFail(t *testing.T) {
	tk, _ := New("task-1", "acme", 100, "", t0)
	if err := tk.Fail(domain.ErrAuthenticationFailed, t0); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if tk.Status() != StatusFailed || tk.Error() != "authentication failed" {
		t.Errorf("status/error = %q/%q", tk.Status(), tk.Error())
	}
}

func TestClone(t *testing.T) {
	tk, _ := New("task-1", "acme", 100, "", t0)
	tk.RecordPayment(payment.Record{TransactionID: "txn-1"}, t0)
	c := tk.Clone()
	c.RecordPayment(payment.Record{TransactionID: "txn-2"}, t0)
	if len(tk.Payments()) != 1 {
		t.Error("Clone shares payments slice")
	}
}

func TestRecordPayment_CountsEachTransactionOnce(t *testing.T) {
	tk, _ := New("task-1", "acme", 50, "", t0)

	// The response for the original commit was lost; the retry replays it.
	tk.RecordPayment(payment.Record{TransactionID: "txn-1", AmountCharged: 10, Success: true, Replayed: true}, t0)
	tk.RecordPayment(payment.Record{TransactionID: "txn-1", AmountCharged: 10, Success: true, Replayed: true}, t0)
	tk.RecordPayment(payment.Record{TransactionID: "txn-2", AmountCharged: 10, Success: true}, t0)

	if tk.Spent() != 20 {
		t.Errorf("Spent() = %d, want 20", tk.Spent())
	}
	if tk.RemainingBudget() != 30 {
		t.Errorf("RemainingBudget() = %d, want 30", tk.RemainingBudget())
	}
	if len(tk.Payments()) != 3 {
		t.Errorf("Payments() = %d, want 3", len(tk.Payments()))
	}
}
