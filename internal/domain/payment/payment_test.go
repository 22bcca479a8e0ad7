package payment

import (
	"testing"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain/token"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewRecord(t *testing.T) {
	tx := token.NewTransaction("txn-1", 10, "acme", "access:acme", t0)

	rec := NewRecord("tok-1", tx, -5, true)
	if rec.TransactionID != "txn-1" || rec.AmountCharged != 10 || !rec.Success {
		t.Errorf("record = %+v", rec)
	}
	if rec.RemainingBalance != 0 {
		t.Errorf("RemainingBalance = %d, want 0", rec.RemainingBalance)
	}
	if !rec.Replayed || !rec.Timestamp.Equal(t0) {
		t.Errorf("replayed=%v timestamp=%v", rec.Replayed, rec.Timestamp)
	}
}

func TestSpent(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    int64
	}{
		{"empty", nil, 0},
		{"fresh then replays", []Record{
			{TransactionID: "a", AmountCharged: 10},
			{TransactionID: "a", AmountCharged: 10, Replayed: true},
			{TransactionID: "a", AmountCharged: 10, Replayed: true},
		}, 10},
		{"replay seen first", []Record{
			{TransactionID: "a", AmountCharged: 10, Replayed: true},
			{TransactionID: "b", AmountCharged: 7},
		}, 17},
		{"no transaction id", []Record{
			{AmountCharged: 4},
			{AmountCharged: 4},
			{AmountCharged: 4, Replayed: true},
		}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Spent(tt.records); got != tt.want {
				t.Errorf("Spent() = %d, want %d", got, tt.want)
			}
		})
	}
}
