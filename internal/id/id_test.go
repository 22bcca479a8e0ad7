package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	for _, p := range []Prefix{PrefixTransaction, PrefixQuote, PrefixTask} {
		s := New(p)
		if !strings.HasPrefix(s, string(p)+"_") {
			t.Errorf("New(%q) = %q", p, s)
		}
		if !HasPrefix(s, p) {
			t.Errorf("HasPrefix(%q, %q) = false", s, p)
		}
	}
	if Transaction() == Transaction() {
		t.Error("expected unique IDs")
	}
}

func TestHasPrefix_Invalid(t *testing.T) {
	if HasPrefix("not an id", PrefixTask) {
		t.Error("HasPrefix accepted garbage")
	}
	if HasPrefix(Quote(), PrefixTask) {
		t.Error("HasPrefix accepted wrong prefix")
	}
}

func TestNewPanicsOnBadPrefix(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New("Bad-Prefix")
}

func TestNewToken(t *testing.T) {
	u, err := uuid.Parse(NewToken())
	if err != nil {
		t.Fatalf("uuid.Parse: %v", err)
	}
	if u.Version() != 4 {
		t.Errorf("Version() = %d, want 4", u.Version())
	}
}
