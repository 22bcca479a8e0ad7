package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/transport/upstream"
)

func newIdentityServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /verify/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "voice-1":
			_ = json.NewEncoder(w).Encode(map[string]bool{"verified": true})
		case "spoof":
			_ = json.NewEncoder(w).Encode(map[string]bool{"verified": false})
		case "flaky":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /limits/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"dailyLimit": 1000, "transactionLimit": 500, "monthlyLimit": 10000,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	up, err := upstream.New(newIdentityServer(t).URL)
	if err != nil {
		t.Fatalf("upstream.New: %v", err)
	}
	return NewClient(up)
}

func TestClient_Verify(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		owner string
		want  bool
	}{
		{"voice-1", true},
		{"spoof", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		got, err := c.Verify(ctx, tt.owner)
		if err != nil {
			t.Fatalf("Verify(%s): %v", tt.owner, err)
		}
		if got != tt.want {
			t.Errorf("Verify(%s) = %v, want %v", tt.owner, got, tt.want)
		}
	}

	if _, err := c.Verify(ctx, "flaky"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Verify(flaky) error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestClient_Limits(t *testing.T) {
	c := newTestClient(t)

	got, err := c.Limits(context.Background(), "voice-1")
	if err != nil {
		t.Fatalf("Limits: %v", err)
	}
	want := identity.Limits{Daily: 1000, Transaction: 500, Monthly: 10000}
	if got != want {
		t.Errorf("Limits = %+v, want %+v", got, want)
	}
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(map[string]identity.Limits{"voice-1": {Transaction: 50}})

	if ok, _ := s.Verify(ctx, "voice-1"); !ok {
		t.Error("voice-1 not verified")
	}
	if ok, _ := s.Verify(ctx, "stranger"); ok {
		t.Error("stranger verified")
	}
	if l, _ := s.Limits(ctx, "voice-1"); l.Transaction != 50 {
		t.Errorf("Limits = %+v", l)
	}

	s.WithDefault(identity.Limits{Daily: 100})
	if ok, _ := s.Verify(ctx, "stranger"); !ok {
		t.Error("stranger not verified with default")
	}
	if ok, _ := s.Verify(ctx, ""); ok {
		t.Error("empty owner verified")
	}
	if l, _ := s.Limits(ctx, "stranger"); l.Daily != 100 {
		t.Errorf("default Limits = %+v", l)
	}
}
