package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
)

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("localhost:8001"); err == nil {
		t.Error("expected error for URL without scheme")
	}
	if _, err := New("/just/a/path"); err == nil {
		t.Error("expected error for relative URL")
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/verify/voice-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("app_id") != "a1" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("missing header")
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"verified": true})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/api/", WithHeader("X-Api-Key", "k"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var out struct {
		Verified bool `json:"verified"`
	}
	if err := c.GetJSON(context.Background(), "verify", "/verify/voice-1", url.Values{"app_id": {"a1"}}, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.Verified {
		t.Error("verified = false")
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method = %s, content-type = %s", r.Method, r.Header.Get("Content-Type"))
		}
		var in map[string]int
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]int{"doubled": in["n"] * 2})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	var out map[string]int
	if err := c.PostJSON(context.Background(), "double", "/double", map[string]int{"n": 21}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out["doubled"] != 42 {
		t.Errorf("out = %v", out)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error", http.StatusInternalServerError, domain.ErrUpstreamUnavailable},
		{"bad gateway", http.StatusBadGateway, domain.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, _ := New(srv.URL)
			if err := c.GetJSON(context.Background(), "op", "/", nil, nil); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	err := c.GetJSON(context.Background(), "op", "/x", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if se.Status != http.StatusNotFound || se.Body != `{"code":"not_found"}` {
		t.Errorf("StatusError = %+v", se)
	}
	if domain.IsRetryable(err) {
		t.Error("4xx must not be retryable")
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(srv.URL, WithTimeout(20*time.Millisecond))
	if err := c.GetJSON(context.Background(), "op", "/", nil, nil); !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Errorf("error = %v, want ErrUpstreamTimeout", err)
	}
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, _ := New(addr)
	if err := c.GetJSON(context.Background(), "op", "/", nil, nil); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestCanceledIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := New(srv.URL)
	err := c.GetJSON(ctx, "op", "/", nil, nil)
	if !errors.Is(err, context.Canceled) || domain.IsRetryable(err) {
		t.Errorf("error = %v", err)
	}
}
