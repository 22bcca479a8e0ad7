package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}).WithCheck("identity", &mockChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["identity"] != CheckOK {
		t.Errorf("expected identity %q, got %q", CheckOK, r.Checks["identity"])
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}).WithCheck("identity", &mockChecker{})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["identity"] != CheckOK {
		t.Errorf("expected identity %q, got %q", CheckOK, r.Checks["identity"])
	}
}

func TestCheck_CollaboratorError(t *testing.T) {
	svc := New(&mockDBPinger{}).
		WithCheck("report_writer", &mockChecker{err: errors.New("timeout")}).
		WithCheck("gateway", CheckerFunc(func(context.Context) error { return nil }))
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["report_writer"] != CheckError {
		t.Errorf("expected report_writer %q, got %q", CheckError, r.Checks["report_writer"])
	}
	if r.Checks["gateway"] != CheckOK {
		t.Errorf("expected gateway %q, got %q", CheckOK, r.Checks["gateway"])
	}
}

func TestCheck_NoDatabase(t *testing.T) {
	r := New(nil).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["database"]; ok {
		t.Error("database check reported without a database")
	}
}
