package health

import (
	"context"
	"sort"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// checkTimeout bounds each component check.
const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedChecker struct {
	name    string
	checker Checker
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	checkers []namedChecker
}

// New creates a Service. db can be nil (in-memory ledger).
func New(db DBPinger) *Service {
	return &Service{db: db}
}

// WithCheck adds a named collaborator check.
func (s *Service) WithCheck(name string, c Checker) *Service {
	s.checkers = append(s.checkers, namedChecker{name: name, checker: c})
	sort.Slice(s.checkers, func(i, j int) bool { return s.checkers[i].name < s.checkers[j].name })
	return s
}

// Check runs health checks against all components.
// The database is critical: when it fails the status is Unhealthy.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	dbDown := false

	if s.db != nil {
		if err := run(ctx, s.db.Ping); err != nil {
			checks["database"] = CheckError
			dbDown = true
		} else {
			checks["database"] = CheckOK
		}
	}

	for _, c := range s.checkers {
		if err := run(ctx, c.checker.HealthCheck); err != nil {
			checks[c.name] = CheckError
		} else {
			checks[c.name] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if dbDown {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return fn(ctx)
}
