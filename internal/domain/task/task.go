package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/payment"
)

// Status is the lifecycle state of a research task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsFinal reports whether no further transitions are possible.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is a research job that spends a budget on premium data.
// Mutations go through the transition methods; stores hand out copies.
type Task struct {
	id            string
	theme         string
	budget        int64
	ownerIdentity string
	status        Status
	tokenID       string
	report        string
	errMsg        string
	payments      []payment.Record
	createdAt     time.Time
	updatedAt     time.Time
}

// New validates and creates a pending Task.
func New(id, theme string, budget int64, ownerIdentity string, now time.Time) (Task, error) {
	if id == "" {
		return Task{}, fmt.Errorf("task ID is required")
	}
	if strings.TrimSpace(theme) == "" {
		return Task{}, fmt.Errorf("task theme is required")
	}
	if budget <= 0 {
		return Task{}, fmt.Errorf("%w: must be positive, got %d", domain.ErrInvalidBudget, budget)
	}
	now = now.UTC()
	return Task{
		id:            id,
		theme:         strings.TrimSpace(theme),
		budget:        budget,
		ownerIdentity: ownerIdentity,
		status:        StatusPending,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ID returns the task identifier.
func (t Task) ID() string { return t.id }

// Theme returns the research theme.
func (t Task) Theme() string { return t.theme }

// Budget returns the total the task may spend.
func (t Task) Budget() int64 { return t.budget }

// OwnerIdentity returns the principal the task spends for.
func (t Task) OwnerIdentity() string { return t.ownerIdentity }

// Status returns the lifecycle state.
func (t Task) Status() Status { return t.status }

// TokenID returns the payment token in use (empty until issued).
func (t Task) TokenID() string { return t.tokenID }

// Spent returns the sum of committed charges, each transaction counted once.
func (t Task) Spent() int64 { return payment.Spent(t.payments) }

// RemainingBudget returns budget minus spent.
func (t Task) RemainingBudget() int64 { return t.budget - t.Spent() }

// Report returns the generated report (completed tasks).
func (t Task) Report() string { return t.report }

// Error returns the failure message (failed tasks).
func (t Task) Error() string { return t.errMsg }

// Payments returns a copy of the charges made for the task.
func (t Task) Payments() []payment.Record {
	out := make([]payment.Record, len(t.payments))
	copy(out, t.payments)
	return out
}

// CreatedAt returns the creation time.
func (t Task) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the last transition time.
func (t Task) UpdatedAt() time.Time { return t.updatedAt }

// Clone returns a deep copy.
func (t Task) Clone() Task {
	t.payments = t.Payments()
	return t
}

func (t *Task) transition(to Status, now time.Time) error {
	if t.status.IsFinal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrTaskFinished, t.id, t.status)
	}
	t.status = to
	t.updatedAt = now.UTC()
	return nil
}

// Start moves a pending task to running.
func (t *Task) Start(now time.Time) error { return t.transition(StatusRunning, now) }

// Complete stores the report and finishes the task.
func (t *Task) Complete(report string, now time.Time) error {
	if err := t.transition(StatusCompleted, now); err != nil {
		return err
	}
	t.report = report
	return nil
}

// Fail records the error and finishes the task.
func (t *Task) Fail(cause error, now time.Time) error {
	if err := t.transition(StatusFailed, now); err != nil {
		return err
	}
	if cause != nil {
		t.errMsg = cause.Error()
	}
	return nil
}

// Cancel finishes the task without a report. Committed charges stay.
func (t *Task) Cancel(now time.Time) error { return t.transition(StatusCancelled, now) }

// AttachToken records the payment token issued for the task.
func (t *Task) AttachToken(tokenID string, now time.Time) {
	t.tokenID = tokenID
	t.updatedAt = now.UTC()
}

// RecordPayment appends a charge. Records repeating a transaction already on
// the task are kept for the audit trail but not counted towards spent.
func (t *Task) RecordPayment(rec payment.Record, now time.Time) {
	t.payments = append(t.payments, rec)
	t.updatedAt = now.UTC()
}
