package orchestrator

import (
	"errors"
	"fmt"
)

// ErrProtocol signals a gateway answer that does not fit the payment protocol,
// such as a second payment demand after a committed payment.
var ErrProtocol = errors.New("payment protocol violation")

// Stage names where an attempt stopped.
const (
	StageDetail = "detail"
	StageToken  = "token"
	StagePay    = "pay"
	StageRetry  = "retry"
)

// AbortError is the typed cause of an aborted task.
type AbortError struct {
	ResourceID string
	Stage      string
	Err        error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("resource %s: %s: %v", e.ResourceID, e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

func abort(resourceID, stage string, err error) error {
	return &AbortError{ResourceID: resourceID, Stage: stage, Err: err}
}
