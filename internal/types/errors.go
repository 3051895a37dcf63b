package types

import (
	"errors"
	"fmt"
)

// ErrActiveRunExists is returned by stores when a shift already has a running run.
var ErrActiveRunExists = errors.New("active backfill run already exists for shift")

// NotFoundError indicates a missing shift, client, run or attempt.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// DataIntegrityError indicates the ranked set references a worker absent from the candidate set.
type DataIntegrityError struct {
	RunID    string
	WorkerID string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("run %s: ranked worker %s missing from candidate set", e.RunID, e.WorkerID)
}

// TransportError indicates a gateway or oracle call failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError indicates a state-machine guard rejected a transition.
type InvalidTransitionError struct {
	RunID string
	From  RunStatus
	To    RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("run %s: invalid transition %s -> %s", e.RunID, e.From, e.To)
}

// ContractViolationError indicates oracle output failed validation.
type ContractViolationError struct {
	Reason string
	Cause  error
}

func (e *ContractViolationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oracle contract violation: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("oracle contract violation: %s", e.Reason)
}

func (e *ContractViolationError) Unwrap() error {
	return e.Cause
}
