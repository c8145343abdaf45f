package governance

import (
	"errors"
	"fmt"
)

var (
	ErrRoleGrantUnverified    = errors.New("proposer role not held by governor after grant")
	ErrRoleRenounceUnverified = errors.New("admin role still held by deployer after renounce")
	ErrInvariantViolated      = errors.New("final role state violates governance invariants")
	ErrStateMismatch          = errors.New("saved run state belongs to a different chain or deployer")
	ErrDeployerUnknown        = errors.New("deployer address is unknown")
)

// StepError reports the step a run stopped at together with everything that had
// been confirmed up to that point.
type StepError struct {
	Step  Step
	Err   error
	State RunState
}

func (e *StepError) Error() string {
	return fmt.Sprintf("governance run failed at step %s (last completed: %s): %v", e.Step, e.State.LastCompleted, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
