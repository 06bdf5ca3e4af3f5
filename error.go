package relayz

import (
	"errors"
	"fmt"
)

// Resolution errors. A *StageResolutionError wraps one of these.
var (
	ErrStageNotFound   = errors.New("stage not found")
	ErrNotInvokable    = errors.New("stage is not invokable")
	ErrNoLocator       = errors.New("no locator configured")
	ErrEmptyIdentifier = errors.New("empty stage identifier")
	ErrInvalidPipe     = errors.New("invalid pipe")
)

// Registry errors.
var (
	ErrEmptyName = errors.New("empty stage name")
	ErrNilStage  = errors.New("nil stage")
)

// StageResolutionError reports a stage that could not be turned into an
// invocation when the chain reached it. Stages that already ran are not
// rolled back.
type StageResolutionError struct {
	Err      error
	Pipeline Name
	Stage    Name
	Ref      string
	Method   string
	Index    int
}

// Error implements the error interface.
func (e *StageResolutionError) Error() string {
	stage := e.Stage
	if e.Ref != "" {
		stage = e.Ref
	}
	return fmt.Sprintf("pipeline %q: stage %q (index %d, method %q) could not be resolved: %v",
		e.Pipeline, stage, e.Index, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageResolutionError) Unwrap() error {
	return e.Err
}

// PanicError is returned in place of a stage panic when the pipeline was
// built WithRecovery.
type PanicError struct {
	Value    any
	Pipeline Name
	Stage    Name
	Index    int
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeline %q: stage %q (index %d) panicked: %v", e.Pipeline, e.Stage, e.Index, e.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
