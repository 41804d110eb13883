package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages. Callers match them with errors.Is.
var (
	// ErrBusOverloaded is returned by Publish when the delivery queue is
	// full. The bus fails fast instead of blocking the publisher.
	ErrBusOverloaded = errors.New("bus overloaded: delivery queue full")

	// ErrBusClosed is returned by Publish after the bus has shut down.
	ErrBusClosed = errors.New("bus closed")

	// ErrNoActionSelected signals that a role's think phase found nothing to
	// do this cycle. It is a normal suspend signal, not a failure; the role
	// goes back to waiting for the next delivery.
	ErrNoActionSelected = errors.New("no action selected")

	// ErrUnknownTag is returned when a tag outside the bus's declared tag
	// set is used for subscribe or publish.
	ErrUnknownTag = errors.New("unknown causation tag")
)

// CycleError reports a task-graph insertion that would close a dependency
// cycle. The graph is left unchanged when this is returned.
type CycleError struct {
	TaskID     string
	Dependency string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: task %q cannot depend on %q", e.TaskID, e.Dependency)
}

// ActionError reports an action that kept failing after its bounded retries
// were exhausted. Roles convert it into an error message on the bus instead
// of letting it crash the loop.
type ActionError struct {
	Action   string
	Attempts int
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed after %d attempt(s): %v", e.Action, e.Attempts, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ToolNotFoundError reports a lookup of an unregistered tool name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %q", e.Name)
}
