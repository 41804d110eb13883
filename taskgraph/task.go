package taskgraph

// Status is the lifecycle state of a task. Transitions only move forward:
// Pending -> Ready -> Running -> Done or Failed.
type Status int

const (
	// StatusPending means at least one dependency is not done yet.
	StatusPending Status = iota
	// StatusReady means all dependencies are done and the task may run.
	StatusReady
	// StatusRunning means the task has been started.
	StatusRunning
	// StatusDone means the task completed successfully.
	StatusDone
	// StatusFailed means the task failed permanently.
	StatusFailed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is a node in the dependency graph.
type Task struct {
	ID           string
	Dependencies []string
	Status       Status
}
