// Package taskgraph implements the dependency-ordered task scheduler that
// gates plan-then-act execution. Tasks form a DAG; insertion that would
// close a cycle is rejected atomically. Readiness is derived: a task becomes
// ready exactly once, when its last dependency completes, and the scheduler
// notifies the configured hook for each newly unblocked task.
package taskgraph
