package taskgraph

import (
	"fmt"
	"sync"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/logging"
)

// Options configure a Scheduler.
type Options struct {
	// OnReady is invoked (synchronously, outside the scheduler lock) exactly
	// once for each task that becomes ready.
	OnReady func(taskID string)
	// FailFast cascades a failure to all transitive dependents, marking them
	// failed immediately. The default is fail-soft: dependents of a failed
	// task simply never become ready.
	FailFast bool
	// Logger receives structured scheduler diagnostics.
	Logger logging.Logger
}

// Scheduler owns the task DAG and derives readiness from completion. Safe
// for concurrent use.
type Scheduler struct {
	onReady  func(string)
	failFast bool
	logger   logging.Logger

	mu         sync.Mutex
	tasks      map[string]*Task
	dependents map[string][]string
}

// New constructs a Scheduler with optional overrides.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		onReady:    opts.OnReady,
		failFast:   opts.FailFast,
		logger:     opts.Logger,
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add inserts a task with its dependencies. Dependencies may reference tasks
// that have not been added yet; they count as not done until they are. An
// insertion that would close a cycle is rejected with *core.CycleError and
// leaves the graph unchanged. A task with no unfinished dependencies becomes
// ready immediately.
func (s *Scheduler) Add(id string, dependencies ...string) error {
	s.mu.Lock()

	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task %q already exists", id)
	}
	for _, dep := range dependencies {
		if dep == id || s.reaches(dep, id) {
			s.mu.Unlock()
			return &core.CycleError{TaskID: id, Dependency: dep}
		}
	}

	t := &Task{ID: id, Dependencies: append([]string(nil), dependencies...), Status: StatusPending}
	s.tasks[id] = t
	for _, dep := range dependencies {
		s.dependents[dep] = append(s.dependents[dep], id)
	}

	var ready []string
	if s.depsDone(t) {
		t.Status = StatusReady
		ready = append(ready, id)
	}
	s.mu.Unlock()

	s.notify(ready)

	return nil
}

// MarkRunning transitions a ready task to running.
func (s *Scheduler) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	if t.Status != StatusReady {
		return fmt.Errorf("task %q is %s, not ready", id, t.Status)
	}
	t.Status = StatusRunning
	return nil
}

// MarkDone transitions a task to done and promotes every dependent whose
// dependencies are now fully resolved, emitting one ready notification per
// newly unblocked task.
func (s *Scheduler) MarkDone(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %q not found", id)
	}
	if t.Status != StatusReady && t.Status != StatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("task %q is %s, cannot complete", id, t.Status)
	}
	t.Status = StatusDone

	var ready []string
	for _, depID := range s.dependents[id] {
		dt := s.tasks[depID]
		if dt != nil && dt.Status == StatusPending && s.depsDone(dt) {
			dt.Status = StatusReady
			ready = append(ready, depID)
		}
	}
	s.mu.Unlock()

	s.logger.Debug("taskgraph.done", "task", id, "unblocked", len(ready))
	s.notify(ready)

	return nil
}

// MarkFailed transitions a task to failed. Under fail-soft (the default)
// dependents stay pending forever; under fail-fast all transitive pending
// dependents are failed as well.
func (s *Scheduler) MarkFailed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	if t.Status == StatusDone || t.Status == StatusFailed {
		return fmt.Errorf("task %q is %s, cannot fail", id, t.Status)
	}
	t.Status = StatusFailed

	if s.failFast {
		s.cascadeFailure(id)
	}

	s.logger.Debug("taskgraph.failed", "task", id, "fail_fast", s.failFast)

	return nil
}

// Remove deletes a task that has not started running, so a batch insert
// can be rolled back when a later insertion is rejected. Dependency edges
// pointing at the removed id from other tasks stay as forward references.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	if t.Status != StatusPending && t.Status != StatusReady {
		return fmt.Errorf("task %q is %s, cannot remove", id, t.Status)
	}
	delete(s.tasks, id)
	for _, dep := range t.Dependencies {
		deps := s.dependents[dep]
		for i, d := range deps {
			if d == id {
				s.dependents[dep] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
	}
	return nil
}

// IsReady reports whether the task is currently in the ready state.
func (s *Scheduler) IsReady(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return ok && t.Status == StatusReady
}

// Status returns the current status of a task and whether it exists.
func (s *Scheduler) Status(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return StatusPending, false
	}
	return t.Status, true
}

// Tasks returns a snapshot copy of all tasks.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := *t
		c.Dependencies = append([]string(nil), t.Dependencies...)
		out = append(out, c)
	}
	return out
}

// reaches reports whether `to` is reachable from `from` by following
// dependency edges. Unknown ids terminate the walk. Caller holds the lock.
func (s *Scheduler) reaches(from, to string) bool {
	t, ok := s.tasks[from]
	if !ok {
		return false
	}
	for _, dep := range t.Dependencies {
		if dep == to || s.reaches(dep, to) {
			return true
		}
	}
	return false
}

// depsDone reports whether all dependencies of t exist and are done. Caller
// holds the lock.
func (s *Scheduler) depsDone(t *Task) bool {
	for _, dep := range t.Dependencies {
		dt, ok := s.tasks[dep]
		if !ok || dt.Status != StatusDone {
			return false
		}
	}
	return true
}

// cascadeFailure fails all transitive pending dependents. Caller holds the
// lock.
func (s *Scheduler) cascadeFailure(id string) {
	for _, depID := range s.dependents[id] {
		dt := s.tasks[depID]
		if dt == nil || dt.Status == StatusDone || dt.Status == StatusFailed {
			continue
		}
		dt.Status = StatusFailed
		s.cascadeFailure(depID)
	}
}

func (s *Scheduler) notify(ready []string) {
	if s.onReady == nil {
		return
	}
	for _, id := range ready {
		s.onReady(id)
	}
}
