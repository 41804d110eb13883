package role

import (
	"context"
	"sync"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/taskgraph"
)

// PlanStep is one entry of an up-front plan. DependsOn names the tasks that
// must be done before this step may run; they are registered with the
// scheduler when the plan is built.
type PlanStep struct {
	Action    core.Action
	TaskID    string
	DependsOn []string
	Params    map[string]any
}

// Planner builds an ordered plan from the first observed turn. It may
// consult the generation backend; failures abort this cycle and the role
// retries planning on the next delivery.
type Planner interface {
	Plan(ctx context.Context, turn *Turn) ([]PlanStep, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, turn *Turn) ([]PlanStep, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, turn *Turn) ([]PlanStep, error) {
	return f(ctx, turn)
}

// StaticPlanner always returns the same pre-built step sequence.
type StaticPlanner struct {
	Steps []PlanStep
}

// Plan implements Planner.
func (p StaticPlanner) Plan(context.Context, *Turn) ([]PlanStep, error) {
	return append([]PlanStep(nil), p.Steps...), nil
}

// PlanThenAct builds a full ordered plan before executing any step, then
// advances one step per think cycle. Steps carrying a TaskID are gated on
// the scheduler: an unready step yields core.ErrNoActionSelected and is
// retried next cycle, so a role blocked on upstream work suspends instead
// of busy-looping.
type PlanThenAct struct {
	planner   Planner
	scheduler *taskgraph.Scheduler

	mu   sync.Mutex
	plan []PlanStep
	pos  int
}

// NewPlanThenAct constructs the strategy. scheduler may be shared between
// roles so cross-role dependencies gate each other.
func NewPlanThenAct(planner Planner, scheduler *taskgraph.Scheduler) *PlanThenAct {
	return &PlanThenAct{planner: planner, scheduler: scheduler}
}

// Next implements Strategy.
func (s *PlanThenAct) Next(ctx context.Context, turn *Turn) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.plan) {
		if len(turn.Fresh) == 0 {
			return nil, core.ErrNoActionSelected
		}
		plan, err := s.planner.Plan(ctx, turn)
		if err != nil {
			return nil, err
		}
		if len(plan) == 0 {
			return nil, core.ErrNoActionSelected
		}
		s.plan = plan
		s.pos = 0
		if err := s.registerTasks(); err != nil {
			s.plan, s.pos = nil, 0
			return nil, err
		}
	}

	step := s.plan[s.pos]
	if step.TaskID != "" {
		if !s.scheduler.IsReady(step.TaskID) {
			return nil, core.ErrNoActionSelected
		}
		if err := s.scheduler.MarkRunning(step.TaskID); err != nil {
			return nil, err
		}
	}
	return &Step{Action: step.Action, Params: step.Params, TaskID: step.TaskID}, nil
}

// HasPending implements Strategy.
func (s *PlanThenAct) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos < len(s.plan)
}

// Complete implements Strategy: updates the task graph and advances past
// the executed step. A failed step still advances (fail-soft); its
// dependents are held back by the task graph, not by the plan cursor.
func (s *PlanThenAct) Complete(step *Step, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step.TaskID != "" {
		if err == nil {
			_ = s.scheduler.MarkDone(step.TaskID)
		} else {
			_ = s.scheduler.MarkFailed(step.TaskID)
		}
	}
	if s.pos < len(s.plan) {
		s.pos++
	}
}

// registerTasks adds plan tasks to the scheduler. Tasks declared elsewhere
// (shared graphs) are left as they are. Registration is transactional: a
// rejected insertion rolls back every task this plan added, so a bad plan
// leaves no orphans wedging later plans that reuse the same ids. Caller
// holds the lock.
func (s *PlanThenAct) registerTasks() error {
	var added []string
	for _, step := range s.plan {
		if step.TaskID == "" {
			continue
		}
		if _, exists := s.scheduler.Status(step.TaskID); exists {
			continue
		}
		if err := s.scheduler.Add(step.TaskID, step.DependsOn...); err != nil {
			for i := len(added) - 1; i >= 0; i-- {
				_ = s.scheduler.Remove(added[i])
			}
			return err
		}
		added = append(added, step.TaskID)
	}
	return nil
}
