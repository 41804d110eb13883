package role

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/taskgraph"
)

func noopAction(name string) core.Action {
	return core.ActionFunc{
		ActionName: name,
		Fn:         func(context.Context, *core.ActionContext) (string, error) { return name, nil },
	}
}

func freshTurn(contents ...string) *Turn {
	turn := &Turn{Role: "planner", Memory: core.NewMemory()}
	for _, c := range contents {
		turn.Fresh = append(turn.Fresh, core.NewMessage(c, "tester", "kickoff"))
	}
	return turn
}

// -------------------- Interleaved Strategy Tests --------------------

func TestInterleavedEarliestRuleWins(t *testing.T) {
	high := noopAction("high")
	low := noopAction("low")
	s := NewInterleaved(
		Rule{Tag: "urgent", Action: high},
		Rule{Tag: "routine", Action: low},
	)

	// Both tags present in one batch, in reverse delivery order: the rule
	// declared first still wins.
	turn := &Turn{
		Role: "triage",
		Fresh: []core.Message{
			core.NewMessage("later", "a", "routine"),
			core.NewMessage("now", "b", "urgent"),
		},
		Memory: core.NewMemory(),
	}

	step, err := s.Next(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, "high", step.Action.Name())
	require.NotNil(t, step.Trigger)
	assert.Equal(t, "now", step.Trigger.Content)
}

func TestInterleavedQueuesEveryMatchInBatch(t *testing.T) {
	s := NewInterleaved(
		Rule{Tag: "urgent", Action: noopAction("high")},
		Rule{Tag: "routine", Action: noopAction("low")},
	)

	turn := &Turn{
		Role: "triage",
		Fresh: []core.Message{
			core.NewMessage("later", "a", "routine"),
			core.NewMessage("now", "b", "urgent"),
		},
		Memory: core.NewMemory(),
	}

	first, err := s.Next(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, "high", first.Action.Name())
	assert.True(t, s.HasPending(), "the unconsumed match stays queued")

	// The second match surfaces on the next cycle even with nothing fresh.
	second, err := s.Next(context.Background(), &Turn{Role: "triage", Memory: core.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, "low", second.Action.Name())
	assert.Equal(t, "later", second.Trigger.Content)
	assert.False(t, s.HasPending())

	_, err = s.Next(context.Background(), &Turn{Role: "triage", Memory: core.NewMemory()})
	assert.ErrorIs(t, err, core.ErrNoActionSelected)
}

func TestInterleavedNoMatch(t *testing.T) {
	s := NewInterleaved(Rule{Tag: "wanted", Action: noopAction("react")})

	turn := &Turn{Fresh: []core.Message{core.NewMessage("x", "a", "other")}, Memory: core.NewMemory()}
	_, err := s.Next(context.Background(), turn)
	assert.ErrorIs(t, err, core.ErrNoActionSelected)

	assert.False(t, s.HasPending())
}

// -------------------- PlanThenAct Strategy Tests --------------------

func TestPlanThenActGatesOnTaskGraph(t *testing.T) {
	sched := taskgraph.New()
	s := NewPlanThenAct(StaticPlanner{Steps: []PlanStep{
		{Action: noopAction("design"), TaskID: "design"},
		{Action: noopAction("build"), TaskID: "build", DependsOn: []string{"design"}},
	}}, sched)

	assert.False(t, s.HasPending())

	// First turn builds the plan and hands out the first step.
	step, err := s.Next(context.Background(), freshTurn("go"))
	require.NoError(t, err)
	assert.Equal(t, "design", step.Action.Name())
	assert.True(t, s.HasPending())

	// The second step is blocked until the first completes.
	s.Complete(step, nil)
	st, _ := sched.Status("design")
	assert.Equal(t, taskgraph.StatusDone, st)

	step, err = s.Next(context.Background(), freshTurn())
	require.NoError(t, err)
	assert.Equal(t, "build", step.Action.Name())

	s.Complete(step, nil)
	assert.False(t, s.HasPending())
}

func TestPlanThenActBlockedStepYields(t *testing.T) {
	sched := taskgraph.New()
	// An externally owned gate the plan depends on.
	require.NoError(t, sched.Add("external"))
	require.NoError(t, sched.MarkRunning("external"))

	s := NewPlanThenAct(StaticPlanner{Steps: []PlanStep{
		{Action: noopAction("follow"), TaskID: "follow", DependsOn: []string{"external"}},
	}}, sched)

	_, err := s.Next(context.Background(), freshTurn("go"))
	assert.ErrorIs(t, err, core.ErrNoActionSelected)
	assert.True(t, s.HasPending(), "blocked plan keeps its pending work")

	require.NoError(t, sched.MarkDone("external"))

	step, err := s.Next(context.Background(), freshTurn())
	require.NoError(t, err)
	assert.Equal(t, "follow", step.Action.Name())
}

func TestPlanThenActFailedStepAdvancesCursor(t *testing.T) {
	sched := taskgraph.New()
	s := NewPlanThenAct(StaticPlanner{Steps: []PlanStep{
		{Action: noopAction("risky"), TaskID: "risky"},
		{Action: noopAction("dependent"), TaskID: "dependent", DependsOn: []string{"risky"}},
		{Action: noopAction("independent"), TaskID: "independent"},
	}}, sched)

	step, err := s.Next(context.Background(), freshTurn("go"))
	require.NoError(t, err)
	require.Equal(t, "risky", step.Action.Name())
	s.Complete(step, errors.New("boom"))

	st, _ := sched.Status("risky")
	assert.Equal(t, taskgraph.StatusFailed, st)

	// The cursor moved past the failed step, but its dependent is held
	// back by the graph and never becomes ready.
	_, err = s.Next(context.Background(), freshTurn())
	assert.ErrorIs(t, err, core.ErrNoActionSelected)
	assert.True(t, s.HasPending())
}

func TestPlanThenActPlannerErrorPropagates(t *testing.T) {
	sched := taskgraph.New()
	s := NewPlanThenAct(PlannerFunc(func(context.Context, *Turn) ([]PlanStep, error) {
		return nil, errors.New("cannot plan")
	}), sched)

	_, err := s.Next(context.Background(), freshTurn("go"))
	assert.EqualError(t, err, "cannot plan")
	assert.False(t, s.HasPending())
}

func TestPlanThenActCyclicPlanRejected(t *testing.T) {
	sched := taskgraph.New()
	s := NewPlanThenAct(StaticPlanner{Steps: []PlanStep{
		{Action: noopAction("a"), TaskID: "a", DependsOn: []string{"b"}},
		{Action: noopAction("b"), TaskID: "b", DependsOn: []string{"a"}},
	}}, sched)

	_, err := s.Next(context.Background(), freshTurn("go"))
	var cycleErr *core.CycleError
	assert.ErrorAs(t, err, &cycleErr)
	assert.False(t, s.HasPending(), "a rejected plan is discarded")

	// Registration is transactional: the task added before the cycle was
	// hit must not linger in the shared scheduler.
	_, exists := sched.Status("a")
	assert.False(t, exists, "rejected plan left an orphan task behind")

	// A later valid plan reusing the id proceeds on the same scheduler.
	retry := NewPlanThenAct(StaticPlanner{Steps: []PlanStep{
		{Action: noopAction("a"), TaskID: "a"},
	}}, sched)
	step, err := retry.Next(context.Background(), freshTurn("again"))
	require.NoError(t, err)
	assert.Equal(t, "a", step.Action.Name())
}

func TestPlanThenActReplansAfterExhaustion(t *testing.T) {
	sched := taskgraph.New()
	round := 0
	s := NewPlanThenAct(PlannerFunc(func(_ context.Context, turn *Turn) ([]PlanStep, error) {
		round++
		taskID := turn.Fresh[0].Content
		return []PlanStep{{Action: noopAction(taskID), TaskID: taskID}}, nil
	}), sched)

	step, err := s.Next(context.Background(), freshTurn("first"))
	require.NoError(t, err)
	assert.Equal(t, "first", step.Action.Name())
	s.Complete(step, nil)

	// Exhausted plan plus no fresh input: nothing to do.
	_, err = s.Next(context.Background(), freshTurn())
	assert.ErrorIs(t, err, core.ErrNoActionSelected)

	// New input triggers a fresh plan.
	step, err = s.Next(context.Background(), freshTurn("second"))
	require.NoError(t, err)
	assert.Equal(t, "second", step.Action.Name())
	assert.Equal(t, 2, round)
}
