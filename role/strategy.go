package role

import (
	"context"

	"github.com/hupe1980/rolemesh/core"
)

// Turn is the read view a strategy decides on: the messages freshly
// observed this cycle plus the role's full memory.
type Turn struct {
	Role   string
	Fresh  []core.Message
	Memory *core.Memory
}

// Step is one selected unit of work. Trigger carries the message that
// matched (interleaved) and TaskID the gating task (plan-then-act); either
// may be empty.
type Step struct {
	Action  core.Action
	Params  map[string]any
	Trigger *core.Message
	TaskID  string
}

// Strategy selects the next step each think phase. Next returns
// core.ErrNoActionSelected when nothing applies this cycle; the role then
// suspends until the next delivery (or, when steps are pending, until the
// next poll tick). Complete feeds the act outcome back so plan-based
// strategies can advance and update the task graph.
type Strategy interface {
	Next(ctx context.Context, turn *Turn) (*Step, error)

	// HasPending reports whether the strategy has work queued that does not
	// require a new delivery (an unexecuted plan step, for instance). The
	// role uses it to decide between blocking on the inbox and polling.
	HasPending() bool

	// Complete records the outcome of an executed step. err is nil on
	// success and the terminal *core.ActionError on retry exhaustion.
	Complete(step *Step, err error)
}
