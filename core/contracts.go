package core

import "context"

// Subscriber is the minimal contract the bus delivers to. Roles implement it
// by pushing the message into an inbox; Deliver must return promptly (the
// bus joins all deliveries for one message before advancing) and may fail,
// in which case the bus isolates and reports the failure without aborting
// delivery to other subscribers.
type Subscriber interface {
	// Name identifies the subscriber. Subscription set semantics are keyed
	// on it: one registration per (tag, name) pair.
	Name() string

	// Deliver hands a published message to the subscriber.
	Deliver(ctx context.Context, msg Message) error
}

// ActionContext carries the inputs an action may consult: the executing
// role's identity, the freshly observed messages that triggered this cycle,
// a read view of the role's memory, and free-form parameters supplied by
// the reaction strategy (plan step arguments, for instance).
type ActionContext struct {
	Role    string
	Fresh   []Message
	History []Message
	Params  map[string]any
}

// Action is a single unit of work executed during a role's act phase. The
// returned string becomes the content of a new message published under the
// action's name as causation tag. Execute should honor ctx cancellation;
// failures are retried by the role up to its configured attempt budget.
type Action interface {
	Name() string
	Execute(ctx context.Context, actx *ActionContext) (string, error)
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc struct {
	ActionName string
	Fn         func(ctx context.Context, actx *ActionContext) (string, error)
}

// Name returns the action's published identity.
func (a ActionFunc) Name() string { return a.ActionName }

// Execute invokes the wrapped function.
func (a ActionFunc) Execute(ctx context.Context, actx *ActionContext) (string, error) {
	return a.Fn(ctx, actx)
}
