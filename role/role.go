package role

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/logging"
)

// Publisher is the slice of the bus a role needs: somewhere to publish
// action results. Keeping it an interface breaks the bus dependency and
// lets tests capture publishes directly.
type Publisher interface {
	Publish(ctx context.Context, msg core.Message) error
}

// Fallbacker is an optional interface an action may implement to supply a
// default result once the role's retry budget is exhausted. With a
// fallback, the role publishes the fallback content under the action's tag
// instead of an error message.
type Fallbacker interface {
	Fallback() string
}

// Options configure a Role.
type Options struct {
	// Profile and Goal frame the role's purpose; they travel into action
	// contexts via Params and are mainly consumed by generation actions.
	Profile string
	Goal    string
	// Subscriptions lists the causation tags the role wants delivered.
	Subscriptions []string
	// InboxSize bounds the delivery inbox. Deliver blocks (bounded by the
	// bus dispatch timeout) when the inbox is full.
	InboxSize int
	// MaxRetries bounds action execution attempts per step.
	MaxRetries int
	// RetryDelay is the base backoff between attempts; it doubles per
	// attempt.
	RetryDelay time.Duration
	// PollInterval is how often a role with pending strategy work (queued
	// triggers, unexecuted plan steps) re-enters think when no new
	// messages arrive.
	PollInterval time.Duration
	// Logger receives structured role diagnostics.
	Logger logging.Logger
}

// Role executes the observe-think-act cycle. It implements core.Subscriber
// so the bus can push deliveries into its inbox. One goroutine runs the
// cycle (Run); Deliver and the accessors are safe to call concurrently.
type Role struct {
	name     string
	profile  string
	goal     string
	subs     []string
	strategy Strategy

	memory *core.Memory
	inbox  chan core.Message

	maxRetries   int
	retryDelay   time.Duration
	pollInterval time.Duration
	logger       logging.Logger

	mu        sync.Mutex
	state     State
	publisher Publisher
	detach    func()
	stopped   chan struct{}
	stopOnce  sync.Once
}

// New constructs a Role with the given reaction strategy.
func New(name string, strategy Strategy, optFns ...func(o *Options)) *Role {
	opts := Options{
		InboxSize:    64,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 50 * time.Millisecond,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Role{
		name:         name,
		profile:      opts.Profile,
		goal:         opts.Goal,
		subs:         append([]string(nil), opts.Subscriptions...),
		strategy:     strategy,
		memory:       core.NewMemory(),
		inbox:        make(chan core.Message, opts.InboxSize),
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		stopped:      make(chan struct{}),
	}
}

// Name implements core.Subscriber.
func (r *Role) Name() string { return r.name }

// Profile returns the role's profile string.
func (r *Role) Profile() string { return r.profile }

// Goal returns the role's goal string.
func (r *Role) Goal() string { return r.goal }

// Subscriptions returns the causation tags the role wants delivered.
func (r *Role) Subscriptions() []string {
	return append([]string(nil), r.subs...)
}

// Memory returns the role's owned memory log.
func (r *Role) Memory() *core.Memory { return r.memory }

// State returns the current lifecycle state.
func (r *Role) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attach wires the role to its publisher and an optional detach hook that
// removes its subscriptions; both are invoked by the owning team.
func (r *Role) Attach(pub Publisher, detach func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = pub
	r.detach = detach
}

// Deliver implements core.Subscriber by pushing the message into the inbox.
// It blocks only while the inbox is full and gives up when ctx expires or
// the role has terminated.
func (r *Role) Deliver(ctx context.Context, msg core.Message) error {
	select {
	case <-r.stopped:
		return fmt.Errorf("role %s terminated", r.name)
	default:
	}
	select {
	case r.inbox <- msg:
		return nil
	case <-r.stopped:
		return fmt.Errorf("role %s terminated", r.name)
	case <-ctx.Done():
		return fmt.Errorf("role %s inbox full: %w", r.name, ctx.Err())
	}
}

// Stop terminates the role from any state and removes its bus
// registrations. In-flight work observes the stop signal at the next
// suspension point; the owning team bounds the wait.
func (r *Role) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		r.mu.Lock()
		r.state = StateTerminated
		detach := r.detach
		r.mu.Unlock()
		if detach != nil {
			detach()
		}
	})
}

// Run drives observe -> think -> act until the context is cancelled or the
// role is stopped. A cycle with nothing to do suspends on the inbox (or on
// the poll interval while plan steps are pending) rather than spinning.
func (r *Role) Run(ctx context.Context) error {
	defer r.setState(StateTerminated)

	for {
		r.setState(StateObserving)
		fresh, err := r.observe(ctx)
		if err != nil {
			if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		r.setState(StateThinking)
		turn := &Turn{Role: r.name, Fresh: fresh, Memory: r.memory}
		step, err := r.strategy.Next(ctx, turn)
		if err != nil {
			if errors.Is(err, core.ErrNoActionSelected) {
				r.setState(StateIdle)
				continue
			}
			r.logger.Error("role.think.failed", "role", r.name, "error", err)
			r.setState(StateIdle)
			continue
		}

		r.setState(StateActing)
		r.act(ctx, step, fresh)
		r.setState(StateIdle)
	}
}

// observe pulls newly delivered messages into memory and returns them.
// With no pending strategy work it blocks until the first delivery (the
// role's suspension point); with pending work it waits at most the poll
// interval so queued triggers and task-graph readiness changes are picked
// up without new messages.
func (r *Role) observe(ctx context.Context) ([]core.Message, error) {
	var fresh []core.Message

	if r.strategy.HasPending() {
		select {
		case msg := <-r.inbox:
			fresh = append(fresh, msg)
		case <-time.After(r.pollInterval):
		case <-r.stopped:
			return nil, errStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case msg := <-r.inbox:
			fresh = append(fresh, msg)
		case <-r.stopped:
			return nil, errStopped
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Drain whatever else has arrived without blocking.
drain:
	for {
		select {
		case msg := <-r.inbox:
			fresh = append(fresh, msg)
		default:
			break drain
		}
	}

	kept := fresh[:0]
	for _, msg := range fresh {
		if r.memory.Add(msg) {
			kept = append(kept, msg)
		}
	}

	if len(kept) > 0 {
		r.logger.Debug("role.observe", "role", r.name, "new_messages", len(kept))
	}

	return kept, nil
}

// act executes the step with bounded retry and exponential backoff. On
// success the result is published under the action's name and recorded in
// memory. On exhaustion the action's fallback is used when present;
// otherwise an ActionFailed error message is published so the failure is
// visible on the bus without killing any loop.
func (r *Role) act(ctx context.Context, step *Step, fresh []core.Message) {
	actx := &core.ActionContext{
		Role:    r.name,
		Fresh:   fresh,
		History: r.memory.All(),
		Params:  r.actionParams(step),
	}

	var (
		result string
		err    error
	)
	delay := r.retryDelay
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		start := time.Now()
		result, err = step.Action.Execute(ctx, actx)
		if ml, ok := r.logger.(*logging.MeshLogger); ok {
			ml.LogActionRun(step.Action.Name(), attempt, time.Since(start), err)
		}
		if err == nil {
			break
		}
		if attempt == r.maxRetries {
			break
		}
		r.logger.Warn("role.act.retry", "role", r.name, "action", step.Action.Name(), "attempt", attempt, "error", err)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-r.stopped:
			return
		case <-ctx.Done():
			return
		}
	}

	if err != nil {
		actErr := &core.ActionError{Action: step.Action.Name(), Attempts: r.maxRetries, Err: err}
		if fb, ok := step.Action.(Fallbacker); ok {
			if content := fb.Fallback(); content != "" {
				r.logger.Warn("role.act.fallback", "role", r.name, "action", step.Action.Name(), "error", actErr)
				r.publishResult(ctx, step, content)
				r.strategy.Complete(step, nil)
				return
			}
		}
		r.logger.Error("role.act.failed", "role", r.name, "action", step.Action.Name(), "error", actErr)
		r.publishError(ctx, step, actErr)
		r.strategy.Complete(step, actErr)
		return
	}

	r.publishResult(ctx, step, result)
	r.strategy.Complete(step, nil)
}

func (r *Role) actionParams(step *Step) map[string]any {
	params := map[string]any{
		"profile": r.profile,
		"goal":    r.goal,
	}
	for k, v := range step.Params {
		params[k] = v
	}
	if step.Trigger != nil {
		params["trigger"] = *step.Trigger
	}
	return params
}

func (r *Role) publishResult(ctx context.Context, step *Step, content string) {
	msg := core.NewMessage(content, r.name, step.Action.Name())
	r.memory.Add(msg)
	if err := r.publish(ctx, msg); err != nil {
		r.logger.Error("role.publish.failed", "role", r.name, "action", step.Action.Name(), "error", err)
	}
}

func (r *Role) publishError(ctx context.Context, step *Step, actErr error) {
	msg := core.NewErrorMessage(r.name, step.Action.Name(), actErr)
	r.memory.Add(msg)
	if err := r.publish(ctx, msg); err != nil {
		r.logger.Error("role.publish.failed", "role", r.name, "action", step.Action.Name(), "error", err)
	}
}

func (r *Role) publish(ctx context.Context, msg core.Message) error {
	r.mu.Lock()
	pub := r.publisher
	r.mu.Unlock()
	if pub == nil {
		return errors.New("role not attached to a bus")
	}
	return pub.Publish(ctx, msg)
}

func (r *Role) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateTerminated {
		return
	}
	r.state = s
}

// errStopped signals a clean Stop; Run converts it to a nil return.
var errStopped = errors.New("role stopped")
