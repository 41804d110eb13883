// Package rolemesh provides a high-level façade over the message bus, the
// role runtime and the task scheduler, enabling rapid construction of
// multi-role systems. Most applications interact with this package by:
//  1. Creating a Team via New() (optionally overriding bus/scheduler/logging)
//  2. Hiring one or more roles (Hire), whose declared subscriptions are
//     registered with the bus
//  3. Starting the team (Start) and kicking off a message chain (Publish)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a SQLite archive and a structured logger.
package rolemesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/rolemesh/bus"
	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/logging"
	"github.com/hupe1980/rolemesh/role"
	"github.com/hupe1980/rolemesh/taskgraph"
)

// Options configure a Team.
type Options struct {
	// BusOptions are forwarded to the underlying bus.
	BusOptions []func(o *bus.Options)
	// SchedulerOptions are forwarded to the shared task scheduler.
	SchedulerOptions []func(o *taskgraph.Options)
	// ValidateTags switches the bus to a closed tag set seeded from hired
	// roles' subscriptions plus the reserved tags. Publishing or
	// subscribing outside that set then fails with core.ErrUnknownTag.
	ValidateTags bool
	// Logger receives structured diagnostics from the team itself.
	Logger logging.Logger
}

// Team aggregates the bus, a shared task scheduler and the hired roles, and
// owns their lifecycles.
type Team struct {
	bus       *bus.Bus
	scheduler *taskgraph.Scheduler
	logger    logging.Logger

	validateTags bool

	mu      sync.Mutex
	roles   []*role.Role
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// New creates a Team with optional overrides.
func New(optFns ...func(o *Options)) *Team {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	t := &Team{
		bus:          bus.New(opts.BusOptions...),
		scheduler:    taskgraph.New(opts.SchedulerOptions...),
		logger:       opts.Logger,
		validateTags: opts.ValidateTags,
	}
	if opts.ValidateTags {
		t.bus.RegisterTags(core.TagError, core.TagUserRequirement)
	}
	return t
}

// Bus exposes the underlying bus for history queries.
func (t *Team) Bus() *bus.Bus { return t.bus }

// Scheduler exposes the shared task scheduler.
func (t *Team) Scheduler() *taskgraph.Scheduler { return t.scheduler }

// Hire adds a role: registers its declared subscription tags and wires it
// to the bus. Hiring after Start also starts the role's loop.
func (t *Team) Hire(r *role.Role) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tags := r.Subscriptions()
	if t.validateTags {
		t.bus.RegisterTags(tags...)
	}
	for _, tag := range tags {
		if err := t.bus.Subscribe(tag, r); err != nil {
			return fmt.Errorf("hire %s: %w", r.Name(), err)
		}
	}
	name := r.Name()
	r.Attach(t.bus, func() { t.bus.UnsubscribeAll(name) })
	t.roles = append(t.roles, r)

	if t.started {
		t.startRole(r)
	}

	t.logger.Info("team.hired", "role", name, "subscriptions", len(tags))

	return nil
}

// Start launches the bus delivery loop and every hired role. It returns
// immediately; the loops run until Shutdown or context cancellation.
func (t *Team) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("team already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	t.runCtx = ctx
	t.cancel = cancel
	t.started = true

	t.done.Add(1)
	go func() {
		defer t.done.Done()
		if err := t.bus.Run(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("team.bus.stopped", "error", err)
		}
	}()

	for _, r := range t.roles {
		t.startRole(r)
	}

	return nil
}

// startRole launches one role loop. Caller holds the lock.
func (t *Team) startRole(r *role.Role) {
	ctx := t.runCtx
	t.done.Add(1)
	go func() {
		defer t.done.Done()
		if err := r.Run(ctx); err != nil {
			t.logger.Error("team.role.stopped", "role", r.Name(), "error", err)
		}
	}()
}

// Publish injects a message into the bus, typically to kick off a chain.
func (t *Team) Publish(ctx context.Context, msg core.Message) error {
	return t.bus.Publish(ctx, msg)
}

// History returns the trailing window of the global message log, optionally
// filtered by sender or causation tag.
func (t *Team) History(limit int, filterBy string) []core.Message {
	return t.bus.History(limit, filterBy)
}

// Shutdown stops all roles (unsubscribing their registrations), closes the
// bus to new publishes and waits up to grace for in-flight work to finish.
// The message history stays readable afterwards.
func (t *Team) Shutdown(grace time.Duration) {
	t.mu.Lock()
	roles := append([]*role.Role(nil), t.roles...)
	cancel := t.cancel
	t.mu.Unlock()

	for _, r := range roles {
		r.Stop()
	}
	t.bus.Close()
	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() { t.done.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(grace):
		t.logger.Warn("team.shutdown.grace_exceeded", "grace", grace)
	}
}
