package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/logging"
)

// Options configure a Bus.
type Options struct {
	// QueueSize bounds the delivery queue. Publish fails fast with
	// core.ErrBusOverloaded when the queue is full; it never blocks the
	// publisher.
	QueueSize int
	// DispatchTimeout bounds how long the bus waits for the fan-out of a
	// single message before advancing to the next one.
	DispatchTimeout time.Duration
	// Tags, when non-empty, closes the causation tag set: subscribe and
	// publish reject tags outside it with core.ErrUnknownTag. Tag matching
	// itself is always exact-string equality, no wildcards.
	Tags []string
	// Archive, when set, receives every accepted message as a durable
	// write-only log. Archive failures are logged, never fatal.
	Archive Archive
	// Logger receives structured bus diagnostics.
	Logger logging.Logger
}

// Bus is the message environment. Safe for concurrent use; a single Run
// loop performs all deliveries.
type Bus struct {
	queueSize       int
	dispatchTimeout time.Duration
	archive         Archive
	logger          logging.Logger

	mu      sync.Mutex
	seq     uint64
	history *core.Memory
	subs    map[string]map[string]core.Subscriber
	tags    map[string]struct{}
	queue   chan core.Message
	closed  bool
}

// New constructs a Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		QueueSize:       1024,
		DispatchTimeout: 60 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Bus{
		queueSize:       opts.QueueSize,
		dispatchTimeout: opts.DispatchTimeout,
		archive:         opts.Archive,
		logger:          opts.Logger,
		history:         core.NewMemory(),
		subs:            make(map[string]map[string]core.Subscriber),
		queue:           make(chan core.Message, opts.QueueSize),
	}
	if len(opts.Tags) > 0 {
		b.tags = make(map[string]struct{}, len(opts.Tags))
		for _, t := range opts.Tags {
			b.tags[t] = struct{}{}
		}
	}
	return b
}

// RegisterTags extends the declared tag set. The first registration switches
// the bus from an open tag set to a closed, validated one.
func (b *Bus) RegisterTags(tags ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tags == nil {
		b.tags = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		b.tags[t] = struct{}{}
	}
}

func (b *Bus) tagKnown(tag string) bool {
	if b.tags == nil {
		return true
	}
	_, ok := b.tags[tag]
	return ok
}

// Publish accepts a message: assigns the next sequence number, records it in
// history (and the archive, if any) and enqueues it for delivery. Sequence
// assignment is serialized, so concurrent publishers observe a strict,
// gap-free numbering. Returns core.ErrBusOverloaded when the queue is full
// and core.ErrBusClosed after Close.
func (b *Bus) Publish(ctx context.Context, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return core.ErrBusClosed
	}
	if !b.tagKnown(msg.CauseBy) {
		return fmt.Errorf("publish %q: %w", msg.CauseBy, core.ErrUnknownTag)
	}
	if len(b.queue) == cap(b.queue) {
		return core.ErrBusOverloaded
	}

	b.seq++
	msg.Seq = b.seq
	b.history.Add(msg)

	if b.archive != nil {
		if err := b.archive.Append(ctx, msg); err != nil {
			b.logger.Warn("bus.archive.append_failed", "seq", msg.Seq, "error", err)
		}
	}

	// Cannot block: capacity was checked under the same lock and the run
	// loop only drains the queue.
	b.queue <- msg

	b.logger.Debug("bus.publish", "seq", msg.Seq, "cause_by", msg.CauseBy, "sent_from", msg.SentFrom)

	return nil
}

// Subscribe registers a subscriber for a causation tag. Registration is
// idempotent per (tag, subscriber name); repeated calls leave exactly one
// registration. Unknown tags are rejected when the tag set is closed.
func (b *Bus) Subscribe(tag string, sub core.Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tagKnown(tag) {
		return fmt.Errorf("subscribe %q: %w", tag, core.ErrUnknownTag)
	}
	set, ok := b.subs[tag]
	if !ok {
		set = make(map[string]core.Subscriber)
		b.subs[tag] = set
	}
	set[sub.Name()] = sub

	b.logger.Debug("bus.subscribe", "tag", tag, "subscriber", sub.Name())

	return nil
}

// Unsubscribe removes a registration. Not being subscribed is a no-op.
func (b *Bus) Unsubscribe(tag string, sub core.Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[tag]; ok {
		delete(set, sub.Name())
	}
}

// UnsubscribeAll removes every registration of the named subscriber. Used
// when a role is stopped.
func (b *Bus) UnsubscribeAll(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		delete(set, name)
	}
}

// Run drives the delivery loop until ctx is cancelled. Only a single Run
// may be active per bus.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.queue:
			b.dispatch(ctx, msg)
		}
	}
}

// Close marks the bus as closed; subsequent Publish calls fail with
// core.ErrBusClosed. History remains readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// dispatch fans a message out to the subscribers of its causation tag and
// joins the fan-out before returning, bounded by the dispatch timeout.
func (b *Bus) dispatch(ctx context.Context, msg core.Message) {
	start := time.Now()
	targets := b.snapshot(msg)
	if len(targets) == 0 {
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, b.dispatchTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub core.Subscriber) {
			defer wg.Done()
			b.deliver(deliverCtx, sub, msg)
		}(sub)
	}

	joined := make(chan struct{})
	go func() { wg.Wait(); close(joined) }()

	select {
	case <-joined:
	case <-deliverCtx.Done():
		b.logger.Warn("bus.dispatch.timeout", "seq", msg.Seq, "cause_by", msg.CauseBy)
	}

	if ml, ok := b.logger.(*logging.MeshLogger); ok {
		ml.LogDispatch(msg.CauseBy, msg.Seq, len(targets), time.Since(start))
	}
}

// snapshot copies the current subscriber set for the message's tag,
// restricted to explicit recipients when the message names any.
func (b *Bus) snapshot(msg core.Message) []core.Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[msg.CauseBy]
	if len(set) == 0 {
		return nil
	}

	var recipients map[string]struct{}
	if len(msg.SendTo) > 0 {
		recipients = make(map[string]struct{}, len(msg.SendTo))
		for _, r := range msg.SendTo {
			recipients[r] = struct{}{}
		}
	}

	out := make([]core.Subscriber, 0, len(set))
	for name, sub := range set {
		if recipients != nil {
			if _, ok := recipients[name]; !ok {
				continue
			}
		}
		out = append(out, sub)
	}
	return out
}

// deliver invokes a single subscriber, isolating failures and panics. A
// failure is republished under the reserved error tag unless the failed
// delivery itself carried it.
func (b *Bus) deliver(ctx context.Context, sub core.Subscriber, msg core.Message) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("subscriber panic: %v", r)
			}
		}()
		err = sub.Deliver(ctx, msg)
	}()
	if err == nil {
		return
	}

	b.logger.Error("bus.deliver.failed", "subscriber", sub.Name(), "seq", msg.Seq, "error", err)

	if msg.IsError() {
		return
	}
	errMsg := core.NewErrorMessage(sub.Name(), msg.CauseBy, err)
	if pubErr := b.Publish(ctx, errMsg); pubErr != nil {
		b.logger.Warn("bus.deliver.error_republish_failed", "error", pubErr)
	}
}

// History returns up to limit messages, newest-biased (the trailing window
// of the log), optionally filtered by sender or causation tag. limit <= 0
// returns everything matching.
func (b *Bus) History(limit int, filterBy string) []core.Message {
	all := b.history.All()
	if filterBy != "" {
		filtered := all[:0:0]
		for _, m := range all {
			if m.SentFrom == filterBy || m.CauseBy == filterBy {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// Since returns all recorded messages with a sequence number greater than
// seq, in sequence order.
func (b *Bus) Since(seq uint64) []core.Message {
	all := b.history.All()
	out := all[:0:0]
	for _, m := range all {
		if m.Seq > seq {
			out = append(out, m)
		}
	}
	return out
}

// ByCauseBy returns all recorded messages published under the given tag.
func (b *Bus) ByCauseBy(tag string) []core.Message {
	return b.history.ByCauseBy(tag)
}

// Len returns the number of messages recorded in history.
func (b *Bus) Len() int { return b.history.Len() }

// LastSeq returns the highest sequence number assigned so far.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
