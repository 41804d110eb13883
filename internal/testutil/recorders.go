package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/rolemesh/core"
)

// CollectSubscriber implements core.Subscriber and records every delivered
// message. An optional Err makes each delivery fail, for failure-isolation
// tests.
type CollectSubscriber struct {
	name string

	mu   sync.Mutex
	msgs []core.Message

	// Err, when non-nil, is returned from every Deliver call.
	Err error
	// Delay, when non-zero, stalls each delivery (bounded by ctx).
	Delay time.Duration
}

// NewCollectSubscriber creates a recording subscriber with the given name.
func NewCollectSubscriber(name string) *CollectSubscriber {
	return &CollectSubscriber{name: name}
}

// Name implements core.Subscriber.
func (s *CollectSubscriber) Name() string { return s.name }

// Deliver implements core.Subscriber.
func (s *CollectSubscriber) Deliver(ctx context.Context, msg core.Message) error {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return s.Err
}

// Messages returns a snapshot of everything delivered so far.
func (s *CollectSubscriber) Messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Message(nil), s.msgs...)
}

// Len returns the number of deliveries so far.
func (s *CollectSubscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// RecordingPublisher captures published messages. It satisfies the role
// package's Publisher interface so role behavior can be tested without a
// running bus.
type RecordingPublisher struct {
	mu   sync.Mutex
	msgs []core.Message

	// Err, when non-nil, is returned from every Publish call.
	Err error
}

// Publish records the message.
func (p *RecordingPublisher) Publish(_ context.Context, msg core.Message) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	return p.Err
}

// Messages returns a snapshot of everything published so far.
func (p *RecordingPublisher) Messages() []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Message(nil), p.msgs...)
}

// Len returns the number of publishes so far.
func (p *RecordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

// WaitFor polls cond every few milliseconds until it returns true or the
// timeout elapses. It reports whether the condition was met.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
