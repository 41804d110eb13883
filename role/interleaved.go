package role

import (
	"context"
	"sync"

	"github.com/hupe1980/rolemesh/core"
)

// Rule binds a causation tag to the action it triggers.
type Rule struct {
	Tag    string
	Action core.Action
}

// Interleaved selects one action per cycle by matching observed messages
// against the rule list. Every matching message eventually triggers its
// action: matches not consumed this cycle are queued and handed out on
// subsequent cycles (reported via HasPending), so a batch with several
// actionable messages drops none of them. When several queued matches
// compete, rules win in the order they were declared, which makes selection
// deterministic rather than dependent on delivery interleaving.
type Interleaved struct {
	rules []Rule

	mu      sync.Mutex
	pending []core.Message
}

// NewInterleaved constructs the strategy from rules in priority order.
func NewInterleaved(rules ...Rule) *Interleaved {
	return &Interleaved{rules: rules}
}

// Next implements Strategy.
func (s *Interleaved) Next(_ context.Context, turn *Turn) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range turn.Fresh {
		if s.matches(turn.Fresh[i]) {
			s.pending = append(s.pending, turn.Fresh[i])
		}
	}

	for _, rule := range s.rules {
		for i := range s.pending {
			if s.pending[i].CauseBy == rule.Tag {
				msg := s.pending[i]
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				return &Step{Action: rule.Action, Trigger: &msg}, nil
			}
		}
	}
	return nil, core.ErrNoActionSelected
}

// HasPending implements Strategy: matched triggers are queued until each
// has had its cycle.
func (s *Interleaved) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Complete implements Strategy; the trigger was consumed by Next already.
func (s *Interleaved) Complete(*Step, error) {}

// matches reports whether any rule reacts to the message. Caller holds the
// lock.
func (s *Interleaved) matches(msg core.Message) bool {
	for _, rule := range s.rules {
		if msg.CauseBy == rule.Tag {
			return true
		}
	}
	return false
}

// Triggers returns the set of tags the rule list reacts to, in declaration
// order without duplicates. Convenient for deriving subscriptions.
func (s *Interleaved) Triggers() []string {
	seen := make(map[string]struct{}, len(s.rules))
	var out []string
	for _, rule := range s.rules {
		if _, ok := seen[rule.Tag]; ok {
			continue
		}
		seen[rule.Tag] = struct{}{}
		out = append(out, rule.Tag)
	}
	return out
}
