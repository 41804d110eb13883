package core

import "sync"

// Memory is an append-only, insertion-ordered log of messages. Each role
// owns exactly one Memory; the bus keeps its own for global history.
// Entries are never reordered or deleted. Add dedupes by message ID so a
// role can safely re-observe a delivery without corrupting its log.
//
// Concurrency: protected by RWMutex; all read accessors return copies.
type Memory struct {
	mu       sync.RWMutex
	messages []Message
	seen     map[string]struct{}
}

// NewMemory creates an empty memory log.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Add appends a message unless one with the same ID is already present.
// It reports whether the message was actually appended.
func (m *Memory) Add(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[msg.ID]; ok {
		return false
	}
	m.seen[msg.ID] = struct{}{}
	m.messages = append(m.messages, msg)
	return true
}

// Contains reports whether a message with the given ID has been added.
func (m *Memory) Contains(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[id]
	return ok
}

// All returns a copy of the full log in insertion order.
func (m *Memory) All() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ByCauseBy returns all messages produced under the given causation tag.
func (m *Memory) ByCauseBy(tag string) []Message {
	return m.filter(func(msg Message) bool { return msg.CauseBy == tag })
}

// BySender returns all messages sent by the given sender.
func (m *Memory) BySender(sender string) []Message {
	return m.filter(func(msg Message) bool { return msg.SentFrom == sender })
}

// Recent returns up to n of the most recently added messages, oldest first.
func (m *Memory) Recent(n int) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || len(m.messages) == 0 {
		return nil
	}
	if n > len(m.messages) {
		n = len(m.messages)
	}
	out := make([]Message, n)
	copy(out, m.messages[len(m.messages)-n:])
	return out
}

// Len returns the number of stored messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *Memory) filter(keep func(Message) bool) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Message
	for _, msg := range m.messages {
		if keep(msg) {
			out = append(out, msg)
		}
	}
	return out
}
