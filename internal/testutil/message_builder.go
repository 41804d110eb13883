package testutil

import (
	"github.com/hupe1980/rolemesh/core"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().From("writer").CauseBy("draft").Content("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	id       string
	content  string
	causeBy  string
	sentFrom string
	sendTo   []string
	metadata map[string]string
}

// NewMessageBuilder creates a builder with default sender "tester" and
// causation tag "test".
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{sentFrom: "tester", causeBy: "test"}
}

// ID overrides the auto-generated message ID (chainable). Use mainly where
// determinism or duplicate detection matters.
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// Content sets the message content (chainable).
func (b *MessageBuilder) Content(c string) *MessageBuilder { b.content = c; return b }

// CauseBy sets the causation tag (chainable).
func (b *MessageBuilder) CauseBy(tag string) *MessageBuilder { b.causeBy = tag; return b }

// From sets the sender name (chainable).
func (b *MessageBuilder) From(name string) *MessageBuilder { b.sentFrom = name; return b }

// To restricts delivery to the named subscribers (chainable).
func (b *MessageBuilder) To(names ...string) *MessageBuilder {
	b.sendTo = append(b.sendTo, names...)
	return b
}

// Meta sets a metadata key/value pair (chainable).
func (b *MessageBuilder) Meta(key, val string) *MessageBuilder {
	if b.metadata == nil {
		b.metadata = map[string]string{}
	}
	b.metadata[key] = val
	return b
}

// Build returns the assembled core.Message.
func (b *MessageBuilder) Build() core.Message {
	msg := core.NewMessage(b.content, b.sentFrom, b.causeBy)
	if b.id != "" {
		msg.ID = b.id
	}
	msg.SendTo = append([]string(nil), b.sendTo...)
	if b.metadata != nil {
		msg.Metadata = b.metadata
	}
	return msg
}
