package core

import (
	"time"

	"github.com/google/uuid"
)

// TagError is the reserved causation tag under which the bus and roles
// republish failures. Subscribers interested in error handling subscribe to
// it like any other tag; the bus never republishes failures of error-tag
// deliveries to avoid feedback loops.
const TagError = "rolemesh.error"

// TagUserRequirement is the conventional causation tag for messages injected
// by an external actor to kick off a message chain.
const TagUserRequirement = "rolemesh.user_requirement"

// Message is the immutable unit of communication between roles. After
// creation it should not be mutated; the bus stamps Seq on its own copy at
// publish time and that stamped copy is what history and subscribers see.
//
// CauseBy identifies the action (or external topic) that produced the
// message and is the key used for subscription routing. It is set exactly
// once at construction.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	CauseBy   string            `json:"cause_by"`
	SentFrom  string            `json:"sent_from"`
	SendTo    []string          `json:"send_to,omitempty"`
	Seq       uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh ID and UTC timestamp. Seq is
// zero until the bus accepts the message.
func NewMessage(content, sentFrom, causeBy string) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		CauseBy:   causeBy,
		SentFrom:  sentFrom,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates a message carrying a failure description under the
// reserved error tag. The originating tag (if any) is preserved in metadata
// so error subscribers can correlate.
func NewErrorMessage(sentFrom, origTag string, err error) Message {
	m := NewMessage(err.Error(), sentFrom, TagError)
	if origTag != "" {
		m.Metadata = map[string]string{"origin_tag": origTag}
	}
	return m
}

// IsCausedBy reports whether the message was produced under the given tag.
func (m Message) IsCausedBy(tag string) bool { return m.CauseBy == tag }

// IsFrom reports whether the message was sent by the given sender.
func (m Message) IsFrom(sender string) bool { return m.SentFrom == sender }

// IsError reports whether the message carries the reserved error tag.
func (m Message) IsError() bool { return m.CauseBy == TagError }

// NewID generates a UUID-based unique identifier used for messages and any
// other correlation handles in the framework.
func NewID() string { return uuid.NewString() }
