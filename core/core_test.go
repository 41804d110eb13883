package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// -------------------- Message Tests --------------------

func TestNewMessage(t *testing.T) {
	msg := NewMessage("hello", "writer", "draft")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "writer", msg.SentFrom)
	assert.Equal(t, "draft", msg.CauseBy)
	assert.Zero(t, msg.Seq)
	assert.False(t, msg.Timestamp.IsZero())

	other := NewMessage("hello", "writer", "draft")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestMessagePredicates(t *testing.T) {
	msg := NewMessage("x", "writer", "draft")

	assert.True(t, msg.IsCausedBy("draft"))
	assert.False(t, msg.IsCausedBy("review"))
	assert.True(t, msg.IsFrom("writer"))
	assert.False(t, msg.IsFrom("editor"))
	assert.False(t, msg.IsError())
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("writer", "draft", errors.New("boom"))

	assert.True(t, msg.IsError())
	assert.Equal(t, TagError, msg.CauseBy)
	assert.Equal(t, "boom", msg.Content)
	assert.Equal(t, "draft", msg.Metadata["origin_tag"])

	// Without an originating tag there is no metadata to correlate.
	msg = NewErrorMessage("writer", "", errors.New("boom"))
	assert.Empty(t, msg.Metadata)
}

// -------------------- Memory Tests --------------------

func TestMemoryAddDedupes(t *testing.T) {
	mem := NewMemory()
	msg := NewMessage("one", "writer", "draft")

	assert.True(t, mem.Add(msg))
	assert.False(t, mem.Add(msg))
	assert.Equal(t, 1, mem.Len())
	assert.True(t, mem.Contains(msg.ID))
}

func TestMemoryInsertionOrder(t *testing.T) {
	mem := NewMemory()
	first := NewMessage("one", "writer", "draft")
	second := NewMessage("two", "editor", "review")
	third := NewMessage("three", "writer", "draft")

	mem.Add(first)
	mem.Add(second)
	mem.Add(third)

	all := mem.All()
	assert.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "two", all[1].Content)
	assert.Equal(t, "three", all[2].Content)
}

func TestMemoryFilters(t *testing.T) {
	mem := NewMemory()
	mem.Add(NewMessage("one", "writer", "draft"))
	mem.Add(NewMessage("two", "editor", "review"))
	mem.Add(NewMessage("three", "writer", "draft"))

	drafts := mem.ByCauseBy("draft")
	assert.Len(t, drafts, 2)

	fromWriter := mem.BySender("writer")
	assert.Len(t, fromWriter, 2)

	assert.Empty(t, mem.ByCauseBy("missing"))
}

func TestMemoryRecent(t *testing.T) {
	mem := NewMemory()
	for _, c := range []string{"a", "b", "c"} {
		mem.Add(NewMessage(c, "writer", "draft"))
	}

	recent := mem.Recent(2)
	assert.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Content)
	assert.Equal(t, "c", recent[1].Content)

	assert.Len(t, mem.Recent(10), 3)
	assert.Nil(t, mem.Recent(0))
}

// -------------------- Error Tests --------------------

func TestActionErrorUnwrap(t *testing.T) {
	cause := errors.New("backend down")
	err := &ActionError{Action: "draft", Attempts: 3, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "draft")
}

func TestCycleError(t *testing.T) {
	err := &CycleError{TaskID: "a", Dependency: "b"}
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}
