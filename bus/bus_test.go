package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/internal/testutil"
)

func runBus(t *testing.T, b *Bus) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	return cancel
}

// -------------------- Publish & Sequence Tests --------------------

func TestPublishAssignsGapFreeSequence(t *testing.T) {
	b := New()

	for i := 0; i < 5; i++ {
		msg := core.NewMessage("x", "writer", "draft")
		require.NoError(t, b.Publish(context.Background(), msg))
	}

	assert.Equal(t, uint64(5), b.LastSeq())
	all := b.History(0, "")
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestPublishConcurrentSequenceUnique(t *testing.T) {
	b := New(func(o *Options) { o.QueueSize = 512 })

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := core.NewMessage("x", "writer", "draft")
			assert.NoError(t, b.Publish(context.Background(), msg))
		}()
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, n)
	for _, m := range b.History(0, "") {
		_, dup := seen[m.Seq]
		assert.False(t, dup, "duplicate seq %d", m.Seq)
		seen[m.Seq] = struct{}{}
		assert.Greater(t, m.Seq, uint64(0))
		assert.LessOrEqual(t, m.Seq, uint64(n))
	}
	assert.Len(t, seen, n)
}

func TestPublishOverloaded(t *testing.T) {
	b := New(func(o *Options) { o.QueueSize = 2 })

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("1", "w", "draft")))
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("2", "w", "draft")))

	err := b.Publish(context.Background(), core.NewMessage("3", "w", "draft"))
	assert.ErrorIs(t, err, core.ErrBusOverloaded)

	// The rejected message leaves no trace: history and seq are untouched.
	assert.Equal(t, uint64(2), b.LastSeq())
	assert.Equal(t, 2, b.Len())
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	b.Close()

	err := b.Publish(context.Background(), core.NewMessage("x", "w", "draft"))
	assert.ErrorIs(t, err, core.ErrBusClosed)

	// History stays readable after close.
	assert.Equal(t, 0, b.Len())
}

// -------------------- Tag Validation Tests --------------------

func TestClosedTagSet(t *testing.T) {
	b := New(func(o *Options) { o.Tags = []string{"draft"} })

	assert.NoError(t, b.Publish(context.Background(), core.NewMessage("x", "w", "draft")))

	err := b.Publish(context.Background(), core.NewMessage("x", "w", "reviw"))
	assert.ErrorIs(t, err, core.ErrUnknownTag)

	sub := testutil.NewCollectSubscriber("editor")
	assert.NoError(t, b.Subscribe("draft", sub))
	assert.ErrorIs(t, b.Subscribe("reviw", sub), core.ErrUnknownTag)

	b.RegisterTags("review")
	assert.NoError(t, b.Subscribe("review", sub))
}

func TestOpenTagSetAcceptsAnything(t *testing.T) {
	b := New()
	sub := testutil.NewCollectSubscriber("editor")
	assert.NoError(t, b.Subscribe("anything", sub))
	assert.NoError(t, b.Publish(context.Background(), core.NewMessage("x", "w", "whatever")))
}

// -------------------- Subscription & Delivery Tests --------------------

func TestDeliveryByExactTag(t *testing.T) {
	b := New()
	drafts := testutil.NewCollectSubscriber("editor")
	reviews := testutil.NewCollectSubscriber("qa")
	require.NoError(t, b.Subscribe("draft", drafts))
	require.NoError(t, b.Subscribe("review", reviews))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("d1", "writer", "draft")))
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("r1", "editor", "review")))

	assert.True(t, testutil.WaitFor(2*time.Second, func() bool {
		return drafts.Len() == 1 && reviews.Len() == 1
	}))
	assert.Equal(t, "d1", drafts.Messages()[0].Content)
	assert.Equal(t, "r1", reviews.Messages()[0].Content)
}

func TestSubscribeIdempotent(t *testing.T) {
	b := New()
	sub := testutil.NewCollectSubscriber("editor")
	require.NoError(t, b.Subscribe("draft", sub))
	require.NoError(t, b.Subscribe("draft", sub))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("d1", "writer", "draft")))

	assert.True(t, testutil.WaitFor(2*time.Second, func() bool { return sub.Len() >= 1 }))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sub.Len(), "double subscription must not double-deliver")
}

func TestUnsubscribeBoundary(t *testing.T) {
	b := New()
	sub := testutil.NewCollectSubscriber("editor")
	require.NoError(t, b.Subscribe("draft", sub))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("before", "writer", "draft")))
	require.True(t, testutil.WaitFor(2*time.Second, func() bool { return sub.Len() == 1 }))

	b.Unsubscribe("draft", sub)
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("after", "writer", "draft")))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sub.Len())
	assert.Equal(t, "before", sub.Messages()[0].Content)
}

func TestSendToRestrictsRecipients(t *testing.T) {
	b := New()
	editor := testutil.NewCollectSubscriber("editor")
	qa := testutil.NewCollectSubscriber("qa")
	require.NoError(t, b.Subscribe("draft", editor))
	require.NoError(t, b.Subscribe("draft", qa))

	cancel := runBus(t, b)
	defer cancel()

	msg := core.NewMessage("private", "writer", "draft")
	msg.SendTo = []string{"qa"}
	require.NoError(t, b.Publish(context.Background(), msg))

	assert.True(t, testutil.WaitFor(2*time.Second, func() bool { return qa.Len() == 1 }))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, editor.Len())
}

func TestNoSubscribersIsNotAnError(t *testing.T) {
	b := New()
	cancel := runBus(t, b)
	defer cancel()

	assert.NoError(t, b.Publish(context.Background(), core.NewMessage("x", "w", "nobody_listens")))
	assert.Equal(t, 1, b.Len())
}

// -------------------- Failure Isolation Tests --------------------

func TestSubscriberFailureIsolatedAndRepublished(t *testing.T) {
	b := New()
	failing := testutil.NewCollectSubscriber("flaky")
	failing.Err = errors.New("inbox exploded")
	healthy := testutil.NewCollectSubscriber("steady")
	errWatcher := testutil.NewCollectSubscriber("watcher")
	require.NoError(t, b.Subscribe("draft", failing))
	require.NoError(t, b.Subscribe("draft", healthy))
	require.NoError(t, b.Subscribe(core.TagError, errWatcher))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("d1", "writer", "draft")))

	// The healthy subscriber still gets the message and the failure shows
	// up as an error message on the bus.
	assert.True(t, testutil.WaitFor(2*time.Second, func() bool {
		return healthy.Len() == 1 && errWatcher.Len() == 1
	}))
	errMsg := errWatcher.Messages()[0]
	assert.True(t, errMsg.IsError())
	assert.Equal(t, "flaky", errMsg.SentFrom)
	assert.Equal(t, "draft", errMsg.Metadata["origin_tag"])
}

func TestErrorDeliveryFailureNotRepublished(t *testing.T) {
	b := New()
	failing := testutil.NewCollectSubscriber("flaky")
	failing.Err = errors.New("still broken")
	require.NoError(t, b.Subscribe(core.TagError, failing))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewErrorMessage("writer", "draft", errors.New("boom"))))

	require.True(t, testutil.WaitFor(2*time.Second, func() bool { return failing.Len() == 1 }))
	time.Sleep(100 * time.Millisecond)

	// No feedback loop: exactly one message ever hit the bus.
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, failing.Len())
}

func TestSubscriberPanicIsContained(t *testing.T) {
	b := New()
	require.NoError(t, b.Subscribe("draft", panicSubscriber{}))
	healthy := testutil.NewCollectSubscriber("steady")
	require.NoError(t, b.Subscribe("draft", healthy))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("d1", "writer", "draft")))

	assert.True(t, testutil.WaitFor(2*time.Second, func() bool { return healthy.Len() == 1 }))
	// The panic became an error message instead of killing the run loop.
	assert.True(t, testutil.WaitFor(2*time.Second, func() bool {
		return len(b.ByCauseBy(core.TagError)) == 1
	}))
}

type panicSubscriber struct{}

func (panicSubscriber) Name() string { return "panicky" }

func (panicSubscriber) Deliver(context.Context, core.Message) error { panic("kaboom") }

// -------------------- Dispatch Ordering Tests --------------------

func TestPerSubscriberFIFO(t *testing.T) {
	b := New()
	sub := testutil.NewCollectSubscriber("editor")
	require.NoError(t, b.Subscribe("draft", sub))

	cancel := runBus(t, b)
	defer cancel()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(context.Background(), core.NewMessage("x", "writer", "draft")))
	}

	require.True(t, testutil.WaitFor(5*time.Second, func() bool { return sub.Len() == n }))
	msgs := sub.Messages()
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq, "deliveries out of publish order")
	}
}

func TestDispatchTimeoutAdvancesLoop(t *testing.T) {
	b := New(func(o *Options) { o.DispatchTimeout = 50 * time.Millisecond })
	slow := testutil.NewCollectSubscriber("slow")
	slow.Delay = time.Second
	fast := testutil.NewCollectSubscriber("fast")
	require.NoError(t, b.Subscribe("draft", slow))
	require.NoError(t, b.Subscribe("draft", fast))

	cancel := runBus(t, b)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), core.NewMessage("m1", "w", "draft")))
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("m2", "w", "draft")))

	// The stalled subscriber must not wedge the loop for the fast one.
	assert.True(t, testutil.WaitFor(2*time.Second, func() bool { return fast.Len() == 2 }))
}

// -------------------- History Tests --------------------

func TestHistoryFilterAndWindow(t *testing.T) {
	b := New()
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("1", "writer", "draft")))
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("2", "editor", "review")))
	require.NoError(t, b.Publish(context.Background(), core.NewMessage("3", "writer", "draft")))

	byWriter := b.History(0, "writer")
	assert.Len(t, byWriter, 2)

	byTag := b.History(0, "review")
	require.Len(t, byTag, 1)
	assert.Equal(t, "2", byTag[0].Content)

	window := b.History(2, "")
	require.Len(t, window, 2)
	assert.Equal(t, "2", window[0].Content)
	assert.Equal(t, "3", window[1].Content)
}

func TestSince(t *testing.T) {
	b := New()
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Publish(context.Background(), core.NewMessage("x", "w", "draft")))
	}

	tail := b.Since(2)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(3), tail[0].Seq)
	assert.Equal(t, uint64(4), tail[1].Seq)

	assert.Empty(t, b.Since(99))
}
