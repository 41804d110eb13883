package bus

import (
	"context"

	"github.com/hupe1980/rolemesh/core"
)

// Archive is a durable, write-only log of accepted messages. The in-memory
// history remains the source of truth for the bus's lifetime; an archive
// only adds persistence across process restarts for inspection and replay
// tooling. It is never used for redelivery.
type Archive interface {
	// Append records one accepted message. Called under the bus's publish
	// lock, so implementations should be fast or buffer internally.
	Append(ctx context.Context, msg core.Message) error

	// Since returns archived messages with sequence numbers greater than
	// seq, in sequence order.
	Since(ctx context.Context, seq uint64) ([]core.Message, error)

	// Close releases underlying resources.
	Close() error
}
