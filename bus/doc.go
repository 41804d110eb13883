// Package bus implements the central publish/subscribe hub all roles
// communicate through. The bus owns the global message history (an
// append-only log with monotonically increasing sequence numbers), a bounded
// delivery queue and the tag -> subscriber mapping. All mutation of shared
// state goes through the bus's serialized entry points; no other component
// touches history or subscriptions directly.
//
// Delivery semantics: messages are dequeued in the order published and
// fanned out concurrently to the subscribers of their causation tag. The
// bus joins the fan-out (bounded by the dispatch timeout) before advancing,
// which yields FIFO delivery per subscriber. Subscriber failures are
// isolated: they are logged and republished under core.TagError without
// stopping siblings or the loop.
package bus
