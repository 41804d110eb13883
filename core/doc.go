// Package core defines the shared data types and contracts of rolemesh:
// the immutable Message exchanged over the bus, the append-only Memory log
// owned by roles and the bus, the Action and Subscriber contracts, and the
// error taxonomy used across packages. Higher layers (bus, role, taskgraph,
// tool) depend on core; core depends on nothing but the standard library
// and uuid.
package core
