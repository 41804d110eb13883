// Package role implements the observe-think-act state machine executed by
// every agent in the mesh. A Role owns its Memory, receives bus deliveries
// through a buffered inbox and publishes action results back to the bus.
// Reaction behavior is pluggable through the Strategy interface; the two
// built-in strategies are Interleaved (one action per cycle, selected by
// matching fresh messages against an ordered rule list) and PlanThenAct
// (an up-front ordered plan whose steps are gated on the task graph).
package role
