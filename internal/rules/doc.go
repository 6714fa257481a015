// Package rules implements the automation engine: rule definitions,
// condition evaluation, ordered action execution, and concurrent
// execution tracking with cooperative cancellation.
//
// A Rule pairs a flat list of AND-ed conditions (sensor readings from
// the telemetry store, or live device properties) with an ordered list
// of actions (device commands, presence updates, notifications).
// Schedule rules fire at most once per schedule timestamp; the
// last_triggered marker is persisted before execution moves on.
//
// The Coordinator runs each execution on its own background goroutine,
// tracked in an ExecutionStore and observable over the event feed.
// Cancellation is cooperative: a request takes effect at the top of the
// next rule or device iteration, never mid-action.
//
// Dependencies on the rest of the system (device registry, telemetry
// store, notification channels, event transport) are consumer-defined
// interfaces in interfaces.go, so the package has no import edges into
// the infrastructure layers.
package rules
