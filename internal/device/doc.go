// Package device provides the device model, persistence, and control
// transport for Haven Core.
//
// # Architecture
//
// The package follows a repository + cached registry pattern:
//
//	Repository (interface)
//	    └── SQLiteRepository — persistence over database/sql
//	Registry — thread-safe in-memory cache over a Repository
//	Controller — MQTT command dispatch with optimistic state updates
//
// The Registry is the canonical read path: the rule engine and HTTP API
// resolve devices through it, never through the repository directly.
// Cache entries are deep copies in both directions so callers can never
// mutate cached state.
//
// # Property Bag
//
// A device's live state is a single JSON property bag (Properties).
// Telemetry ingest merges partial updates into it; rule conditions
// resolve dot-paths against it. Partial updates use SQLite's json_patch
// so concurrent writers never clobber unrelated keys.
//
// # Control
//
// The Controller publishes command messages to per-protocol MQTT topics
// (haven/command/{protocol}/{device_id}). Delivery failures are returned
// in the ControlResult rather than raised, so the rule engine can record
// them as per-action outcomes.
package device
