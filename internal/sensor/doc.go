// Package sensor feeds and serves the telemetry the rule engine's
// sensor conditions read.
//
// The ingest pipeline subscribes to device state topics, folds reported
// properties into the device registry, and mirrors numeric values into
// InfluxDB. InfluxStore answers the engine's latest-reading lookups
// with Flux queries; MemoryStore is the influx-free fallback used in
// tests and minimal deployments.
package sensor
