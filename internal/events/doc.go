// Package events carries rule engine progress broadcasts to the outside
// world: the MQTT executions topic for machine consumers and the
// WebSocket hub for connected UIs. Delivery is best effort on both
// paths.
package events
