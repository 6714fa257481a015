// Package notify delivers rule-triggered notifications across pluggable
// channels (MQTT topics, HTTP webhooks, the structured log).
//
// The Dispatcher invokes each requested channel exactly once per
// notification and reports independent per-channel results back to the
// rule engine, so one failing channel never masks or aborts another.
package notify
