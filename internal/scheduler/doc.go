// Package scheduler drives the rule engine's periodic work from a cron
// runner: all-devices sweeps when schedule rules come due, and the
// retention prune over the active-execution set.
package scheduler
