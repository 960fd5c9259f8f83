// Package sinks implements run event consumers: structured logging,
// Prometheus counters, and a bounded in-memory run history.
package sinks
