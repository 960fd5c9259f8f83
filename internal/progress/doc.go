// Package progress carries sync-run telemetry: run and pair milestones are
// emitted without blocking the orchestrator, batched on a background
// goroutine, and fanned out to sinks such as logs, Prometheus, and the
// in-memory run history.
package progress
