// Package main hosts the paperscroll entrypoint.
//
// Architecture overview:
//   - Sync: the orchestrator in internal/syncer walks every configured
//     (journal, year) pair through the Crossref listing client and reports
//     status, snapshot, error, and done events over a channel. A single
//     receiver goroutine turns those events into store writes.
//   - Feed: internal/feed flattens stored snapshots into a shuffled DOI pool
//     and resolves entries through the OpenAlex client, caching each work. The
//     sampler draws random works per journal and year instead.
//   - Persistence: bbolt by default under the XDG data directory, with
//     in-memory and Postgres drivers selected by storage.driver.
//   - Plumbing: Viper loads config from .env, an optional file, and
//     PAPERSCROLL_* env vars; zap logs; Prometheus metrics are served on
//     /metrics; the progress hub batches run telemetry to log, metrics, and
//     run-history sinks.
//
// Quick checklist:
//   - Run the API: paperscroll serve --config config.yaml
//   - One-shot sync: paperscroll sync
//   - Read papers: paperscroll feed -n 5, or paperscroll feed --sample
//   - Manage journals: paperscroll journal add aer 0002-8282
package main
