// Package api hosts the HTTP server, middleware, and REST handlers for the
// paper feed. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/config and /v1/journals for settings; mutations that change the
//     journal set or year range start a sync.
//   - POST /v1/sync, GET /v1/status, /v1/snapshots and /v1/runs for syncing.
//   - GET /v1/papers, /v1/papers/random and /v1/papers/sample for the feed.
//   - /v1/starred for bookmarks, /v1/starred/{doi} to check one.
package api
