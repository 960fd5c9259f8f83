// Package scroll defines the core types shared across the sync engine, the
// sampling clients, the stores, and the feed: journals, settings, snapshots,
// work records, and the error taxonomy.
package scroll
