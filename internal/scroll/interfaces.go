package scroll

import (
	"context"
	"time"
)

// SettingsStore persists the singleton settings record.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	PutSettings(ctx context.Context, settings Settings) error
}

// SnapshotStore persists one snapshot per name-year key.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot JournalSnapshot) error
	ListSnapshots(ctx context.Context) ([]JournalSnapshot, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// StatusStore persists the latest sync status.
type StatusStore interface {
	SaveStatus(ctx context.Context, status Status) error
	GetStatus(ctx context.Context) (Status, error)
}

// WorkCache stores fetched work records keyed by normalized DOI URL.
type WorkCache interface {
	CacheWork(ctx context.Context, doi string, work Work) error
	GetCachedWork(ctx context.Context, doi string) (Work, bool, error)
}

// StarStore keeps the user's bookmarked papers.
type StarStore interface {
	StarPaper(ctx context.Context, starred StarredPaper) error
	UnstarPaper(ctx context.Context, doi string) error
	// GetStarred returns the bookmark for doi or ErrNotFound.
	GetStarred(ctx context.Context, doi string) (StarredPaper, error)
	ListStarred(ctx context.Context) ([]StarredPaper, error)
}

// Store is the full persistence surface. Every put is independently durable
// and leaves entries under other keys untouched.
type Store interface {
	SettingsStore
	SnapshotStore
	StatusStore
	WorkCache
	StarStore
	Close() error
}

// Lister walks a journal listing to exhaustion for one year.
type Lister interface {
	FetchAllIdentifiers(ctx context.Context, journal Journal, year int, email string) ([]string, error)
}

// WorkFetcher resolves works by DOI or by random sampling.
type WorkFetcher interface {
	FetchWork(ctx context.Context, doi string, email string) (Work, error)
	SampleWork(ctx context.Context, issn string, year int, email string) (Work, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
