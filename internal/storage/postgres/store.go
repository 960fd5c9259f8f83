// Package postgres provides a Postgres-backed scroll.Store for shared deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const singletonID = "current"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
	key TEXT PRIMARY KEY,
	issn TEXT NOT NULL,
	year INTEGER NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
	id TEXT PRIMARY KEY,
	message TEXT NOT NULL,
	progress DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS work_cache (
	doi TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS starred (
	doi TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	starred_at TIMESTAMPTZ NOT NULL
)`,
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

var _ scroll.Store = (*Store)(nil)

// Store implements scroll.Store with one JSONB row per record.
type Store struct {
	pool pool
}

// NewStore connects to Postgres and applies the schema.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: p}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// GetSettings implements scroll.SettingsStore.
func (s *Store) GetSettings(ctx context.Context) (scroll.Settings, error) {
	var settings scroll.Settings
	if err := s.getJSON(ctx, `SELECT data FROM settings WHERE id = $1`, singletonID, &settings); err != nil {
		return scroll.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// PutSettings implements scroll.SettingsStore.
func (s *Store) PutSettings(ctx context.Context, settings scroll.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	query := `
INSERT INTO settings (id, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, singletonID, data); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// SaveSnapshot implements scroll.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot scroll.JournalSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	query := `
INSERT INTO snapshots (key, issn, year, data, updated_at) VALUES ($1, $2, $3, $4, now())
ON CONFLICT (key) DO UPDATE SET issn = EXCLUDED.issn, year = EXCLUDED.year,
	data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, snapshot.Key(), snapshot.ISSN, snapshot.Year, data); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snapshot.Key(), err)
	}
	return nil
}

// ListSnapshots implements scroll.SnapshotStore.
func (s *Store) ListSnapshots(ctx context.Context) ([]scroll.JournalSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM snapshots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []scroll.JournalSnapshot{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap scroll.JournalSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteSnapshot implements scroll.SnapshotStore.
func (s *Store) DeleteSnapshot(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// SaveStatus implements scroll.StatusStore.
func (s *Store) SaveStatus(ctx context.Context, status scroll.Status) error {
	query := `
INSERT INTO sync_status (id, message, progress, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET message = EXCLUDED.message, progress = EXCLUDED.progress,
	updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, singletonID, status.Message, status.Progress); err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	return nil
}

// GetStatus implements scroll.StatusStore.
func (s *Store) GetStatus(ctx context.Context) (scroll.Status, error) {
	var status scroll.Status
	err := s.pool.QueryRow(ctx, `SELECT message, progress FROM sync_status WHERE id = $1`, singletonID).
		Scan(&status.Message, &status.Progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return scroll.Status{}, scroll.ErrNotFound
	}
	if err != nil {
		return scroll.Status{}, fmt.Errorf("load status: %w", err)
	}
	return status, nil
}

// CacheWork implements scroll.WorkCache.
func (s *Store) CacheWork(ctx context.Context, doi string, work scroll.Work) error {
	data, err := json.Marshal(work)
	if err != nil {
		return fmt.Errorf("marshal work: %w", err)
	}
	query := `
INSERT INTO work_cache (doi, data, cached_at) VALUES ($1, $2, now())
ON CONFLICT (doi) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at`
	if _, err := s.pool.Exec(ctx, query, scroll.NormalizeDOI(doi), data); err != nil {
		return fmt.Errorf("cache work: %w", err)
	}
	return nil
}

// GetCachedWork implements scroll.WorkCache.
func (s *Store) GetCachedWork(ctx context.Context, doi string) (scroll.Work, bool, error) {
	var work scroll.Work
	err := s.getJSON(ctx, `SELECT data FROM work_cache WHERE doi = $1`, scroll.NormalizeDOI(doi), &work)
	if errors.Is(err, scroll.ErrNotFound) {
		return scroll.Work{}, false, nil
	}
	if err != nil {
		return scroll.Work{}, false, fmt.Errorf("load cached work: %w", err)
	}
	return work, true, nil
}

// StarPaper implements scroll.StarStore.
func (s *Store) StarPaper(ctx context.Context, starred scroll.StarredPaper) error {
	data, err := json.Marshal(starred)
	if err != nil {
		return fmt.Errorf("marshal starred paper: %w", err)
	}
	query := `
INSERT INTO starred (doi, data, starred_at) VALUES ($1, $2, $3)
ON CONFLICT (doi) DO UPDATE SET data = EXCLUDED.data, starred_at = EXCLUDED.starred_at`
	if _, err := s.pool.Exec(ctx, query, scroll.NormalizeDOI(starred.Paper.DOI), data, starred.StarredAt); err != nil {
		return fmt.Errorf("star paper: %w", err)
	}
	return nil
}

// UnstarPaper implements scroll.StarStore.
func (s *Store) UnstarPaper(ctx context.Context, doi string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM starred WHERE doi = $1`, scroll.NormalizeDOI(doi)); err != nil {
		return fmt.Errorf("unstar paper: %w", err)
	}
	return nil
}

// GetStarred implements scroll.StarStore.
func (s *Store) GetStarred(ctx context.Context, doi string) (scroll.StarredPaper, error) {
	var sp scroll.StarredPaper
	err := s.getJSON(ctx, `SELECT data FROM starred WHERE doi = $1`, scroll.NormalizeDOI(doi), &sp)
	if errors.Is(err, scroll.ErrNotFound) {
		return scroll.StarredPaper{}, err
	}
	if err != nil {
		return scroll.StarredPaper{}, fmt.Errorf("load starred paper: %w", err)
	}
	return sp, nil
}

// ListStarred implements scroll.StarStore.
func (s *Store) ListStarred(ctx context.Context) ([]scroll.StarredPaper, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM starred ORDER BY starred_at DESC, doi`)
	if err != nil {
		return nil, fmt.Errorf("list starred: %w", err)
	}
	defer rows.Close()

	var out []scroll.StarredPaper
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan starred: %w", err)
		}
		var sp scroll.StarredPaper
		if err := json.Unmarshal(data, &sp); err != nil {
			return nil, fmt.Errorf("decode starred: %w", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list starred: %w", err)
	}
	return out, nil
}

func (s *Store) getJSON(ctx context.Context, query string, key string, dest any) error {
	var data []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return scroll.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
