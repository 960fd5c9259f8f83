// Package memory provides an in-process scroll.Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

var _ scroll.Store = (*Store)(nil)

// Store keeps every namespace in RWMutex-guarded maps and hands out copies.
type Store struct {
	mu        sync.RWMutex
	settings  *scroll.Settings
	status    *scroll.Status
	snapshots map[string]scroll.JournalSnapshot
	works     map[string]scroll.Work
	starred   map[string]scroll.StarredPaper
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		snapshots: make(map[string]scroll.JournalSnapshot),
		works:     make(map[string]scroll.Work),
		starred:   make(map[string]scroll.StarredPaper),
	}
}

// GetSettings returns the stored settings or scroll.ErrNotFound.
func (s *Store) GetSettings(_ context.Context) (scroll.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return scroll.Settings{}, scroll.ErrNotFound
	}
	return s.settings.Clone(), nil
}

// PutSettings replaces the settings record.
func (s *Store) PutSettings(_ context.Context, settings scroll.Settings) error {
	cp := settings.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &cp
	return nil
}

// SaveSnapshot overwrites the snapshot stored under its name-year key.
func (s *Store) SaveSnapshot(_ context.Context, snapshot scroll.JournalSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Key()] = snapshot.Clone()
	return nil
}

// ListSnapshots returns every snapshot ordered by key.
func (s *Store) ListSnapshots(_ context.Context) ([]scroll.JournalSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scroll.JournalSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// DeleteSnapshot removes a snapshot; missing keys are not an error.
func (s *Store) DeleteSnapshot(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}

// SaveStatus replaces the status record.
func (s *Store) SaveStatus(_ context.Context, status scroll.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status
	return nil
}

// GetStatus returns the latest status or scroll.ErrNotFound.
func (s *Store) GetStatus(_ context.Context) (scroll.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == nil {
		return scroll.Status{}, scroll.ErrNotFound
	}
	return *s.status, nil
}

// CacheWork stores a work record under its normalized DOI.
func (s *Store) CacheWork(_ context.Context, doi string, work scroll.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works[scroll.NormalizeDOI(doi)] = work
	return nil
}

// GetCachedWork looks up a cached work by DOI.
func (s *Store) GetCachedWork(_ context.Context, doi string) (scroll.Work, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	work, ok := s.works[scroll.NormalizeDOI(doi)]
	return work, ok, nil
}

// StarPaper bookmarks a paper keyed by its DOI URL.
func (s *Store) StarPaper(_ context.Context, starred scroll.StarredPaper) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starred[scroll.NormalizeDOI(starred.Paper.DOI)] = starred
	return nil
}

// UnstarPaper removes a bookmark; missing DOIs are not an error.
func (s *Store) UnstarPaper(_ context.Context, doi string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starred, scroll.NormalizeDOI(doi))
	return nil
}

// GetStarred looks up one bookmark by DOI.
func (s *Store) GetStarred(_ context.Context, doi string) (scroll.StarredPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.starred[scroll.NormalizeDOI(doi)]
	if !ok {
		return scroll.StarredPaper{}, scroll.ErrNotFound
	}
	return sp, nil
}

// ListStarred returns bookmarks, newest first.
func (s *Store) ListStarred(_ context.Context) ([]scroll.StarredPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scroll.StarredPaper, 0, len(s.starred))
	for _, sp := range s.starred {
		out = append(out, sp)
	}
	scroll.SortStarred(out)
	return out, nil
}

// Close implements scroll.Store.
func (s *Store) Close() error {
	return nil
}
