// Package bolt persists scroll state in a single-file bbolt database.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

var (
	bucketSettings  = []byte("settings")
	bucketSnapshots = []byte("snapshots")
	bucketStatus    = []byte("status")
	bucketWorks     = []byte("works")
	bucketStarred   = []byte("starred")

	singletonKey = []byte("current")
)

var _ scroll.Store = (*Store)(nil)

// Store implements scroll.Store on top of bbolt. Every write is its own
// update transaction so unrelated keys are never rewritten.
type Store struct {
	db *bolt.DB
}

// Open creates the parent directory, opens path, and ensures every bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSettings, bucketSnapshots, bucketStatus, bucketWorks, bucketStarred} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(bucket, key []byte, dest any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get(key); v != nil {
			data = bytes.Clone(v)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (s *Store) put(bucket, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

func each[T any](s *Store, bucket []byte) ([]T, error) {
	var out []T
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			out = append(out, item)
			return nil
		})
	})
	return out, err
}

// GetSettings implements scroll.SettingsStore.
func (s *Store) GetSettings(_ context.Context) (scroll.Settings, error) {
	var settings scroll.Settings
	ok, err := s.get(bucketSettings, singletonKey, &settings)
	if err != nil {
		return scroll.Settings{}, err
	}
	if !ok {
		return scroll.Settings{}, scroll.ErrNotFound
	}
	return settings, nil
}

// PutSettings implements scroll.SettingsStore.
func (s *Store) PutSettings(_ context.Context, settings scroll.Settings) error {
	return s.put(bucketSettings, singletonKey, settings)
}

// SaveSnapshot implements scroll.SnapshotStore.
func (s *Store) SaveSnapshot(_ context.Context, snapshot scroll.JournalSnapshot) error {
	return s.put(bucketSnapshots, []byte(snapshot.Key()), snapshot)
}

// ListSnapshots returns snapshots in key order, which bbolt iteration guarantees.
func (s *Store) ListSnapshots(_ context.Context) ([]scroll.JournalSnapshot, error) {
	snaps, err := each[scroll.JournalSnapshot](s, bucketSnapshots)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []scroll.JournalSnapshot{}
	}
	return snaps, nil
}

// DeleteSnapshot implements scroll.SnapshotStore.
func (s *Store) DeleteSnapshot(_ context.Context, key string) error {
	return s.delete(bucketSnapshots, []byte(key))
}

// SaveStatus implements scroll.StatusStore.
func (s *Store) SaveStatus(_ context.Context, status scroll.Status) error {
	return s.put(bucketStatus, singletonKey, status)
}

// GetStatus implements scroll.StatusStore.
func (s *Store) GetStatus(_ context.Context) (scroll.Status, error) {
	var status scroll.Status
	ok, err := s.get(bucketStatus, singletonKey, &status)
	if err != nil {
		return scroll.Status{}, err
	}
	if !ok {
		return scroll.Status{}, scroll.ErrNotFound
	}
	return status, nil
}

// CacheWork implements scroll.WorkCache.
func (s *Store) CacheWork(_ context.Context, doi string, work scroll.Work) error {
	return s.put(bucketWorks, []byte(scroll.NormalizeDOI(doi)), work)
}

// GetCachedWork implements scroll.WorkCache.
func (s *Store) GetCachedWork(_ context.Context, doi string) (scroll.Work, bool, error) {
	var work scroll.Work
	ok, err := s.get(bucketWorks, []byte(scroll.NormalizeDOI(doi)), &work)
	if err != nil {
		return scroll.Work{}, false, err
	}
	return work, ok, nil
}

// StarPaper implements scroll.StarStore.
func (s *Store) StarPaper(_ context.Context, starred scroll.StarredPaper) error {
	return s.put(bucketStarred, []byte(scroll.NormalizeDOI(starred.Paper.DOI)), starred)
}

// UnstarPaper implements scroll.StarStore.
func (s *Store) UnstarPaper(_ context.Context, doi string) error {
	return s.delete(bucketStarred, []byte(scroll.NormalizeDOI(doi)))
}

// GetStarred implements scroll.StarStore.
func (s *Store) GetStarred(_ context.Context, doi string) (scroll.StarredPaper, error) {
	var starred scroll.StarredPaper
	ok, err := s.get(bucketStarred, []byte(scroll.NormalizeDOI(doi)), &starred)
	if err != nil {
		return scroll.StarredPaper{}, err
	}
	if !ok {
		return scroll.StarredPaper{}, scroll.ErrNotFound
	}
	return starred, nil
}

// ListStarred implements scroll.StarStore.
func (s *Store) ListStarred(_ context.Context) ([]scroll.StarredPaper, error) {
	starred, err := each[scroll.StarredPaper](s, bucketStarred)
	if err != nil {
		return nil, err
	}
	scroll.SortStarred(starred)
	return starred, nil
}
