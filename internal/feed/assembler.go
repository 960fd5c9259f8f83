// Package feed turns stored snapshots into display-ready papers: a shuffled
// pool of DOIs is drained through the work cache and the OpenAlex client.
// A second mode samples random works per configured journal and year.
package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/metrics"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const defaultRandomAttempts = 10

// Store is what the assembler reads snapshots from and caches works in.
type Store interface {
	ListSnapshots(ctx context.Context) ([]scroll.JournalSnapshot, error)
	scroll.WorkCache
}

// SettingsSource supplies the contact email forwarded to OpenAlex and the
// journal and year range used for sampling.
type SettingsSource interface {
	Get(ctx context.Context) (scroll.Settings, error)
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithRand replaces the shuffle source.
func WithRand(r *rand.Rand) Option {
	return func(a *Assembler) { a.rng = r }
}

// Assembler owns the DOI pool. Calls are serialized.
type Assembler struct {
	store    Store
	works    scroll.WorkFetcher
	settings SettingsSource
	rng      *rand.Rand
	logger   *zap.Logger

	mu      sync.Mutex
	pool    []string
	lastErr error
}

// NewAssembler builds an Assembler with an empty pool; the first Next loads it.
func NewAssembler(store Store, works scroll.WorkFetcher, settings SettingsSource, logger *zap.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := uint64(time.Now().UnixNano())
	a := &Assembler{
		store:    store,
		works:    works,
		settings: settings,
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reload rebuilds the pool from the current snapshots and returns its size.
func (a *Assembler) Reload(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refill(ctx)
}

// Remaining reports how many DOIs are left in the pool.
func (a *Assembler) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pool)
}

// LastError returns the most recent per-item resolution failure, if any.
func (a *Assembler) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Next resolves up to n papers. Items that fail to resolve are recorded as
// the last error and skipped. The pool is refilled at most once per call, so
// a pool whose items all fail cannot loop forever. With no snapshots at all
// it returns scroll.ErrNoJournalData without touching the network.
func (a *Assembler) Next(ctx context.Context, n int) ([]scroll.Paper, error) {
	if n <= 0 {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	email, err := a.email(ctx)
	if err != nil {
		return nil, err
	}
	refilled := false
	if len(a.pool) == 0 {
		size, err := a.refill(ctx)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, scroll.ErrNoJournalData
		}
		refilled = true
	}

	papers := make([]scroll.Paper, 0, n)
	for len(papers) < n {
		if len(a.pool) == 0 {
			if refilled {
				break
			}
			if size, err := a.refill(ctx); err != nil || size == 0 {
				break
			}
			refilled = true
		}
		if err := ctx.Err(); err != nil {
			return papers, err
		}
		doi := a.pop()
		work, err := a.resolve(ctx, doi, email)
		if err != nil {
			a.lastErr = err
			a.logger.Warn("resolve paper failed", zap.String("doi", doi), zap.Error(err))
			continue
		}
		papers = append(papers, scroll.ToPaper(work))
	}
	return papers, nil
}

// Random returns one paper that has both an abstract and authors, trying at
// most a handful of pool entries.
func (a *Assembler) Random(ctx context.Context) (scroll.Paper, error) {
	var fallback *scroll.Paper
	for range defaultRandomAttempts {
		papers, err := a.Next(ctx, 1)
		if err != nil {
			return scroll.Paper{}, err
		}
		if len(papers) == 0 {
			break
		}
		p := papers[0]
		if p.Abstract != "" && p.Authors != "" {
			return p, nil
		}
		if fallback == nil {
			fallback = &p
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	if err := a.LastError(); err != nil {
		return scroll.Paper{}, fmt.Errorf("no paper could be resolved: %w", err)
	}
	return scroll.Paper{}, errors.New("no paper could be resolved")
}

func (a *Assembler) email(ctx context.Context) (string, error) {
	if a.settings == nil {
		return "", nil
	}
	cfg, err := a.settings.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	return cfg.Email, nil
}

// refill flattens every snapshot, keeps the first occurrence of each
// normalized DOI, and shuffles the result. Callers hold a.mu.
func (a *Assembler) refill(ctx context.Context) (int, error) {
	snaps, err := a.store.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	seen := make(map[string]struct{})
	pool := make([]string, 0)
	for _, snap := range snaps {
		for _, item := range snap.Items {
			key := scroll.NormalizeDOI(item.DOI)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			pool = append(pool, item.DOI)
		}
	}
	shuffle(a.rng, pool)
	a.pool = pool
	a.logger.Debug("feed pool loaded", zap.Int("snapshots", len(snaps)), zap.Int("dois", len(pool)))
	return len(pool), nil
}

// shuffle is an in-place Fisher-Yates permutation.
func shuffle(rng *rand.Rand, items []string) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

func (a *Assembler) pop() string {
	last := len(a.pool) - 1
	doi := a.pool[last]
	a.pool = a.pool[:last]
	return doi
}

// resolve consults the cache before the network and caches fresh results.
func (a *Assembler) resolve(ctx context.Context, doi, email string) (scroll.Work, error) {
	work, ok, err := a.store.GetCachedWork(ctx, doi)
	if err != nil {
		a.logger.Warn("work cache read failed", zap.String("doi", doi), zap.Error(err))
	}
	if ok {
		metrics.ObserveFeedResolution("cache")
		return work, nil
	}
	work, err = a.works.FetchWork(ctx, doi, email)
	if err != nil {
		metrics.ObserveFeedResolution("error")
		return scroll.Work{}, err
	}
	metrics.ObserveFeedResolution("network")
	if err := a.store.CacheWork(ctx, doi, work); err != nil {
		a.logger.Warn("work cache write failed", zap.String("doi", doi), zap.Error(err))
	}
	return work, nil
}
