package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Batch sizes used by the feed surfaces.
const (
	InitialBatch  = 5
	LoadMoreBatch = 3

	attemptsPerPaper = 5
)

// ErrNoJournals is returned by sampling when no journal is configured.
var ErrNoJournals = errors.New("add at least one journal to start sampling papers")

// Sampler draws random works per configured journal and year, skipping
// works it has already returned since the last Reset.
type Sampler struct {
	works    scroll.WorkFetcher
	settings SettingsSource
	logger   *zap.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	seen    map[string]struct{}
	lastErr error
}

// SamplerOption customizes a Sampler.
type SamplerOption func(*Sampler)

// WithSamplerRand replaces the journal and year picker source.
func WithSamplerRand(r *rand.Rand) SamplerOption {
	return func(s *Sampler) { s.rng = r }
}

// NewSampler builds a Sampler.
func NewSampler(works scroll.WorkFetcher, settings SettingsSource, logger *zap.Logger, opts ...SamplerOption) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := uint64(time.Now().UnixNano())
	s := &Sampler{
		works:    works,
		settings: settings,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(seed, seed<<1)),
		seen:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset forgets previously returned works.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.lastErr = nil
}

// LastError returns the most recent sampling failure, if any.
func (s *Sampler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Batch samples until n unseen papers are collected or n*5 attempts are
// spent. Failed samples are recorded and skipped.
func (s *Sampler) Batch(ctx context.Context, n int) ([]scroll.Paper, error) {
	if n <= 0 {
		return nil, nil
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if len(cfg.Journals) == 0 {
		return nil, ErrNoJournals
	}
	lo, hi := cfg.YearRange()

	s.mu.Lock()
	defer s.mu.Unlock()

	papers := make([]scroll.Paper, 0, n)
	for attempt := 0; attempt < n*attemptsPerPaper && len(papers) < n; attempt++ {
		if err := ctx.Err(); err != nil {
			return papers, err
		}
		journal := cfg.Journals[s.rng.IntN(len(cfg.Journals))]
		year := lo + s.rng.IntN(hi-lo+1)

		work, err := s.works.SampleWork(ctx, journal.ISSN, year, cfg.Email)
		if err != nil {
			s.lastErr = err
			s.logger.Warn("sample paper failed",
				zap.String("journal", journal.Name),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}
		paper := scroll.ToPaper(work)
		if _, dup := s.seen[paper.ID]; dup {
			continue
		}
		s.seen[paper.ID] = struct{}{}
		papers = append(papers, paper)
	}
	return papers, nil
}
