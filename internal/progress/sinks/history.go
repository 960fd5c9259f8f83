package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/TsaiLintung/paper-scroll/internal/progress"
)

const defaultHistorySize = 20

// Run outcomes recorded by HistorySink.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// RunSummary aggregates the events of one sync run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	Outcome     string        `json:"outcome"`
	Pairs       int           `json:"pairs"`
	PairsDone   int           `json:"pairs_done"`
	Identifiers int           `json:"identifiers"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// HistorySink keeps summaries of the most recent runs.
type HistorySink struct {
	mu    sync.RWMutex
	limit int
	runs  []*RunSummary
	index map[[16]byte]*RunSummary
}

// NewHistorySink keeps at most limit runs (default 20).
func NewHistorySink(limit int) *HistorySink {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	return &HistorySink{limit: limit, index: make(map[[16]byte]*RunSummary)}
}

// Consume folds events into run summaries.
func (s *HistorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		run := s.lookup(evt)
		switch evt.Stage {
		case progress.StageRunStart:
			run.StartedAt = evt.TS
			run.Pairs = evt.Pairs
		case progress.StagePairDone:
			run.PairsDone++
			run.Identifiers += evt.Items
		case progress.StageRunDone:
			run.Outcome = OutcomeCompleted
			run.FinishedAt = evt.TS
			run.Duration = evt.Dur
		case progress.StageRunError:
			run.Outcome = OutcomeFailed
			run.FinishedAt = evt.TS
			run.Duration = evt.Dur
			run.Error = evt.Note
		}
	}
	return nil
}

func (s *HistorySink) lookup(evt progress.Event) *RunSummary {
	if run, ok := s.index[evt.RunID]; ok {
		return run
	}
	run := &RunSummary{RunID: evt.RunUUID().String(), StartedAt: evt.TS, Outcome: OutcomeRunning}
	s.index[evt.RunID] = run
	s.runs = append(s.runs, run)
	if len(s.runs) > s.limit {
		evicted := s.runs[0]
		s.runs = s.runs[1:]
		for id, r := range s.index {
			if r == evicted {
				delete(s.index, id)
				break
			}
		}
	}
	return run
}

// Recent returns copies of the stored summaries, newest first.
func (s *HistorySink) Recent() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunSummary, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, *s.runs[i])
	}
	return out
}

// Close implements progress.Sink.
func (s *HistorySink) Close(context.Context) error {
	return nil
}
