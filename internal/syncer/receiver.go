package syncer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const maxRetainedResults = 32

// ResultStore is the subset of scroll.Store the receiver writes to.
type ResultStore interface {
	scroll.StatusStore
	scroll.SnapshotStore
}

// Result summarizes a finished run.
type Result struct {
	RunID     string        `json:"run_id"`
	Snapshots int           `json:"snapshots"`
	Status    scroll.Status `json:"status"`
	Err       string        `json:"error,omitempty"`
}

// Failed reports whether the run ended with an error.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Receiver translates events into store writes on a single goroutine and
// tracks per-run completion.
type Receiver struct {
	store  ResultStore
	events <-chan Event
	logger *zap.Logger

	mu       sync.Mutex
	latest   scroll.Status
	inflight map[string]*Result
	results  map[string]Result
	order    []string
	waiters  map[string][]chan Result
	onStatus []func(scroll.Status)
	onDone   []func(context.Context, Result)
}

// NewReceiver builds a Receiver reading from events.
func NewReceiver(store ResultStore, events <-chan Event, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{
		store:    store,
		events:   events,
		logger:   logger,
		inflight: make(map[string]*Result),
		results:  make(map[string]Result),
		waiters:  make(map[string][]chan Result),
	}
}

// OnStatus registers fn to observe every status update. Register before Run.
func (r *Receiver) OnStatus(fn func(scroll.Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatus = append(r.onStatus, fn)
}

// OnDone registers fn to run after each run's done event. Register before Run.
func (r *Receiver) OnDone(fn func(context.Context, Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDone = append(r.onDone, fn)
}

// Latest returns the most recent status seen by this receiver.
func (r *Receiver) Latest() scroll.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Run drains the event stream until it is closed or ctx ends.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-r.events:
			if !ok {
				return nil
			}
			r.handle(ctx, evt)
		}
	}
}

func (r *Receiver) handle(ctx context.Context, evt Event) {
	res := r.track(evt.RunID)
	switch evt.Type {
	case EventStatus:
		if evt.Status == nil {
			return
		}
		status := *evt.Status
		if err := r.store.SaveStatus(ctx, status); err != nil {
			r.logger.Error("persist sync status failed", zap.String("run_id", evt.RunID), zap.Error(err))
		}
		r.mu.Lock()
		r.latest = status
		res.Status = status
		hooks := append(([]func(scroll.Status))(nil), r.onStatus...)
		r.mu.Unlock()
		for _, fn := range hooks {
			fn(status)
		}
	case EventSnapshot:
		if evt.Snapshot == nil {
			return
		}
		if err := r.store.SaveSnapshot(ctx, *evt.Snapshot); err != nil {
			r.logger.Error("persist snapshot failed",
				zap.String("run_id", evt.RunID),
				zap.String("key", evt.Snapshot.Key()),
				zap.Error(err),
			)
			r.setErr(res, fmt.Sprintf("save snapshot %s: %v", evt.Snapshot.Key(), err))
			return
		}
		r.mu.Lock()
		res.Snapshots++
		r.mu.Unlock()
	case EventError:
		r.setErr(res, evt.Message)
	case EventDone:
		r.complete(ctx, evt.RunID)
	default:
		r.logger.Warn("unknown sync event", zap.String("type", string(evt.Type)))
	}
}

func (r *Receiver) track(runID string) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.inflight[runID]
	if !ok {
		res = &Result{RunID: runID}
		r.inflight[runID] = res
	}
	return res
}

func (r *Receiver) setErr(res *Result, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Err == "" {
		res.Err = msg
	}
}

func (r *Receiver) complete(ctx context.Context, runID string) {
	r.mu.Lock()
	res := *r.inflight[runID]
	delete(r.inflight, runID)
	r.results[runID] = res
	r.order = append(r.order, runID)
	if len(r.order) > maxRetainedResults {
		delete(r.results, r.order[0])
		r.order = r.order[1:]
	}
	waiters := r.waiters[runID]
	delete(r.waiters, runID)
	hooks := append(([]func(context.Context, Result))(nil), r.onDone...)
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
	for _, fn := range hooks {
		fn(ctx, res)
	}
}

// Wait blocks until runID finishes or ctx ends. Results of recent runs are
// retained, so waiting after completion returns immediately.
func (r *Receiver) Wait(ctx context.Context, runID string) (Result, error) {
	r.mu.Lock()
	if res, ok := r.results[runID]; ok {
		r.mu.Unlock()
		return res, nil
	}
	ch := make(chan Result, 1)
	r.waiters[runID] = append(r.waiters[runID], ch)
	r.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("wait for sync run %s: %w", runID, ctx.Err())
	}
}
