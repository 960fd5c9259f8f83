// Package syncer runs journal synchronization on a dedicated goroutine. A
// run is requested with a StartCommand on the inbound queue and reported as
// a stream of Events on the outbound channel; the Receiver on the other side
// is the only component that writes sync results to the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/logging"
	"github.com/TsaiLintung/paper-scroll/internal/metrics"
	"github.com/TsaiLintung/paper-scroll/internal/progress"
	"github.com/TsaiLintung/paper-scroll/internal/queue/memory"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const defaultEventBuffer = 64

// Config controls channel sizing.
type Config struct {
	EventBuffer int
}

// Orchestrator owns the running guard and executes one run at a time.
type Orchestrator struct {
	lister  scroll.Lister
	inbox   *memory.Queue[StartCommand]
	events  chan Event
	emitter progress.Emitter
	clock   scroll.Clock
	ids     scroll.IDGenerator
	running atomic.Bool
	logger  *zap.Logger
}

// New constructs an Orchestrator. A nil emitter disables run telemetry.
func New(
	lister scroll.Lister,
	emitter progress.Emitter,
	clock scroll.Clock,
	ids scroll.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lister:  lister,
		inbox:   memory.NewQueue[StartCommand](1),
		events:  make(chan Event, cfg.EventBuffer),
		emitter: emitter,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}
}

// Events is the outbound stream. It is closed when Run returns.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Running reports whether a run has been accepted and not yet finished.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Start requests a run. It fails with scroll.ErrAlreadyRunning while a run is
// in flight and never queues a second command. The returned ID tags every
// event of the run.
func (o *Orchestrator) Start(ctx context.Context, cmd StartCommand) (string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", scroll.ErrAlreadyRunning
	}
	if cmd.RunID == "" {
		id, err := o.ids.NewID()
		if err != nil {
			o.running.Store(false)
			return "", fmt.Errorf("allocate run id: %w", err)
		}
		cmd.RunID = id
	}
	cmd.Journals = append([]scroll.Journal(nil), cmd.Journals...)
	if err := o.inbox.Enqueue(ctx, cmd); err != nil {
		o.running.Store(false)
		return "", fmt.Errorf("submit sync command: %w", err)
	}
	metrics.SetSyncActive(true)
	return cmd.RunID, nil
}

// Run consumes commands until ctx ends, then closes the event stream.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.events)
	defer o.inbox.Close()
	for {
		cmd, err := o.inbox.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			o.logger.Error("sync command dequeue failed", zap.Error(err))
			continue
		}
		o.execute(ctx, cmd)
	}
}

type runState struct {
	cmd     StartCommand
	rawID   [16]byte
	started time.Time
}

func (o *Orchestrator) execute(ctx context.Context, cmd StartCommand) {
	run := runState{cmd: cmd, started: o.clock.Now()}
	if id, err := uuid.Parse(cmd.RunID); err == nil {
		run.rawID = progress.RunID(id)
	}
	logger := logging.ForRun(o.logger, cmd.RunID)

	err := o.crawl(ctx, run, logger)
	dur := o.clock.Now().Sub(run.started)
	if err != nil {
		msg := err.Error()
		logger.Warn("sync run failed", zap.Error(err), zap.Duration("dur", dur))
		o.emitTelemetry(run, progress.Event{Stage: progress.StageRunError, Dur: dur, Note: msg})
		o.send(ctx, Event{RunID: cmd.RunID, Type: EventError, Message: msg})
		o.send(ctx, statusEvent(cmd.RunID, msg, 0))
	} else {
		logger.Info("sync run completed", zap.Duration("dur", dur))
		o.emitTelemetry(run, progress.Event{Stage: progress.StageRunDone, Dur: dur})
	}
	o.running.Store(false)
	metrics.SetSyncActive(false)
	o.send(ctx, Event{RunID: cmd.RunID, Type: EventDone})
}

// crawl walks the work list and returns the first failure. A panic in a
// collaborator is recovered into an error so the run still terminates with
// error and done.
func (o *Orchestrator) crawl(ctx context.Context, run runState, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync run panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("sync worker crashed: %v", r)
		}
	}()

	cmd := run.cmd
	pairs := WorkList(cmd.Journals, cmd.StartYear, cmd.EndYear)
	o.emitTelemetry(run, progress.Event{Stage: progress.StageRunStart, Pairs: len(pairs)})
	logger.Info("sync run started", zap.Int("pairs", len(pairs)))
	if len(pairs) == 0 {
		o.send(ctx, statusEvent(cmd.RunID, MessageNoJournals, 1))
		return nil
	}

	total := float64(len(pairs))
	for i, pair := range pairs {
		o.send(ctx, statusEvent(cmd.RunID, fetchingMessage(pair), float64(i)/total))
		o.emitTelemetry(run, pairTelemetry(progress.StagePairStart, pair))

		began := o.clock.Now()
		dois, err := o.lister.FetchAllIdentifiers(ctx, pair.Journal, pair.Year, cmd.Email)
		if err != nil {
			return err
		}
		snapshot := scroll.JournalSnapshot{
			ISSN:  pair.Journal.ISSN,
			Name:  pair.Journal.Name,
			Year:  pair.Year,
			Items: make([]scroll.SnapshotItem, 0, len(dois)),
		}
		for _, doi := range dois {
			snapshot.Items = append(snapshot.Items, scroll.SnapshotItem{DOI: doi})
		}
		o.send(ctx, Event{RunID: cmd.RunID, Type: EventSnapshot, Snapshot: &snapshot})

		done := pairTelemetry(progress.StagePairDone, pair)
		done.Items = len(dois)
		done.Dur = o.clock.Now().Sub(began)
		o.emitTelemetry(run, done)
	}
	o.send(ctx, statusEvent(cmd.RunID, MessageAllDone, 1))
	return nil
}

// send delivers evt unless the process is shutting down.
func (o *Orchestrator) send(ctx context.Context, evt Event) {
	select {
	case o.events <- evt:
	case <-ctx.Done():
		o.logger.Debug("dropping sync event on shutdown",
			zap.String("run_id", evt.RunID),
			zap.String("type", string(evt.Type)),
		)
	}
}

func (o *Orchestrator) emitTelemetry(run runState, evt progress.Event) {
	if o.emitter == nil || run.rawID == [16]byte{} {
		return
	}
	evt.RunID = run.rawID
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

func pairTelemetry(stage progress.Stage, pair Pair) progress.Event {
	return progress.Event{Stage: stage, Journal: pair.Journal.Name, ISSN: pair.Journal.ISSN, Year: pair.Year}
}

func statusEvent(runID, message string, p float64) Event {
	return Event{RunID: runID, Type: EventStatus, Status: &scroll.Status{Message: message, Progress: p}}
}
