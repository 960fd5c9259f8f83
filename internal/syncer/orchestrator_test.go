package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TsaiLintung/paper-scroll/internal/progress"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

var (
	aer = scroll.Journal{Name: "aer", ISSN: "0002-8282"}
	jpe = scroll.Journal{Name: "jpe", ISSN: "0022-3808"}
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{}

func (seqIDs) NewID() (string, error) { return uuid.NewString(), nil }

type listCall struct {
	ISSN  string
	Year  int
	Email string
}

type fakeLister struct {
	mu     sync.Mutex
	calls  []listCall
	fn     func(journal scroll.Journal, year int) ([]string, error)
	gate   chan struct{}
	called chan struct{}
}

func (f *fakeLister) FetchAllIdentifiers(_ context.Context, j scroll.Journal, year int, email string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{ISSN: j.ISSN, Year: year, Email: email})
	f.mu.Unlock()
	if f.called != nil {
		f.called <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.fn != nil {
		return f.fn(j, year)
	}
	return []string{fmt.Sprintf("10.1/%s-%d", j.Name, year)}, nil
}

func (f *fakeLister) Calls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listCall(nil), f.calls...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func startOrchestrator(t *testing.T, lister scroll.Lister, emitter progress.Emitter) *Orchestrator {
	t.Helper()
	orch := New(lister, emitter, fixedClock{now: time.Unix(1700000000, 0)}, seqIDs{}, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go orch.Run(ctx)
	return orch
}

// collect reads events of one run up to and including done.
func collect(t *testing.T, orch *Orchestrator) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-orch.Events():
			out = append(out, evt)
			if evt.Type == EventDone {
				return out
			}
		case <-timeout:
			t.Fatalf("run did not finish, events so far: %+v", out)
		}
	}
}

type step struct {
	Type     EventType
	Message  string
	Progress float64
	Key      string
}

func steps(events []Event) []step {
	out := make([]step, 0, len(events))
	for _, evt := range events {
		s := step{Type: evt.Type, Message: evt.Message}
		if evt.Status != nil {
			s.Message = evt.Status.Message
			s.Progress = evt.Status.Progress
		}
		if evt.Snapshot != nil {
			s.Key = evt.Snapshot.Key()
		}
		out = append(out, s)
	}
	return out
}

func TestRunEmitsStatusBeforeEachPair(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	orch := startOrchestrator(t, lister, nil)

	runID, err := orch.Start(context.Background(), StartCommand{
		Journals: []scroll.Journal{aer}, StartYear: 2021, EndYear: 2020, Email: "me@example.org",
	})
	require.NoError(t, err)
	events := collect(t, orch)

	require.Equal(t, []step{
		{Type: EventStatus, Message: "Fetching aer (2020)", Progress: 0},
		{Type: EventSnapshot, Key: "aer-2020"},
		{Type: EventStatus, Message: "Fetching aer (2021)", Progress: 0.5},
		{Type: EventSnapshot, Key: "aer-2021"},
		{Type: EventStatus, Message: "All journals updated.", Progress: 1},
		{Type: EventDone},
	}, steps(events))
	for _, evt := range events {
		require.Equal(t, runID, evt.RunID)
	}
	require.Equal(t, []listCall{
		{ISSN: "0002-8282", Year: 2020, Email: "me@example.org"},
		{ISSN: "0002-8282", Year: 2021, Email: "me@example.org"},
	}, lister.Calls())
	require.False(t, orch.Running())
}

func TestRunKeepsDuplicateIdentifiers(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{fn: func(scroll.Journal, int) ([]string, error) {
		return []string{"10.1/a", "10.1/b", "10.1/a"}, nil
	}}
	orch := startOrchestrator(t, lister, nil)

	_, err := orch.Start(context.Background(), StartCommand{Journals: []scroll.Journal{aer}, StartYear: 2021, EndYear: 2021})
	require.NoError(t, err)
	events := collect(t, orch)

	require.Equal(t, []scroll.SnapshotItem{{DOI: "10.1/a"}, {DOI: "10.1/b"}, {DOI: "10.1/a"}}, events[1].Snapshot.Items)
}

func TestRunFailureAbortsRemainingPairs(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{fn: func(j scroll.Journal, year int) ([]string, error) {
		if j.Name == "aer" && year == 2021 {
			return nil, &scroll.ListingError{ISSN: j.ISSN, Year: year, StatusCode: 500, Err: errors.New("unexpected status 500")}
		}
		return []string{"10.1/x"}, nil
	}}
	orch := startOrchestrator(t, lister, nil)

	_, err := orch.Start(context.Background(), StartCommand{
		Journals: []scroll.Journal{aer, jpe}, StartYear: 2020, EndYear: 2021,
	})
	require.NoError(t, err)
	events := collect(t, orch)

	msg := (&scroll.ListingError{ISSN: "0002-8282", Year: 2021, StatusCode: 500,
		Err: errors.New("unexpected status 500")}).Error()
	require.Equal(t, []step{
		{Type: EventStatus, Message: "Fetching aer (2020)", Progress: 0},
		{Type: EventSnapshot, Key: "aer-2020"},
		{Type: EventStatus, Message: "Fetching aer (2021)", Progress: 0.25},
		{Type: EventError, Message: msg},
		{Type: EventStatus, Message: msg, Progress: 0},
		{Type: EventDone},
	}, steps(events))
	require.Len(t, lister.Calls(), 2)
}

func TestRunWithNoJournals(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	orch := startOrchestrator(t, lister, nil)

	_, err := orch.Start(context.Background(), StartCommand{StartYear: 2021, EndYear: 2021})
	require.NoError(t, err)

	require.Equal(t, []step{
		{Type: EventStatus, Message: "No journals configured", Progress: 1},
		{Type: EventDone},
	}, steps(collect(t, orch)))
	require.Empty(t, lister.Calls())
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{gate: make(chan struct{}), called: make(chan struct{}, 1)}
	orch := startOrchestrator(t, lister, nil)
	cmd := StartCommand{Journals: []scroll.Journal{aer}, StartYear: 2021, EndYear: 2021}

	first, err := orch.Start(context.Background(), cmd)
	require.NoError(t, err)
	<-lister.called
	require.True(t, orch.Running())

	_, err = orch.Start(context.Background(), cmd)
	require.True(t, errors.Is(err, scroll.ErrAlreadyRunning))

	close(lister.gate)
	events := collect(t, orch)
	require.Len(t, events, 4)
	for _, evt := range events {
		require.Equal(t, first, evt.RunID)
	}
	require.Len(t, lister.Calls(), 1)

	second, err := orch.Start(context.Background(), cmd)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	<-lister.called
	collect(t, orch)
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{fn: func(scroll.Journal, int) ([]string, error) {
		panic("nil map")
	}}
	orch := startOrchestrator(t, lister, nil)

	_, err := orch.Start(context.Background(), StartCommand{Journals: []scroll.Journal{aer}, StartYear: 2021, EndYear: 2021})
	require.NoError(t, err)
	got := steps(collect(t, orch))

	require.Len(t, got, 4)
	require.Equal(t, EventError, got[1].Type)
	require.Contains(t, got[1].Message, "nil map")
	require.Equal(t, step{Type: EventStatus, Message: got[1].Message, Progress: 0}, got[2])
	require.Equal(t, EventDone, got[3].Type)
	require.False(t, orch.Running())
}

func TestRunEmitsTelemetry(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	orch := startOrchestrator(t, &fakeLister{}, emitter)

	_, err := orch.Start(context.Background(), StartCommand{Journals: []scroll.Journal{aer}, StartYear: 2021, EndYear: 2021})
	require.NoError(t, err)
	collect(t, orch)

	require.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StagePairStart,
		progress.StagePairDone,
		progress.StageRunDone,
	}, emitter.Stages())
}

func TestWorkListIsJournalMajor(t *testing.T) {
	t.Parallel()

	pairs := WorkList([]scroll.Journal{aer, jpe}, 2021, 2020)
	labels := make([]string, 0, len(pairs))
	for _, p := range pairs {
		labels = append(labels, p.Label())
	}
	require.Equal(t, []string{"aer (2020)", "aer (2021)", "jpe (2020)", "jpe (2021)"}, labels)
	require.Empty(t, WorkList(nil, 2020, 2021))
}
