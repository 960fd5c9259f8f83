package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/TsaiLintung/paper-scroll/internal/progress"
)

func runBatch(run [16]byte, failed bool) []progress.Event {
	now := time.Now()
	batch := []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart, Pairs: 2},
		{RunID: run, TS: now, Stage: progress.StagePairStart, Journal: "aer", ISSN: "0002-8282", Year: 2020},
		{RunID: run, TS: now, Stage: progress.StagePairDone, Journal: "aer", ISSN: "0002-8282", Year: 2020,
			Items: 120, Dur: 2 * time.Second},
	}
	if failed {
		return append(batch, progress.Event{RunID: run, TS: now.Add(3 * time.Second), Stage: progress.StageRunError,
			Dur: 3 * time.Second, Note: "listing failed"})
	}
	return append(batch,
		progress.Event{RunID: run, TS: now, Stage: progress.StagePairDone, Journal: "aer", ISSN: "0002-8282",
			Year: 2021, Items: 80, Dur: time.Second},
		progress.Event{RunID: run, TS: now.Add(3 * time.Second), Stage: progress.StageRunDone, Dur: 3 * time.Second},
	)
}

func TestPrometheusSinkRecordsRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), runBatch(progress.RunID(uuid.New()), false)))
	require.NoError(t, sink.Consume(context.Background(), runBatch(progress.RunID(uuid.New()), true)))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.pairs.WithLabelValues("aer")))
	require.Equal(t, 320.0, testutil.ToFloat64(sink.identifiers.WithLabelValues("aer")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pairDuration, "paperscroll_sync_pair_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
