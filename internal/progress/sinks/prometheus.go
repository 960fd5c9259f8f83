package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TsaiLintung/paper-scroll/internal/progress"
)

// PrometheusSink exports run and pair counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	pairs         *prometheus.CounterVec
	pairDuration  prometheus.Histogram
	identifiers   *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg (default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperscroll_sync_runs_started_total",
			Help: "Sync runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperscroll_sync_runs_completed_total",
			Help: "Sync runs finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paperscroll_sync_run_duration_seconds",
			Help:    "Wall time per finished sync run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperscroll_sync_pairs_total",
			Help: "Journal-year pairs crawled, partitioned by journal.",
		}, []string{"journal"}),
		pairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperscroll_sync_pair_duration_seconds",
			Help:    "Wall time to list one journal-year pair.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		identifiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperscroll_sync_identifiers_total",
			Help: "Identifiers collected into snapshots, partitioned by journal.",
		}, []string{"journal"}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.pairs,
		s.pairDuration,
		s.identifiers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register sync collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StagePairDone:
			s.pairs.WithLabelValues(evt.Journal).Inc()
			s.identifiers.WithLabelValues(evt.Journal).Add(float64(evt.Items))
			if evt.Dur > 0 {
				s.pairDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageRunDone:
			s.finish("success", evt)
		case progress.StageRunError:
			s.finish("error", evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finish(result string, evt progress.Event) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
