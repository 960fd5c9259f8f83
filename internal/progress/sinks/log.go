package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/progress"
)

// LogSink writes one structured line per run event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event; failures log at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Journal != "" {
			fields = append(fields,
				zap.String("journal", evt.Journal),
				zap.String("issn", evt.ISSN),
				zap.Int("year", evt.Year),
			)
		}
		switch evt.Stage {
		case progress.StageRunStart:
			fields = append(fields, zap.Int("pairs", evt.Pairs))
		case progress.StagePairDone:
			fields = append(fields, zap.Int("items", evt.Items), zap.Duration("dur", evt.Dur))
		case progress.StageRunDone, progress.StageRunError:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageRunError {
			s.logger.Warn("sync run event", fields...)
			continue
		}
		s.logger.Info("sync run event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
