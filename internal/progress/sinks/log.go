package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/progress"
)

// LogSink writes each event as a structured log line.
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

// Consume logs every event. Failures log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Source != "" {
			fields = append(fields, zap.String("source", evt.Source))
		}
		if evt.Stage == progress.StageSourceDone {
			fields = append(fields,
				zap.Int("rows", evt.Rows),
				zap.Int("skipped", evt.Skipped),
				zap.Int("new_institutions", evt.NewInstitutions),
				zap.Int("created", evt.Created),
				zap.Int("updated", evt.Updated),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageSourceFailed {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
