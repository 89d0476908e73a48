package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It also
// carries the scheduled-run keepalive line that proves the daily trigger
// fired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("step", string(evt.Step)),
			zap.String("trigger", string(evt.Trigger)),
			zap.Int64("rows", evt.Rows),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		}
		if evt.Stage == progress.StageKeepalive {
			s.logger.Info("keepalive", zap.Time("ts", evt.TS), zap.String("trigger", string(evt.Trigger)))
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
