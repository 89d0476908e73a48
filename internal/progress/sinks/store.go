package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	"github.com/keystonedata/inspections-pipeline/internal/progress"
)

// StoreSink persists per-step results via a pipeline.RunStore so the run
// history survives the process.
type StoreSink struct {
	store  pipeline.RunStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided run store.
func NewStoreSink(store pipeline.RunStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume records completed and failed steps. It respects ctx deadlines and
// returns any store errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	for _, evt := range batch {
		var result pipeline.StepResult
		switch {
		case evt.Stage == progress.StageStepDone:
			result = stepResult(evt, "")
		case evt.Stage == progress.StageRunError && evt.Step != "":
			result = stepResult(evt, evt.Note)
		default:
			continue
		}
		if err := s.store.RecordStep(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func stepResult(evt progress.Event, errText string) pipeline.StepResult {
	return pipeline.StepResult{
		RunID:      evt.RunUUID().String(),
		Step:       evt.Step,
		StartedAt:  evt.TS.Add(-evt.Dur),
		FinishedAt: evt.TS,
		DurationMs: evt.Dur.Milliseconds(),
		Rows:       int(evt.Rows),
		ErrorText:  errText,
	}
}
