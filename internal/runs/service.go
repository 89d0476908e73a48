// Package runs creates pipeline runs and hands them to the queue.
package runs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Enqueuer accepts run requests for execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, req pipeline.RunRequest) error
}

// Service records new runs and enqueues them for the worker pool.
type Service struct {
	store    pipeline.RunStore
	enqueuer Enqueuer
	ids      pipeline.IDGenerator
	clock    pipeline.Clock
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(store pipeline.RunStore, enqueuer Enqueuer, ids pipeline.IDGenerator, clock pipeline.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		enqueuer: enqueuer,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Submit records a queued run and enqueues it. The returned run reflects the
// stored state at submission time.
func (s *Service) Submit(ctx context.Context, trigger pipeline.TriggerKind) (pipeline.Run, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return pipeline.Run{}, fmt.Errorf("new run id: %w", err)
	}

	run := pipeline.Run{
		ID:        id,
		Trigger:   trigger,
		Status:    pipeline.RunStatusQueued,
		Submitted: s.clock.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return pipeline.Run{}, fmt.Errorf("create run: %w", err)
	}

	req := pipeline.RunRequest{
		RunID:     run.ID,
		Trigger:   trigger,
		Submitted: run.Submitted.Unix(),
	}
	if err := s.enqueuer.Enqueue(ctx, req); err != nil {
		if updErr := s.store.UpdateRunStatus(ctx, run.ID, pipeline.RunStatusFailed, err.Error(), pipeline.RunCounters{}); updErr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", run.ID), zap.Error(updErr))
		}
		return pipeline.Run{}, fmt.Errorf("enqueue run: %w", err)
	}

	s.logger.Info("run submitted", zap.String("run_id", run.ID), zap.String("trigger", string(trigger)))
	return run, nil
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (pipeline.Run, error) {
	return s.store.GetRun(ctx, runID)
}

// List returns the most recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]pipeline.Run, error) {
	return s.store.ListRuns(ctx, limit)
}
