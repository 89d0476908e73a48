// Package memory provides an in-memory RunStore for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// RunStore keeps run and step metadata in process memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]pipeline.Run
	steps map[string][]pipeline.StepResult
}

// NewRunStore creates an empty in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[string]pipeline.Run),
		steps: make(map[string][]pipeline.StepResult),
	}
}

// CreateRun inserts a new run record.
func (s *RunStore) CreateRun(_ context.Context, run pipeline.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %q already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus transitions a run and stores its counters. Start and finish
// times are stamped from the run's existing submission time lineage.
func (s *RunStore) UpdateRunStatus(_ context.Context, runID string, status pipeline.RunStatus, errText string, counters pipeline.RunCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	now := nowUTC()
	switch status {
	case pipeline.RunStatusRunning:
		run.Started = &now
	case pipeline.RunStatusSucceeded, pipeline.RunStatusFailed, pipeline.RunStatusCanceled:
		run.Finished = &now
	}
	s.runs[runID] = run
	return nil
}

// SetObjectURI records the published artifact location for a run.
func (s *RunStore) SetObjectURI(_ context.Context, runID string, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
	}
	run.ObjectURI = uri
	s.runs[runID] = run
	return nil
}

// RecordStep appends a step result for a run.
func (s *RunStore) RecordStep(_ context.Context, result pipeline.StepResult) error {
	if result.RunID == "" {
		return fmt.Errorf("step result run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[result.RunID] = append(s.steps[result.RunID], result)
	return nil
}

// GetRun returns a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return pipeline.Run{}, fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
	}
	return run, nil
}

// ListRuns returns runs newest-first, capped at limit when limit > 0.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.After(out[j].Submitted)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Steps returns the recorded step results for a run, in insertion order.
func (s *RunStore) Steps(runID string) []pipeline.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pipeline.StepResult(nil), s.steps[runID]...)
}
