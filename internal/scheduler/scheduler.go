// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Submitter starts a new run for the given trigger.
type Submitter interface {
	Submit(ctx context.Context, trigger pipeline.TriggerKind) (pipeline.Run, error)
}

// Config controls the cron trigger.
type Config struct {
	// Spec is a standard five-field cron expression.
	Spec string
	// Timezone names the IANA zone the cron expression is evaluated in.
	// Empty means UTC.
	Timezone string
	// SubmitTimeout bounds a single scheduled submission.
	SubmitTimeout time.Duration
}

// Scheduler submits a run whenever the cron spec fires.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. The cron job is registered but not started.
func New(cfg Config, submitter Submitter, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		return nil, fmt.Errorf("cron spec is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		submitter: submitter,
		timeout:   cfg.SubmitTimeout,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.fire); err != nil {
		return nil, fmt.Errorf("register cron spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins evaluating the cron spec.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for an in-flight submission.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run, err := s.submitter.Submit(ctx, pipeline.TriggerSchedule)
	if err != nil {
		s.logger.Error("scheduled run submission failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run submitted", zap.String("run_id", run.ID))
}
