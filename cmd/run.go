package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand which executes one manual pipeline
// run end to end and exits.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executes one manual pipeline run",
		Long: `Submits a manual run and processes it to completion: probe, export, clean,
geocode, violations, categories, upload. Exits non-zero if any step fails.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	dispatcherDone := make(chan struct{})
	go func() {
		a.Dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	run, err := a.Runs.Submit(ctx, pipeline.TriggerManual)
	if err != nil {
		cancel()
		<-dispatcherDone
		return fmt.Errorf("submit run: %w", err)
	}
	logger.Info("manual run submitted", zap.String("run_id", run.ID))

	final, err := waitForRun(ctx, a.Runs.Get, run.ID)
	cancel()
	<-dispatcherDone
	if err != nil {
		return err
	}

	switch final.Status {
	case pipeline.RunStatusSucceeded:
		logger.Info("run complete",
			zap.String("run_id", final.ID),
			zap.String("object_uri", final.ObjectURI),
			zap.Int("rows", final.Counters.RowsExported),
		)
		return nil
	default:
		return fmt.Errorf("run %s %s: %s", final.ID, final.Status, final.ErrorText)
	}
}

func waitForRun(ctx context.Context, get func(context.Context, string) (pipeline.Run, error), runID string) (pipeline.Run, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return pipeline.Run{}, ctx.Err()
		case <-ticker.C:
			run, err := get(ctx, runID)
			if err != nil {
				return pipeline.Run{}, fmt.Errorf("poll run: %w", err)
			}
			switch run.Status {
			case pipeline.RunStatusSucceeded, pipeline.RunStatusFailed, pipeline.RunStatusCanceled:
				return run, nil
			}
		}
	}
}
