package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	"github.com/keystonedata/inspections-pipeline/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Trigger: pipeline.TriggerSchedule},
		{RunID: runID, TS: time.Now(), Stage: progress.StageKeepalive, Trigger: pipeline.TriggerSchedule},
		{
			RunID: runID,
			TS:    time.Now().Add(30 * time.Second),
			Stage: progress.StageStepDone,
			Step:  pipeline.StepClean,
			Rows:  250,
			Dur:   2 * time.Second,
		},
		{RunID: runID, TS: time.Now().Add(time.Minute), Stage: progress.StageRunDone, Dur: time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.keepalives))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.stepsCompleted.WithLabelValues(string(pipeline.StepClean))))
	require.InDelta(t, 250.0, testutil.ToFloat64(sink.stepRows.WithLabelValues(string(pipeline.StepClean))), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.stepDuration, "inspections_step_duration_seconds"))
}

// TestPrometheusSinkRunError verifies failed runs land in the error bucket.
func TestPrometheusSinkRunError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Step: pipeline.StepExport, Dur: 5 * time.Second, Note: "download timed out"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
}

// TestPrometheusSinkDuplicateRegistration verifies a shared registry rejects double registration.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
