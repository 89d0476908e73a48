package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()

	req := pipeline.RunRequest{RunID: "run-1", Trigger: pipeline.TriggerManual}
	require.NoError(t, q.Enqueue(ctx, req))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestQueueEnqueueBlocksUntilCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, pipeline.RunRequest{RunID: "run-1"}))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(cancelCtx, pipeline.RunRequest{RunID: "run-2"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDequeueRespectsCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), pipeline.RunRequest{RunID: "run-1"}))
	q.Close()
	q.Close() // idempotent

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", got.RunID)

	_, err = q.Dequeue(context.Background())
	require.Error(t, err)
}
