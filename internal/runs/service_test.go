package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/id/uuid"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	storemem "github.com/keystonedata/inspections-pipeline/internal/store/memory"
)

type stubEnqueuer struct {
	reqs []pipeline.RunRequest
	err  error
}

func (e *stubEnqueuer) Enqueue(_ context.Context, req pipeline.RunRequest) error {
	if e.err != nil {
		return e.err
	}
	e.reqs = append(e.reqs, req)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSubmitRecordsAndEnqueues(t *testing.T) {
	t.Parallel()

	store := storemem.NewRunStore()
	enq := &stubEnqueuer{}
	now := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	svc := NewService(store, enq, uuid.NewUUIDGenerator(), fixedClock{t: now}, zap.NewNop())

	run, err := svc.Submit(context.Background(), pipeline.TriggerManual)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, pipeline.TriggerManual, run.Trigger)
	require.Equal(t, pipeline.RunStatusQueued, run.Status)
	require.Equal(t, now, run.Submitted)

	require.Len(t, enq.reqs, 1)
	require.Equal(t, run.ID, enq.reqs[0].RunID)
	require.Equal(t, now.Unix(), enq.reqs[0].Submitted)

	stored, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusQueued, stored.Status)
}

func TestSubmitEnqueueFailureMarksRunFailed(t *testing.T) {
	t.Parallel()

	store := storemem.NewRunStore()
	enq := &stubEnqueuer{err: errors.New("queue full")}
	svc := NewService(store, enq, uuid.NewUUIDGenerator(), fixedClock{t: time.Now().UTC()}, zap.NewNop())

	_, err := svc.Submit(context.Background(), pipeline.TriggerSchedule)
	require.ErrorContains(t, err, "queue full")

	listed, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, pipeline.RunStatusFailed, listed[0].Status)
	require.Contains(t, listed[0].ErrorText, "queue full")
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	store := storemem.NewRunStore()
	enq := &stubEnqueuer{}
	base := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	clk := &steppingClock{t: base}
	svc := NewService(store, enq, uuid.NewUUIDGenerator(), clk, zap.NewNop())

	first, err := svc.Submit(context.Background(), pipeline.TriggerManual)
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), pipeline.TriggerManual)
	require.NoError(t, err)

	listed, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second.ID, listed[0].ID)
	require.Equal(t, first.ID, listed[1].ID)
}

type steppingClock struct{ t time.Time }

func (c *steppingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}
