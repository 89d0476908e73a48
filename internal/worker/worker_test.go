package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
	"github.com/keystonedata/inspections-pipeline/internal/geocode"
	"github.com/keystonedata/inspections-pipeline/internal/hash/sha256"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	"github.com/keystonedata/inspections-pipeline/internal/progress"
	queuemem "github.com/keystonedata/inspections-pipeline/internal/queue/memory"
	storemem "github.com/keystonedata/inspections-pipeline/internal/store/memory"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.tick)
	return c.now
}

type stubProber struct {
	calls int
	err   error
}

func (p *stubProber) Probe(context.Context) error {
	p.calls++
	return p.err
}

type stubExporter struct {
	calls int
	path  string
	err   error
}

func (e *stubExporter) Export(context.Context) (string, error) {
	e.calls++
	return e.path, e.err
}

type stubCleaner struct {
	records []dataset.Inspection
	err     error
}

func (c *stubCleaner) Clean([][]string) ([]dataset.Inspection, error) {
	return c.records, c.err
}

type stubEnricher struct {
	result geocode.Result
	err    error
}

func (e *stubEnricher) Enrich(context.Context, []dataset.Inspection) (geocode.Result, error) {
	return e.result, e.err
}

type stubJoiner struct {
	missing []string
	err     error
}

func (j *stubJoiner) Join(context.Context, []dataset.Inspection) ([]string, error) {
	return j.missing, j.err
}

type stubCategories struct {
	added     int
	upsertErr error
	joinErr   error
}

func (c *stubCategories) Upsert(context.Context, []dataset.Inspection) (int, error) {
	return c.added, c.upsertErr
}

func (c *stubCategories) Join(context.Context, []dataset.Inspection) error {
	return c.joinErr
}

type capturingBlobStore struct {
	mu    sync.Mutex
	paths []string
	data  map[string][]byte
}

func newCapturingBlobStore() *capturingBlobStore {
	return &capturingBlobStore{data: map[string][]byte{}}
}

func (s *capturingBlobStore) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	s.data[path] = data
	return "test://" + path, nil
}

func (s *capturingBlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.data[path]; ok {
		return b, nil
	}
	return nil, pipeline.ErrObjectNotFound
}

type capturingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type collectingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *collectingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *collectingEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type fixture struct {
	worker    *Worker
	store     *storemem.RunStore
	blobs     *capturingBlobStore
	publisher *capturingPublisher
	emitter   *collectingEmitter
	prober    *stubProber
	exporter  *stubExporter
}

func sampleRecords() []dataset.Inspection {
	return []dataset.Inspection{
		{Facility: "Rosa's Cafe", Address: "12 N. Front St. Harrisburg, PA 17101", City: "Harrisburg"},
		{Facility: "Elm Diner", Address: "1 Elm St. York, PA 17401", City: "York"},
	}
}

func writeExportWorkbook(t *testing.T) string {
	t.Helper()
	data, err := dataset.WriteWorkbook(sampleRecords())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     storemem.NewRunStore(),
		blobs:     newCapturingBlobStore(),
		publisher: &capturingPublisher{},
		emitter:   &collectingEmitter{},
		prober:    &stubProber{},
		exporter:  &stubExporter{path: writeExportWorkbook(t)},
	}
	f.worker = New(
		queuemem.NewQueue(4),
		f.store,
		f.blobs,
		f.publisher,
		sha256.New(),
		&fakeClock{now: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), tick: time.Second},
		f.prober,
		f.exporter,
		&stubCleaner{records: sampleRecords()},
		&stubEnricher{result: geocode.Result{Geocoded: 2, Resolved: 1, Missing: 1}},
		&stubJoiner{missing: []string{"9 - 999.99"}},
		&stubCategories{added: 1},
		f.emitter,
		Config{ObjectPrefix: "2025/restaurant-inspections", ObjectName: "inspections.xlsx", Topic: "inspection-runs"},
		zap.NewNop(),
	)
	return f
}

func newRequest(t *testing.T, trigger pipeline.TriggerKind) pipeline.RunRequest {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return pipeline.RunRequest{RunID: id.String(), Trigger: trigger, Submitted: time.Now().Unix()}
}

func createRun(t *testing.T, store *storemem.RunStore, req pipeline.RunRequest) {
	t.Helper()
	require.NoError(t, store.CreateRun(context.Background(), pipeline.Run{
		ID:        req.RunID,
		Trigger:   req.Trigger,
		Status:    pipeline.RunStatusQueued,
		Submitted: time.Unix(req.Submitted, 0).UTC(),
	}))
}

func TestProcessRunHappyPath(t *testing.T) {
	f := newFixture(t)
	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	run, err := f.store.GetRun(context.Background(), req.RunID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusSucceeded, run.Status)
	require.Empty(t, run.ErrorText)
	require.Equal(t, "test://2025/restaurant-inspections/inspections.xlsx", run.ObjectURI)
	require.Equal(t, pipeline.RunCounters{
		RowsExported:     2,
		RowsGeocoded:     2,
		AddressesMissing: 1,
		CodesMissing:     1,
		CategoriesNew:    1,
		StepsCompleted:   7,
	}, run.Counters)

	require.Equal(t, []string{
		"2025/restaurant-inspections/inspections.xlsx",
		"2025/restaurant-inspections/inspections.csv",
	}, f.blobs.paths)
	require.Equal(t, []string{"inspection-runs"}, f.publisher.topics)

	payload, err := json.Marshal(f.publisher.payloads[0])
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	require.Equal(t, req.RunID, msg["run_id"])
	require.Equal(t, "manual", msg["trigger"])
	require.Equal(t, run.ObjectURI, msg["object_uri"])
	require.EqualValues(t, 2, msg["rows"])
	require.NotEmpty(t, msg["digest"])
}

func TestProcessRunEmitsStepsInOrder(t *testing.T) {
	f := newFixture(t)
	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	want := []progress.Stage{progress.StageRunStart}
	for range pipeline.Steps() {
		want = append(want, progress.StageStepStart, progress.StageStepDone)
	}
	want = append(want, progress.StageRunDone)
	require.Equal(t, want, f.emitter.stages())

	var steps []pipeline.Step
	for _, evt := range f.emitter.events {
		if evt.Stage == progress.StageStepDone {
			steps = append(steps, evt.Step)
		}
	}
	require.Equal(t, pipeline.Steps(), steps)
}

func TestProcessRunKeepaliveOnlyOnSchedule(t *testing.T) {
	f := newFixture(t)
	req := newRequest(t, pipeline.TriggerSchedule)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	var keepalives int
	for _, s := range f.emitter.stages() {
		if s == progress.StageKeepalive {
			keepalives++
		}
	}
	require.Equal(t, 1, keepalives)

	// A manual run stays silent.
	f2 := newFixture(t)
	req2 := newRequest(t, pipeline.TriggerManual)
	createRun(t, f2.store, req2)
	f2.worker.processRun(context.Background(), req2)
	require.NotContains(t, f2.emitter.stages(), progress.StageKeepalive)
}

func TestProcessRunFailFast(t *testing.T) {
	f := newFixture(t)
	f.prober.err = errors.New("report unreachable")
	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	require.Equal(t, 1, f.prober.calls)
	require.Zero(t, f.exporter.calls)
	require.Empty(t, f.blobs.paths)
	require.Empty(t, f.publisher.topics)

	run, err := f.store.GetRun(context.Background(), req.RunID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "report unreachable")
	require.Equal(t, 0, run.Counters.StepsCompleted)

	stages := f.emitter.stages()
	require.Equal(t, progress.StageRunError, stages[len(stages)-1])
	last := f.emitter.events[len(f.emitter.events)-1]
	require.Equal(t, pipeline.StepProbe, last.Step)
	require.Contains(t, last.Note, "report unreachable")
}

func TestProcessRunMidPipelineFailureKeepsCounters(t *testing.T) {
	f := newFixture(t)
	f.worker.violations = &stubJoiner{err: errors.New("food codes table gone")}
	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	run, err := f.store.GetRun(context.Background(), req.RunID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusFailed, run.Status)
	require.Equal(t, 2, run.Counters.RowsExported)
	require.Equal(t, 2, run.Counters.RowsGeocoded)
	require.Equal(t, 4, run.Counters.StepsCompleted)
	require.Empty(t, f.blobs.paths)
}

func TestProcessRunCanceledStatus(t *testing.T) {
	f := newFixture(t)
	f.worker.geocoder = &stubEnricher{err: context.Canceled}
	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)

	f.worker.processRun(context.Background(), req)

	run, err := f.store.GetRun(context.Background(), req.RunID)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusCanceled, run.Status)
}

func TestProcessRunRejectsMalformedRunID(t *testing.T) {
	f := newFixture(t)

	f.worker.processRun(context.Background(), pipeline.RunRequest{RunID: "not-a-uuid", Trigger: pipeline.TriggerManual})

	require.Empty(t, f.emitter.stages())
	require.Zero(t, f.prober.calls)
}

func TestRunConsumesQueueUntilCanceled(t *testing.T) {
	f := newFixture(t)
	q := queuemem.NewQueue(4)
	f.worker.queue = q

	req := newRequest(t, pipeline.TriggerManual)
	createRun(t, f.store, req)
	require.NoError(t, q.Enqueue(context.Background(), pipeline.RunRequest{RunID: req.RunID, Trigger: req.Trigger, Submitted: req.Submitted}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		run, err := f.store.GetRun(context.Background(), req.RunID)
		return err == nil && run.Status == pipeline.RunStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
