// Package worker implements the inspection pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
	"github.com/keystonedata/inspections-pipeline/internal/geocode"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
	"github.com/keystonedata/inspections-pipeline/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// ObjectPrefix is the bucket folder the published workbook lands in.
	ObjectPrefix string
	// ObjectName is the published workbook file name.
	ObjectName string
	// ContentType is sent with the workbook upload.
	ContentType string
	// Topic receives the run-completion message.
	Topic string
}

// RecordCleaner normalizes raw export rows into inspection records.
type RecordCleaner interface {
	Clean(raw [][]string) ([]dataset.Inspection, error)
}

// GeocodeEnricher attaches coordinates to records.
type GeocodeEnricher interface {
	Enrich(ctx context.Context, records []dataset.Inspection) (geocode.Result, error)
}

// ViolationJoiner annotates records with food-code details and returns the
// codes missing from the reference table.
type ViolationJoiner interface {
	Join(ctx context.Context, records []dataset.Inspection) ([]string, error)
}

// CategoryManager maintains the category roster and labels records from it.
type CategoryManager interface {
	Upsert(ctx context.Context, records []dataset.Inspection) (int, error)
	Join(ctx context.Context, records []dataset.Inspection) error
}

// Worker consumes run requests and executes the pipeline steps in order. A
// failing step aborts the run; later steps never execute.
type Worker struct {
	queue      pipeline.Queue
	runStore   pipeline.RunStore
	blobStore  pipeline.BlobStore
	publisher  pipeline.Publisher
	hasher     pipeline.Hasher
	clock      pipeline.Clock
	prober     pipeline.Prober
	exporter   pipeline.Exporter
	cleaner    RecordCleaner
	geocoder   GeocodeEnricher
	violations ViolationJoiner
	categories CategoryManager
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue pipeline.Queue,
	runStore pipeline.RunStore,
	blobStore pipeline.BlobStore,
	publisher pipeline.Publisher,
	hasher pipeline.Hasher,
	clock pipeline.Clock,
	prober pipeline.Prober,
	exporter pipeline.Exporter,
	cleaner RecordCleaner,
	geocoder GeocodeEnricher,
	violations ViolationJoiner,
	categories CategoryManager,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ObjectName == "" {
		cfg.ObjectName = "inspections.xlsx"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return &Worker{
		queue:      queue,
		runStore:   runStore,
		blobStore:  blobStore,
		publisher:  publisher,
		hasher:     hasher,
		clock:      clock,
		prober:     prober,
		exporter:   exporter,
		cleaner:    cleaner,
		geocoder:   geocoder,
		violations: violations,
		categories: categories,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming run requests until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID))
		w.processRun(ctx, req)
	}
}

// runState carries intermediate artifacts between steps.
type runState struct {
	req          pipeline.RunRequest
	workbookPath string
	records      []dataset.Inspection
	counters     pipeline.RunCounters
	objectURI    string
	digest       string
}

type stepFunc func(ctx context.Context, st *runState) (int, error)

func (w *Worker) processRun(ctx context.Context, req pipeline.RunRequest) {
	runID, err := parseRunID(req.RunID)
	if err != nil {
		w.logger.Error("invalid run id", zap.String("run_id", req.RunID), zap.Error(err))
		return
	}

	if err := w.runStore.UpdateRunStatus(ctx, req.RunID, pipeline.RunStatusRunning, "", pipeline.RunCounters{}); err != nil {
		w.logger.Error("update run status failed", zap.String("run_id", req.RunID), zap.Error(err))
		return
	}

	started := w.clock.Now()
	w.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageRunStart, Trigger: req.Trigger})
	if req.Trigger == pipeline.TriggerSchedule {
		// The keepalive beat proves the daily trigger fired even when the
		// report has not changed. Manual runs stay silent.
		w.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageKeepalive, Trigger: req.Trigger})
		w.logger.Info("keepalive", zap.Time("ts", started), zap.String("run_id", req.RunID))
	}

	st := &runState{req: req}
	steps := []struct {
		step pipeline.Step
		fn   stepFunc
	}{
		{pipeline.StepProbe, w.stepProbe},
		{pipeline.StepExport, w.stepExport},
		{pipeline.StepClean, w.stepClean},
		{pipeline.StepGeocode, w.stepGeocode},
		{pipeline.StepViolations, w.stepViolations},
		{pipeline.StepCategories, w.stepCategories},
		{pipeline.StepUpload, w.stepUpload},
	}

	for _, s := range steps {
		stepStart := w.clock.Now()
		w.emit(progress.Event{RunID: runID, TS: stepStart, Stage: progress.StageStepStart, Step: s.step, Trigger: req.Trigger})

		rows, err := s.fn(ctx, st)
		stepEnd := w.clock.Now()
		if err != nil {
			w.failRun(ctx, req, runID, s.step, stepEnd, stepEnd.Sub(started), st.counters, err)
			return
		}
		st.counters.StepsCompleted++
		w.emit(progress.Event{
			RunID:   runID,
			TS:      stepEnd,
			Stage:   progress.StageStepDone,
			Step:    s.step,
			Trigger: req.Trigger,
			Rows:    int64(rows),
			Dur:     stepEnd.Sub(stepStart),
		})
	}

	finished := w.clock.Now()
	w.emit(progress.Event{RunID: runID, TS: finished, Stage: progress.StageRunDone, Trigger: req.Trigger, Dur: finished.Sub(started)})
	if err := w.runStore.UpdateRunStatus(ctx, req.RunID, pipeline.RunStatusSucceeded, "", st.counters); err != nil {
		w.logger.Error("final run status update failed", zap.String("run_id", req.RunID), zap.Error(err))
	}
	w.logger.Info("run succeeded",
		zap.String("run_id", req.RunID),
		zap.Int("rows", st.counters.RowsExported),
		zap.Duration("dur", finished.Sub(started)),
	)
}

func (w *Worker) failRun(
	ctx context.Context,
	req pipeline.RunRequest,
	runID [16]byte,
	step pipeline.Step,
	ts time.Time,
	runDur time.Duration,
	counters pipeline.RunCounters,
	err error,
) {
	status := pipeline.RunStatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = pipeline.RunStatusCanceled
	}
	w.emit(progress.Event{
		RunID:   runID,
		TS:      ts,
		Stage:   progress.StageRunError,
		Step:    step,
		Trigger: req.Trigger,
		Dur:     runDur,
		Note:    err.Error(),
	})
	w.logger.Error("run aborted",
		zap.String("run_id", req.RunID),
		zap.String("step", string(step)),
		zap.Error(err),
	)
	if updErr := w.runStore.UpdateRunStatus(ctx, req.RunID, status, err.Error(), counters); updErr != nil {
		w.logger.Error("fail run status update", zap.String("run_id", req.RunID), zap.Error(updErr))
	}
}

func (w *Worker) stepProbe(ctx context.Context, _ *runState) (int, error) {
	if w.prober == nil {
		return 0, errors.New("no prober configured")
	}
	if err := w.prober.Probe(ctx); err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}
	return 0, nil
}

func (w *Worker) stepExport(ctx context.Context, st *runState) (int, error) {
	if w.exporter == nil {
		return 0, errors.New("no exporter configured")
	}
	path, err := w.exporter.Export(ctx)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	st.workbookPath = path
	return 0, nil
}

func (w *Worker) stepClean(_ context.Context, st *runState) (int, error) {
	raw, err := dataset.ReadWorkbookRows(st.workbookPath)
	if err != nil {
		return 0, fmt.Errorf("read workbook: %w", err)
	}
	records, err := w.cleaner.Clean(raw)
	if err != nil {
		return 0, fmt.Errorf("clean: %w", err)
	}
	st.records = records
	st.counters.RowsExported = len(records)
	return len(records), nil
}

func (w *Worker) stepGeocode(ctx context.Context, st *runState) (int, error) {
	res, err := w.geocoder.Enrich(ctx, st.records)
	if err != nil {
		return 0, fmt.Errorf("geocode: %w", err)
	}
	st.counters.RowsGeocoded = res.Geocoded
	st.counters.AddressesMissing = res.Missing
	return res.Geocoded, nil
}

func (w *Worker) stepViolations(ctx context.Context, st *runState) (int, error) {
	missing, err := w.violations.Join(ctx, st.records)
	if err != nil {
		return 0, fmt.Errorf("violations: %w", err)
	}
	st.counters.CodesMissing = len(missing)
	return len(st.records), nil
}

func (w *Worker) stepCategories(ctx context.Context, st *runState) (int, error) {
	added, err := w.categories.Upsert(ctx, st.records)
	if err != nil {
		return 0, fmt.Errorf("categories upsert: %w", err)
	}
	st.counters.CategoriesNew = added
	if err := w.categories.Join(ctx, st.records); err != nil {
		return 0, fmt.Errorf("categories join: %w", err)
	}
	return added, nil
}

func (w *Worker) stepUpload(ctx context.Context, st *runState) (int, error) {
	data, err := dataset.WriteWorkbook(st.records)
	if err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		return 0, fmt.Errorf("hash workbook: %w", err)
	}
	uri, err := w.blobStore.PutObject(ctx, w.objectPath(), w.cfg.ContentType, data)
	if err != nil {
		return 0, fmt.Errorf("upload workbook: %w", err)
	}
	csvData, err := dataset.WriteCSV(st.records)
	if err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	if _, err := w.blobStore.PutObject(ctx, csvPath(w.objectPath()), "text/csv", csvData); err != nil {
		return 0, fmt.Errorf("upload csv: %w", err)
	}
	st.objectURI = uri
	st.digest = digest
	if err := w.runStore.SetObjectURI(ctx, st.req.RunID, uri); err != nil {
		return 0, fmt.Errorf("record object uri: %w", err)
	}
	if err := w.publishCompletion(ctx, st); err != nil {
		return 0, fmt.Errorf("publish completion: %w", err)
	}
	return len(st.records), nil
}

// completionMessage is the payload published when a run finishes uploading.
type completionMessage struct {
	RunID      string `json:"run_id"`
	Trigger    string `json:"trigger"`
	ObjectURI  string `json:"object_uri"`
	Digest     string `json:"digest"`
	Rows       int    `json:"rows"`
	FinishedAt string `json:"finished_at"`
}

func (w *Worker) publishCompletion(ctx context.Context, st *runState) error {
	if w.publisher == nil {
		return nil
	}
	msg := completionMessage{
		RunID:      st.req.RunID,
		Trigger:    string(st.req.Trigger),
		ObjectURI:  st.objectURI,
		Digest:     st.digest,
		Rows:       len(st.records),
		FinishedAt: w.clock.Now().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, msg)
	if err != nil {
		return err
	}
	w.logger.Debug("completion published", zap.String("message_id", id), zap.String("run_id", st.req.RunID))
	return nil
}

func parseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return progress.UUIDToBytes(id), nil
}

func (w *Worker) objectPath() string {
	prefix := strings.Trim(w.cfg.ObjectPrefix, "/")
	if prefix == "" {
		return w.cfg.ObjectName
	}
	return prefix + "/" + w.cfg.ObjectName
}

// csvPath swaps the workbook extension for the companion csv object.
func csvPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter != nil {
		w.emitter.Emit(evt)
	}
}
