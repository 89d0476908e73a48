// Package pipeline defines core types shared across subsystems.
package pipeline

import "time"

// TriggerKind identifies what started a run.
type TriggerKind string

// Trigger kinds recognized by the dispatcher and scheduler.
const (
	TriggerManual   TriggerKind = "manual"
	TriggerSchedule TriggerKind = "schedule"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Step names a stage of the pipeline. Steps execute in the order listed by
// Steps(); a failing step aborts the run and later steps never execute.
type Step string

// Pipeline steps in execution order.
const (
	StepProbe      Step = "probe"
	StepExport     Step = "export"
	StepClean      Step = "clean"
	StepGeocode    Step = "geocode"
	StepViolations Step = "violations"
	StepCategories Step = "categories"
	StepUpload     Step = "upload"
)

// Steps returns the pipeline steps in execution order.
func Steps() []Step {
	return []Step{
		StepProbe,
		StepExport,
		StepClean,
		StepGeocode,
		StepViolations,
		StepCategories,
		StepUpload,
	}
}

// RunCounters tracks dataset statistics accumulated across a run.
type RunCounters struct {
	RowsExported     int `json:"rows_exported"`
	RowsGeocoded     int `json:"rows_geocoded"`
	AddressesMissing int `json:"addresses_missing"`
	CodesMissing     int `json:"codes_missing"`
	CategoriesNew    int `json:"categories_new"`
	StepsCompleted   int `json:"steps_completed"`
}

// Run represents the metadata persisted for each pipeline execution.
type Run struct {
	ID        string      `json:"id"`
	Trigger   TriggerKind `json:"trigger"`
	Status    RunStatus   `json:"status"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	ObjectURI string      `json:"object_uri,omitempty"`
	Counters  RunCounters `json:"counters"`
}

// StepResult is persisted for each completed or failed step.
type StepResult struct {
	RunID      string    `json:"run_id"`
	Step       Step      `json:"step"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Rows       int       `json:"rows"`
	ErrorText  string    `json:"error_text,omitempty"`
}

// RunRequest wraps a run ready to execute.
type RunRequest struct {
	RunID     string
	Trigger   TriggerKind
	Submitted int64
}
