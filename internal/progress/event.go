// Package progress defines the event structures emitted while a pipeline run
// executes.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageKeepalive Stage = "RUN_KEEPALIVE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageStepStart Stage = "STEP_START"
	StageStepDone  Stage = "STEP_DONE"
)

// Event captures a single milestone of pipeline progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or step milestone occurred.
	Stage Stage
	// Step scopes step events to a pipeline step.
	Step pipeline.Step
	// Trigger records what started the run (manual or schedule).
	Trigger pipeline.TriggerKind
	// Rows carries the record count a step produced or touched.
	Rows int64
	// Dur captures execution latency for steps and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageKeepalive, StageRunDone, StageRunError:
	case StageStepStart, StageStepDone:
		if e.Step == "" {
			return errors.New("step events require a step")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
