package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by BlobStore.GetObject when the key is absent.
var ErrObjectNotFound = errors.New("object not found")

// ErrRunNotFound is returned by RunStore lookups for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists run and step metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	SetObjectURI(ctx context.Context, runID string, uri string) error
	RecordStep(ctx context.Context, result StepResult) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// BlobStore reads and writes bucket objects and returns URIs on write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for pipeline runs.
type Queue interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// Prober verifies the report endpoint is reachable before the browser starts.
type Prober interface {
	Probe(ctx context.Context) error
}

// Exporter drives the report UI and returns the path of the downloaded workbook.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Hasher computes digests for published artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
