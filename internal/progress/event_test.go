package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"run start", Event{RunID: id, TS: now, Stage: StageRunStart}, false},
		{"keepalive", Event{RunID: id, TS: now, Stage: StageKeepalive, Trigger: pipeline.TriggerSchedule}, false},
		{"step done", Event{RunID: id, TS: now, Stage: StageStepDone, Step: pipeline.StepUpload}, false},
		{"missing run id", Event{TS: now, Stage: StageRunStart}, true},
		{"missing timestamp", Event{RunID: id, Stage: StageRunStart}, true},
		{"step without step name", Event{RunID: id, TS: now, Stage: StageStepStart}, true},
		{"unknown stage", Event{RunID: id, TS: now, Stage: "BOGUS"}, true},
		{"negative duration", Event{RunID: id, TS: now, Stage: StageRunDone, Dur: -time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRunUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: UUIDToBytes(id)}
	require.Equal(t, id, evt.RunUUID())
}
