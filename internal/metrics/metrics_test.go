package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil
	queueDepth = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil || queueDepth == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveHTTPRequest("GET", "/healthz", 200, 5*time.Millisecond)
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val < 1 {
		t.Errorf("Expected httpRequestsTotal for GET 200 to be at least 1, got %f", val)
	}

	SetQueueDepth(3)
	if val := testutil.ToFloat64(queueDepth); val != 3 {
		t.Errorf("Expected queueDepth to be 3, got %f", val)
	}
}
