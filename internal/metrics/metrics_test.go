package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPredictionSplitsByResult(t *testing.T) {
	ok := predictions.With(prometheus.Labels{"result": "ok"})
	failed := predictions.With(prometheus.Labels{"result": "error"})
	okBefore := testutil.ToFloat64(ok)
	failedBefore := testutil.ToFloat64(failed)

	RecordPrediction(nil, time.Millisecond)
	RecordPrediction(errors.New("boom"), time.Millisecond)
	RecordPrediction(nil, time.Millisecond)

	if got := testutil.ToFloat64(ok) - okBefore; got != 2 {
		t.Fatalf("ok predictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Fatalf("failed predictions = %v, want 1", got)
	}
}

func TestSetActiveModel(t *testing.T) {
	SetActiveModel(7, 120)
	if got := testutil.ToFloat64(modelVersion); got != 7 {
		t.Fatalf("model version = %v, want 7", got)
	}
	if got := testutil.ToFloat64(modelSamples); got != 120 {
		t.Fatalf("model samples = %v, want 120", got)
	}
}
