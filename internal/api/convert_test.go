package api_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shapelearner/internal/api"
	"shapelearner/internal/classifier"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

func TestFromJobFormatsFields(t *testing.T) {
	updated := time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC)
	job := &jobs.Job{
		ID:         7,
		Status:     jobs.StatusInProgress,
		PartID:     12,
		PartName:   "bracket",
		WorkerIP:   "10.0.0.4",
		WorkerPort: 9001,
		Message:    "capturing views",
		CreatedAt:  updated.Add(-time.Minute),
		UpdatedAt:  updated,
	}
	dto := api.FromJob(job)
	if dto.IDJob != 7 || dto.JobStatus != "InProgress" || dto.ServerPort != 9001 {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.UpdateDate != "2024-03-09T14:05:06.789Z" {
		t.Fatalf("unexpected update date %q", dto.UpdateDate)
	}

	payload, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"idJob", "jobStatus", "partID", "partName", "serverIP", "serverPort", "message", "updateDate"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing key %q in %s", key, payload)
		}
	}
}

func TestFromJobNil(t *testing.T) {
	if dto := api.FromJob(nil); dto.IDJob != 0 || dto.JobStatus != "" {
		t.Fatalf("expected zero dto, got %+v", dto)
	}
}

func TestFromPredictionEncodesPairs(t *testing.T) {
	dto := api.FromPrediction(classifier.Prediction{
		PartID:       3,
		ModelVersion: 2,
		Classes:      []knn.Candidate{{Label: "gear", Probability: 0.75}, {Label: "nut", Probability: 0.25}},
	})
	payload, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"predictedClasses":[["gear",0.75],["nut",0.25]],"partID":3,"modelVersion":2}`
	if string(payload) != want {
		t.Fatalf("unexpected payload\n got %s\nwant %s", payload, want)
	}
}

func TestFromPredictionEmptyClassesIsArray(t *testing.T) {
	payload, err := json.Marshal(api.FromPrediction(classifier.Prediction{PartID: 1}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"predictedClasses":[],"partID":1}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestFromModel(t *testing.T) {
	if api.FromModel(nil) != nil {
		t.Fatal("expected nil info for nil model")
	}
	model, err := knn.Fit([]knn.Sample{
		{ID: 1, Label: "cube", Features: []float64{0, 0}},
		{ID: 2, Label: "gear", Features: []float64{5, 5}},
	}, knn.Params{Neighbors: 1, Weighting: knn.Uniform})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	info := api.FromModel(model.WithVersion(4))
	if info.Version != 4 || info.Samples != 2 || info.Width != 2 || info.Weighting != "uniform" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestUpdateRequestAcceptsStringNumbers(t *testing.T) {
	body := `{"jobID":"5","jobStatus":"In Progress","partID":"","partName":"hub","serverIP":"10.1.1.1","serverPort":"8080","message":"working"}`
	var req api.UpdateJobRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	update, err := api.ToUpdateRequest(req)
	if err != nil {
		t.Fatalf("to update: %v", err)
	}
	if update.ID != 5 || update.Status != jobs.StatusInProgress || update.PartID != 0 || update.WorkerPort != 8080 {
		t.Fatalf("unexpected update %+v", update)
	}
	if update.ExpectedStatus != "" {
		t.Fatalf("expected no precondition, got %q", update.ExpectedStatus)
	}
}

func TestUpdateRequestRejectsBadValues(t *testing.T) {
	var req api.UpdateJobRequest
	if err := json.Unmarshal([]byte(`{"jobID":"five"}`), &req); err == nil {
		t.Fatal("expected non-numeric id to fail")
	}
	_, err := api.ToUpdateRequest(api.UpdateJobRequest{JobID: 1, JobStatus: "Exploded"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = api.ToUpdateRequest(api.UpdateJobRequest{JobID: 1, JobStatus: "Completed", ExpectedStatus: "bogus"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for precondition, got %v", err)
	}
}

func TestParsePredict(t *testing.T) {
	id, filter, err := api.ParsePredict("4", "3", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 4 || filter.NMax == nil || *filter.NMax != 3 || filter.PMin != nil {
		t.Fatalf("unexpected result id=%d filter=%+v", id, filter)
	}

	_, filter, err = api.ParsePredict("4", "", "12.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if filter.NMax != nil || filter.PMin == nil || *filter.PMin != 12.5 {
		t.Fatalf("unexpected filter %+v", filter)
	}

	_, filter, err = api.ParsePredict("4", "2", "100")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if filter.NMax == nil || filter.PMin == nil {
		t.Fatalf("expected both bounds, got %+v", filter)
	}
}

func TestParsePredictMessages(t *testing.T) {
	cases := []struct {
		id, nmax, pmax string
		want           string
	}{
		{"-1", "", "", "id parameter can't be negative"},
		{"abc", "", "", "id parameter must be an integer"},
		{"1", "0", "", "nmax parameter can't be negative or null"},
		{"1", "-3", "", "nmax parameter can't be negative or null"},
		{"1", "", "-0.5", "pmax parameter can't be negative"},
		{"1", "", "100.1", "pmax parameter can't be greater than 100"},
		{"1", "x", "", "nmax parameter must be an integer"},
		{"1", "", "NaN", "pmax parameter must be a number"},
		{"1", "", "nan", "pmax parameter must be a number"},
		{"1", "", "+Inf", "pmax parameter can't be greater than 100"},
		{"1", "", "-Inf", "pmax parameter can't be negative"},
	}
	for _, tc := range cases {
		_, _, err := api.ParsePredict(tc.id, tc.nmax, tc.pmax)
		if !errors.Is(err, services.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", tc, err)
			continue
		}
		if got := services.Message(err); got != tc.want {
			t.Errorf("%+v: expected %q, got %q", tc, tc.want, got)
		}
	}
}
