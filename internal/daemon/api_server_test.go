package daemon_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
)

func TestJobLifecycleRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/createJob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("createJob: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	created := decode[api.CreateJobResponse](t, rec)
	if created.JobID != 1 {
		t.Fatalf("expected job 1, got %d", created.JobID)
	}

	rec = h.do(t, http.MethodPost, "/getJobStatus", `{"idJob":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("getJobStatus: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	job := decode[api.JobStatus](t, rec)
	if job.JobStatus != "Created" || job.PartID != 0 || job.PartName != "" || job.Message != "" {
		t.Fatalf("unexpected fresh job %+v", job)
	}
	if job.UpdateDate == "" {
		t.Fatal("expected update date")
	}

	body := `{"jobID":"1","jobStatus":"In Progress","partID":"3","partName":"flange","serverIP":"10.0.0.9","serverPort":"8080","message":"capturing views"}`
	rec = h.do(t, http.MethodPost, "/updateJob", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("updateJob: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if updated := decode[api.UpdateJobResponse](t, rec); updated.JobID != 1 {
		t.Fatalf("expected job 1 echoed, got %d", updated.JobID)
	}

	rec = h.do(t, http.MethodGet, "/getJobStatus?idJob=1", "")
	job = decode[api.JobStatus](t, rec)
	if job.JobStatus != "InProgress" || job.PartID != 3 || job.ServerPort != 8080 || job.ServerIP != "10.0.0.9" {
		t.Fatalf("unexpected updated job %+v", job)
	}

	rec = h.do(t, http.MethodGet, "/jobs?status=InProgress", "")
	if list := decode[api.JobListResponse](t, rec); len(list.Jobs) != 1 {
		t.Fatalf("expected one in-progress job, got %+v", list)
	}
}

func TestUpdateJobErrors(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/createJob", "")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown job", `{"jobID":42,"jobStatus":"InProgress"}`, http.StatusNotFound},
		{"unknown status", `{"jobID":1,"jobStatus":"Exploded"}`, http.StatusBadRequest},
		{"bad json", `{"jobID":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/updateJob", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body)
			}
			if resp := decode[api.ErrorResponse](t, rec); resp.Error == "" {
				t.Fatal("expected error message")
			}
		})
	}

	rec := h.do(t, http.MethodPost, "/updateJob", `{"jobID":1,"jobStatus":"Completed","message":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rec = h.do(t, http.MethodPost, "/updateJob", `{"jobID":1,"jobStatus":"InProgress"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for terminal job, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetJobStatusUnknown(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/getJobStatus", `{"idJob":"9"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/getJobStatus", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idJob, got %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/jobResult?idJob=9", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing result, got %d", rec.Code)
	}
}

func TestPredictRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/predict/id/1/nmax/2", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before any model, got %d: %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodGet, "/recomputeModel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != api.RecomputeAcknowledgement {
		t.Fatalf("unexpected acknowledgement %q", rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/predict/id/1/nmax/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	resp := decode[api.PredictResponse](t, rec)
	if resp.PartID != 1 || len(resp.PredictedClasses) != 2 {
		t.Fatalf("unexpected prediction %+v", resp)
	}
	if top := resp.PredictedClasses[0]; top.Label != "cube" || top.Probability != 1 {
		t.Fatalf("expected exact match to win, got %+v", top)
	}
	if !strings.Contains(rec.Body.String(), `["cube",1]`) {
		t.Fatalf("expected pair encoding, got %s", rec.Body)
	}

	rec = h.do(t, http.MethodGet, "/predict/id/1/pmax/50", "")
	if resp := decode[api.PredictResponse](t, rec); len(resp.PredictedClasses) != 1 {
		t.Fatalf("expected only the confident class, got %+v", resp)
	}

	rec = h.do(t, http.MethodGet, "/predict/id/3/nmax/1/pmax/0", "")
	if resp := decode[api.PredictResponse](t, rec); len(resp.PredictedClasses) != 1 || resp.PredictedClasses[0].Label != "cylinder" {
		t.Fatalf("unexpected combined prediction %+v", resp)
	}
}

func TestPredictValidationMessages(t *testing.T) {
	h := newHarness(t)
	if _, err := h.classifier.Recompute(context.Background()); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"/predict/id/-1/nmax/3", "id parameter can't be negative"},
		{"/predict/id/1/nmax/0", "nmax parameter can't be negative or null"},
		{"/predict/id/1/pmax/-1", "pmax parameter can't be negative"},
		{"/predict/id/1/pmax/101", "pmax parameter can't be greater than 100"},
		{"/predict/id/1/pmax/NaN", "pmax parameter must be a number"},
		{"/predict/id/99/nmax/1", "Index Out of Range. Max Index = 5"},
		{"/predict/id/0/pmax/10", "Index Out of Range. Max Index = 5"},
	}
	for _, tc := range cases {
		rec := h.do(t, http.MethodGet, tc.path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.path, rec.Code)
			continue
		}
		if resp := decode[api.ErrorResponse](t, rec); resp.Error != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.path, tc.want, resp.Error)
		}
	}
}

func TestTrailingSlashAndRequestID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/createJob/", "", "X-Request-ID", "req-123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	rec = h.do(t, http.MethodGet, "/createJob", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestTokenRequired(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.API.Token = "s3cret" })

	if rec := h.do(t, http.MethodGet, "/createJob", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/createJob", "", "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/createJob", "", "Authorization", "Bearer s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected metrics to stay open, got %d", rec.Code)
	}
}

func TestStatusAndInitDB(t *testing.T) {
	h := newHarness(t)
	if _, err := h.classifier.Recompute(context.Background()); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	h.do(t, http.MethodGet, "/createJob", "")

	rec := h.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[api.DaemonStatus](t, rec)
	if status.Model == nil || status.Model.Version != 1 || status.Model.Samples != 5 {
		t.Fatalf("unexpected model info %+v", status.Model)
	}
	if status.JobCounts["Created"] != 1 {
		t.Fatalf("unexpected job counts %+v", status.JobCounts)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight checks in status")
	}

	rec = h.do(t, http.MethodGet, "/initdb", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected initdb response %d %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "shapelearner_model_version") {
		t.Fatal("expected model gauge in metrics output")
	}
}
