package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"shapelearner/internal/capture"
	"shapelearner/internal/classifier"
	"shapelearner/internal/config"
	"shapelearner/internal/extractor"
	"shapelearner/internal/features"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/modelstore"
	"shapelearner/internal/pipeline"
	"shapelearner/internal/raster"
	"shapelearner/internal/render"
	"shapelearner/internal/services"
	"shapelearner/internal/testsupport"
)

type stubExtractor struct {
	resp    extractor.Response
	err     error
	request extractor.Request
}

func (s *stubExtractor) Extract(_ context.Context, req extractor.Request) (extractor.Response, error) {
	s.request = req
	return s.resp, s.err
}

type harness struct {
	cfg      *config.Config
	jobs     *jobs.Store
	features *features.Store
	service  *classifier.Service
	meshPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	jobStore := testsupport.MustOpenJobStore(t, cfg)
	featureStore := testsupport.MustOpenFeatureStore(t, cfg, 2, testsupport.ShapeRows()...)
	svc := classifier.New(featureStore, modelstore.New(modelstore.NewLocal(cfg.ModelStore.Dir), nil), classifier.Options{
		Params: knn.Params{Neighbors: 3, Weighting: knn.Distance},
	})
	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	meshPath := filepath.Join(cfg.Paths.InputDir, "brackets", "bracket.stl")
	testsupport.WriteCube(t, meshPath, 2)
	return &harness{cfg: cfg, jobs: jobStore, features: featureStore, service: svc, meshPath: meshPath}
}

func (h *harness) pipeline(t *testing.T, ext extractor.Extractor) *pipeline.Pipeline {
	t.Helper()
	difficulty, err := h.cfg.Difficulty()
	if err != nil {
		t.Fatalf("Difficulty: %v", err)
	}
	sched, err := render.NewSchedule(difficulty)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	rc := raster.New(raster.Options{Width: h.cfg.Render.Width, Height: h.cfg.Render.Height})
	return pipeline.New(h.jobs, capture.New(rc), ext, h.features, h.service, pipeline.Options{
		Schedule:   sched,
		OutputDir:  h.cfg.Paths.OutputDir,
		WorkerIP:   "10.0.0.5",
		WorkerPort: 9100,
		Filter:     knn.TopN(2),
	})
}

func TestProcessCompletesJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ext := &stubExtractor{resp: extractor.Response{FeatureID: 50, Features: []float64{0.2, 0.3}}}

	outcome, err := h.pipeline(t, ext).Process(ctx, pipeline.Part{PartID: 77, MeshPath: h.meshPath})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.JobID == 0 || outcome.FeatureID != 50 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(outcome.Views) != 4 {
		t.Fatalf("expected 4 views, got %d", len(outcome.Views))
	}
	if len(ext.request.Images) != 4 || ext.request.PartID != 77 {
		t.Fatalf("unexpected extractor request %+v", ext.request)
	}
	for _, v := range outcome.Views {
		if _, err := os.Stat(v.Path); err != nil {
			t.Fatalf("view %s missing: %v", v.Path, err)
		}
	}

	job, err := h.jobs.Get(ctx, outcome.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed job, got %s (%s)", job.Status, job.Message)
	}
	if job.PartID != 77 || job.PartName != "bracket" || job.WorkerIP != "10.0.0.5" || job.WorkerPort != 9100 {
		t.Fatalf("unexpected job fields %+v", job)
	}

	result, err := h.jobs.Result(ctx, outcome.JobID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(result.Classes) != 2 || result.Classes[0].Label != "cube" {
		t.Fatalf("unexpected classes %+v", result.Classes)
	}
	if result.PartID != 50 {
		t.Fatalf("expected result part id 50, got %d", result.PartID)
	}

	row, err := h.features.Get(ctx, 50)
	if err != nil {
		t.Fatalf("feature row not stored: %v", err)
	}
	if row.Label != "" {
		t.Fatalf("expected unlabeled row, got %q", row.Label)
	}
}

func TestProcessMarksJobFailedOnExtractorError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	jobID, err := h.jobs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ext := &stubExtractor{err: services.Wrap(services.ErrExternalTool, "extractor", "extract", "connection refused", nil)}

	_, err = h.pipeline(t, ext).Process(ctx, pipeline.Part{JobID: jobID, PartID: 3, MeshPath: h.meshPath})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	job, err := h.jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.Message == "" {
		t.Fatal("expected failure message on job")
	}
	if _, err := h.jobs.Result(ctx, jobID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no result, got %v", err)
	}
}

func TestProcessFailsOnBrokenMesh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	broken := filepath.Join(h.cfg.Paths.InputDir, "broken.stl")
	testsupport.WriteFile(t, broken, []byte("solid broken\nendsolid broken\n"))

	outcome, err := h.pipeline(t, &stubExtractor{}).Process(ctx, pipeline.Part{PartID: 1, MeshPath: broken})
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	job, err := h.jobs.Get(ctx, outcome.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
}

func TestProcessWithoutExtractor(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline(t, nil).Process(context.Background(), pipeline.Part{PartID: 1, MeshPath: h.meshPath})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestProcessRejectsTerminalJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	jobID, err := h.jobs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.jobs.Update(ctx, jobs.UpdateRequest{ID: jobID, Status: jobs.StatusCompleted}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, err = h.pipeline(t, &stubExtractor{}).Process(ctx, pipeline.Part{JobID: jobID, PartID: 1, MeshPath: h.meshPath})
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
