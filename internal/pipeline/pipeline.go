package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"shapelearner/internal/capture"
	"shapelearner/internal/classifier"
	"shapelearner/internal/extractor"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/logging"
	"shapelearner/internal/mesh"
	"shapelearner/internal/render"
	"shapelearner/internal/services"
)

// JobStore is the subset of jobs.Store a run needs.
type JobStore interface {
	Create(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*jobs.Job, error)
	Update(ctx context.Context, req jobs.UpdateRequest) (int64, error)
	AttachResult(ctx context.Context, result jobs.Result) error
}

// Capturer renders the views of a mesh file.
type Capturer interface {
	CaptureFile(ctx context.Context, path string, sched render.Schedule, outputDir string) ([]capture.View, error)
}

// Classifier ranks labels for a stored feature row.
type Classifier interface {
	PredictID(ctx context.Context, id int64, filter knn.Filter) (classifier.Prediction, error)
}

// FeatureWriter stores feature rows returned by the extractor.
type FeatureWriter interface {
	Upsert(ctx context.Context, samples []knn.Sample) error
}

// Options configures a Pipeline.
type Options struct {
	Schedule   render.Schedule
	OutputDir  string
	WorkerIP   string
	WorkerPort int
	Filter     knn.Filter
	Logger     *slog.Logger
}

// Part identifies the work of one run. A zero JobID creates a new job.
type Part struct {
	JobID    int64
	PartID   int64
	MeshPath string
	Label    string
}

// Outcome is what a successful run produced.
type Outcome struct {
	JobID     int64
	FeatureID int64
	Views     []capture.View
	Result    jobs.Result
}

// Pipeline wires the stages together.
type Pipeline struct {
	jobs       JobStore
	capturer   Capturer
	extractor  extractor.Extractor
	features   FeatureWriter
	classifier Classifier
	opts       Options
	logger     *slog.Logger
}

// New constructs a pipeline. ext may be nil, in which case every run fails at
// the extraction stage with a configuration error.
func New(jobStore JobStore, capturer Capturer, ext extractor.Extractor, features FeatureWriter, clf Classifier, opts Options) *Pipeline {
	return &Pipeline{
		jobs:       jobStore,
		capturer:   capturer,
		extractor:  ext,
		features:   features,
		classifier: clf,
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// Process runs every stage for part.
func (p *Pipeline) Process(ctx context.Context, part Part) (Outcome, error) {
	if part.MeshPath == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "process", "mesh path required", nil)
	}
	if part.PartID < 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "process", "part id can't be negative", nil)
	}
	if part.JobID == 0 {
		id, err := p.jobs.Create(ctx)
		if err != nil {
			return Outcome{}, err
		}
		part.JobID = id
	} else if _, err := p.jobs.Get(ctx, part.JobID); err != nil {
		return Outcome{}, err
	}

	ctx = services.WithJobID(ctx, part.JobID)
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	outcome, stage, err := p.run(ctx, logger, part)
	if err != nil {
		if failErr := p.finish(context.WithoutCancel(ctx), part, jobs.StatusFailed, err.Error()); failErr != nil {
			err = multierror.Append(err, failErr)
		}
		logging.ErrorWithContext(logger, "part processing failed", "part_failed",
			logging.String(logging.FieldStage, stage),
			logging.String("mesh", part.MeshPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return Outcome{JobID: part.JobID}, err
	}

	logger.Info("part processed",
		logging.String(logging.FieldEventType, "part_completed"),
		logging.Int64("feature_id", outcome.FeatureID),
		logging.Int("views", len(outcome.Views)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return outcome, nil
}

// run returns the stage that failed alongside any error.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, part Part) (Outcome, string, error) {
	out := Outcome{JobID: part.JobID}

	if err := p.progress(ctx, part, "capturing views"); err != nil {
		return out, "start", err
	}
	views, err := p.capturer.CaptureFile(services.WithStage(ctx, "capture"), part.MeshPath, p.opts.Schedule, p.viewDir(part))
	if err != nil {
		return out, "capture", err
	}
	out.Views = views
	logger.Debug("views captured", logging.Int("views", len(views)))

	if err := p.progress(ctx, part, "extracting features"); err != nil {
		return out, "capture", err
	}
	featureID, err := p.extract(services.WithStage(ctx, "extract"), part, views)
	if err != nil {
		return out, "extract", err
	}
	out.FeatureID = featureID

	if err := p.progress(ctx, part, "classifying"); err != nil {
		return out, "extract", err
	}
	prediction, err := p.classifier.PredictID(services.WithStage(ctx, "classify"), featureID, p.opts.Filter)
	if err != nil {
		return out, "classify", err
	}

	out.Result = jobs.Result{
		JobID:        part.JobID,
		PartID:       prediction.PartID,
		ModelVersion: prediction.ModelVersion,
		Classes:      prediction.Classes,
	}
	if err := p.jobs.AttachResult(ctx, out.Result); err != nil {
		return out, "attach", err
	}
	if err := p.finish(ctx, part, jobs.StatusCompleted, summarize(prediction.Classes)); err != nil {
		return out, "finish", err
	}
	return out, "", nil
}

func (p *Pipeline) extract(ctx context.Context, part Part, views []capture.View) (int64, error) {
	if p.extractor == nil {
		return 0, services.Wrap(services.ErrConfiguration, "pipeline", "extract", "no feature extractor configured", nil)
	}
	images := make([]string, len(views))
	for i, v := range views {
		images[i] = v.Path
	}
	resp, err := p.extractor.Extract(ctx, extractor.Request{PartID: part.PartID, Label: part.Label, Images: images})
	if err != nil {
		return 0, err
	}
	if len(resp.Features) > 0 {
		if p.features == nil {
			return 0, services.Wrap(services.ErrConfiguration, "pipeline", "extract", "extractor returned features but no feature store is configured", nil)
		}
		sample := knn.Sample{ID: resp.FeatureID, Label: part.Label, Features: resp.Features}
		if err := p.features.Upsert(ctx, []knn.Sample{sample}); err != nil {
			return 0, err
		}
	}
	return resp.FeatureID, nil
}

func (p *Pipeline) progress(ctx context.Context, part Part, message string) error {
	_, err := p.jobs.Update(ctx, p.request(part, jobs.StatusInProgress, message))
	return err
}

func (p *Pipeline) finish(ctx context.Context, part Part, status jobs.Status, message string) error {
	_, err := p.jobs.Update(ctx, p.request(part, status, message))
	return err
}

func (p *Pipeline) request(part Part, status jobs.Status, message string) jobs.UpdateRequest {
	return jobs.UpdateRequest{
		ID:         part.JobID,
		Status:     status,
		PartID:     part.PartID,
		PartName:   mesh.BaseName(part.MeshPath),
		WorkerIP:   p.opts.WorkerIP,
		WorkerPort: p.opts.WorkerPort,
		Message:    message,
	}
}

func (p *Pipeline) viewDir(part Part) string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("job-%d", part.JobID))
}

func summarize(classes []knn.Candidate) string {
	if len(classes) == 0 {
		return "no class met the confidence filter"
	}
	return fmt.Sprintf("best match %s (%.1f%%)", classes[0].Label, classes[0].Probability*100)
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrRender):
		return "check the mesh file and output directory"
	case errors.Is(err, services.ErrExternalTool):
		return "check the feature extractor"
	case errors.Is(err, services.ErrModelUnavailable):
		return "recompute the model"
	case errors.Is(err, services.ErrStoreUnavailable):
		return "check the database"
	default:
		return "check logs for details"
	}
}
