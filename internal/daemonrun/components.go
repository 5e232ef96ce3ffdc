package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"shapelearner/internal/capture"
	"shapelearner/internal/classifier"
	"shapelearner/internal/config"
	"shapelearner/internal/daemon"
	"shapelearner/internal/extractor"
	"shapelearner/internal/features"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/modelstore"
	"shapelearner/internal/pipeline"
	"shapelearner/internal/preflight"
	"shapelearner/internal/raster"
	"shapelearner/internal/render"
)

// Components are the opened stores and services shared by the daemon and the
// CLI commands that work against local state.
type Components struct {
	Jobs       *jobs.Store
	Features   *features.Store
	Models     *modelstore.Store
	Extractor  extractor.Extractor
	Classifier *classifier.Service
}

// OpenComponents opens every store named by cfg. A store that cannot be
// reached is fatal here; callers retry in-flight operations instead.
func OpenComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	c := &Components{}

	var err error
	if c.Jobs, err = jobs.Open(cfg); err != nil {
		return nil, err
	}
	if c.Features, err = features.OpenConfig(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	if c.Models, err = modelstore.Open(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	if c.Extractor, err = extractor.New(cfg.Extractor); err != nil {
		c.Close()
		return nil, err
	}

	weighting, err := knn.ParseWeighting(cfg.Classifier.Weighting)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Classifier = classifier.New(c.Features, c.Models, classifier.Options{
		Params:         knn.Params{Neighbors: cfg.Classifier.Neighbors, Weighting: weighting},
		FitTimeout:     cfg.FitTimeout(),
		PredictTimeout: cfg.PredictTimeout(),
		Logger:         logger,
	})
	return c, nil
}

// Close releases the stores, reporting every failure.
func (c *Components) Close() error {
	var result *multierror.Error
	if c.Features != nil {
		if err := c.Features.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close feature store: %w", err))
		}
	}
	if c.Jobs != nil {
		if err := c.Jobs.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close job store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Preflight runs the startup checks against the opened components.
func (c *Components) Preflight(ctx context.Context, cfg *config.Config) []preflight.Result {
	targets := preflight.Targets{Jobs: c.Jobs, Extractor: c.Extractor}
	if c.Features != nil {
		targets.Features = c.Features
	}
	if c.Models != nil {
		targets.Models = c.Models
	}
	return preflight.RunAll(ctx, cfg, targets)
}

// DaemonDependencies adapts the components for daemon.New.
func (c *Components) DaemonDependencies(cfg *config.Config) daemon.Dependencies {
	return daemon.Dependencies{
		Jobs:         c.Jobs,
		Classifier:   c.Classifier,
		Features:     c.Features,
		Models:       c.Models,
		Extractor:    c.Extractor,
		FeatureStore: cfg.Store.Driver + ":" + c.Features.Table(),
		ModelStore:   cfg.ModelStore.Backend + ":" + c.Models.Location(),
	}
}

// Schedule resolves the configured difficulty into a capture schedule.
func Schedule(cfg *config.Config) (render.Schedule, error) {
	difficulty, err := cfg.Difficulty()
	if err != nil {
		return render.Schedule{}, err
	}
	return render.NewSchedule(difficulty)
}

// NewRenderContext returns a software rendering context sized from cfg.
func NewRenderContext(cfg *config.Config) capture.Context {
	return raster.New(raster.Options{Width: cfg.Render.Width, Height: cfg.Render.Height})
}

// Pipeline builds a part pipeline over the components. filter narrows the
// classification attached to each job.
func (c *Components) Pipeline(cfg *config.Config, filter knn.Filter, logger *slog.Logger) (*pipeline.Pipeline, error) {
	sched, err := Schedule(cfg)
	if err != nil {
		return nil, err
	}
	capturer := capture.New(NewRenderContext(cfg),
		capture.WithLogger(logger),
		capture.WithTimeout(cfg.CaptureTimeout()),
		capture.WithLockFile(filepath.Join(cfg.Paths.LockDir, "render-pipeline.lock")),
	)
	return pipeline.New(c.Jobs, capturer, c.Extractor, c.Features, c.Classifier, pipeline.Options{
		Schedule:   sched,
		OutputDir:  cfg.Paths.OutputDir,
		WorkerIP:   cfg.Worker.AdvertiseIP,
		WorkerPort: cfg.Worker.AdvertisePort,
		Filter:     filter,
		Logger:     logger,
	}), nil
}
