package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"shapelearner/internal/logging"
	"shapelearner/internal/render"
	"shapelearner/internal/services"
)

// Target is one mesh of a batch and the directory its frames go to.
type Target struct {
	Category  string
	MeshPath  string
	OutputDir string
}

// Failure records a mesh the batch could not capture.
type Failure struct {
	MeshPath string
	Err      error
}

// Report summarizes a batch run.
type Report struct {
	Meshes   int
	Views    int
	Failures []Failure
}

// Err combines per-mesh failures, or returns nil when every mesh succeeded.
func (r Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, fmt.Errorf("%s: %w", f.MeshPath, f.Err))
	}
	return result.ErrorOrNil()
}

// Discover lists STL meshes under inputDir. Files directly inside a category
// subdirectory are mirrored to outputDir/<category>; top-level files go to
// outputDir itself. Results are sorted by path.
func Discover(inputDir, outputDir string) ([]Target, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "capture", "discover", inputDir, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "capture", "discover", inputDir+" is not a directory", nil)
	}

	var targets []Target
	err = filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".stl") {
			return nil
		}
		rel, err := filepath.Rel(inputDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		category := ""
		if rel != "." {
			category = filepath.ToSlash(rel)
		}
		targets = append(targets, Target{
			Category:  category,
			MeshPath:  path,
			OutputDir: filepath.Join(outputDir, filepath.FromSlash(category)),
		})
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "capture", "discover", inputDir, err)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].MeshPath < targets[j].MeshPath })
	return targets, nil
}

// BatchOptions configures Batch.
type BatchOptions struct {
	Workers int
	// NewContext returns a fresh rendering context for each worker.
	NewContext func() Context
	// LockDir, when set, holds one lock file per worker context.
	LockDir string
	Logger  *slog.Logger
	Capture []Option
}

// Batch captures every target. Each worker owns its own rendering context, so
// meshes run in parallel while every context still sees one run at a time. A
// failing mesh is recorded and the batch moves on; only cancellation of ctx
// stops it early.
func Batch(ctx context.Context, targets []Target, sched render.Schedule, opts BatchOptions) (Report, error) {
	if opts.NewContext == nil {
		return Report{}, errors.New("capture batch requires a rendering context factory")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(targets) && len(targets) > 0 {
		workers = len(targets)
	}
	logger := logging.NewComponentLogger(opts.Logger, "capture-batch")

	var (
		mu     sync.Mutex
		report = Report{Meshes: len(targets)}
	)
	queue := make(chan Target)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, target := range targets {
			select {
			case queue <- target:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for worker := 0; worker < workers; worker++ {
		captureOpts := append([]Option{WithLogger(opts.Logger)}, opts.Capture...)
		if opts.LockDir != "" {
			captureOpts = append(captureOpts, WithLockFile(filepath.Join(opts.LockDir, fmt.Sprintf("render-%d.lock", worker))))
		}
		capturer := New(opts.NewContext(), captureOpts...)

		g.Go(func() error {
			for target := range queue {
				views, err := capturer.CaptureFile(gctx, target.MeshPath, sched, target.OutputDir)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				if err != nil {
					report.Failures = append(report.Failures, Failure{MeshPath: target.MeshPath, Err: err})
				} else {
					report.Views += len(views)
				}
				mu.Unlock()
				if err != nil {
					logging.WarnWithContext(logger, "mesh capture failed", "capture_failed",
						logging.String("mesh", target.MeshPath),
						logging.Error(err),
						logging.String(logging.FieldImpact, "mesh skipped; batch continues"),
					)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].MeshPath < report.Failures[j].MeshPath })
	logger.Info("capture batch finished",
		logging.Int("meshes", report.Meshes),
		logging.Int("views", report.Views),
		logging.Int("failed", len(report.Failures)),
	)
	return report, err
}
