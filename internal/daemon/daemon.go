package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"shapelearner/internal/classifier"
	"shapelearner/internal/config"
	"shapelearner/internal/extractor"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
	"shapelearner/internal/logging"
	"shapelearner/internal/preflight"
)

// JobStore is the job persistence served over the API.
type JobStore interface {
	Create(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (*jobs.Job, error)
	Update(ctx context.Context, req jobs.UpdateRequest) (int64, error)
	List(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error)
	Result(ctx context.Context, jobID int64) (*jobs.Result, error)
	Ping(ctx context.Context) error
}

// Classifier serves predictions and model recomputation.
type Classifier interface {
	Active() *knn.Model
	Boot(ctx context.Context, fitOnBoot bool) error
	PredictID(ctx context.Context, id int64, filter knn.Filter) (classifier.Prediction, error)
	Recompute(ctx context.Context) (*knn.Model, error)
}

// Dependencies are the components a daemon serves. Features, Models, and
// Extractor are only consulted for health reporting and may be nil.
type Dependencies struct {
	Jobs       JobStore
	Classifier Classifier
	Features   preflight.Pinger
	Models     preflight.Pinger
	Extractor  extractor.Extractor
	// FeatureStore and ModelStore describe the backends in status output.
	FeatureStore string
	ModelStore   string
}

// Daemon owns the API server and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	JobDBPath    string
	LockFilePath string
	FeatureStore string
	ModelStore   string
	Model        *knn.Model
	JobCounts    map[jobs.Status]int
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Jobs == nil || deps.Classifier == nil {
		return nil, errors.New("daemon requires config, job store, and classifier")
	}
	lockPath := filepath.Join(cfg.Paths.LockDir, "shapelearnerd.lock")
	d := &Daemon{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, activates a model, and starts the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shapelearner daemon instance is already running")
	}

	if err := d.deps.Classifier.Boot(ctx, d.cfg.Classifier.FitOnBoot); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("activate model: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	attrs := []logging.Attr{logging.String("lock", d.lockPath), logging.String("address", d.Addr())}
	if model := d.deps.Classifier.Active(); model != nil {
		attrs = append(attrs, logging.Int64("model_version", model.Version()))
	}
	d.logger.Info("shapelearner daemon started", logging.Args(attrs...)...)
	return nil
}

// Stop shuts down the API listener and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shapelearner daemon stopped")
}

// Addr returns the listening address, or the configured bind before Start.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler
}

// Status returns the current daemon status. Job counts are best effort.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobDBPath:    d.cfg.JobDBPath(),
		LockFilePath: d.lockPath,
		FeatureStore: d.deps.FeatureStore,
		ModelStore:   d.deps.ModelStore,
		Model:        d.deps.Classifier.Active(),
		JobCounts:    map[jobs.Status]int{},
	}
	if list, err := d.deps.Jobs.List(ctx); err != nil {
		d.logger.Warn("job counts unavailable", logging.Error(err))
	} else {
		for _, job := range list {
			status.JobCounts[job.Status]++
		}
	}
	status.Checks = preflight.RunAll(ctx, d.cfg, preflight.Targets{
		Jobs:      d.deps.Jobs,
		Features:  d.deps.Features,
		Models:    d.deps.Models,
		Extractor: d.deps.Extractor,
	})
	return status
}
