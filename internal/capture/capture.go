package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"shapelearner/internal/logging"
	"shapelearner/internal/mesh"
	"shapelearner/internal/metrics"
	"shapelearner/internal/render"
	"shapelearner/internal/services"
)

// Context is the rendering capability a capture run drives. Implementations are
// stateful and not reentrant.
type Context interface {
	SetMesh(m *mesh.Mesh) error
	SetParallelProjection(enabled bool)
	ResetClippingRange()
	RotateZ(deg float64)
	RotateX(deg float64)
	CaptureFrame(w io.Writer) error
}

// View describes one written frame.
type View struct {
	Mesh string `json:"mesh"`
	Band int    `json:"band"`
	Step int    `json:"step"`
	Path string `json:"path"`
}

// FrameName returns the file name used for a view of the named mesh.
func FrameName(base string, band, step int) string {
	return fmt.Sprintf("%s_%d_%d.png", base, band, step)
}

// Option customizes a Capturer.
type Option func(*Capturer)

// WithLogger sets the capturer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Capturer) {
		c.logger = logger
	}
}

// WithLockFile guards the rendering context with a file lock so separate
// processes sharing one rendering backend never interleave runs.
func WithLockFile(path string) Option {
	return func(c *Capturer) {
		if path != "" {
			c.lock = flock.New(path)
		}
	}
}

// WithTimeout bounds each Capture call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Capturer) {
		c.timeout = timeout
	}
}

// Capturer runs schedules against a single rendering context.
type Capturer struct {
	rc      Context
	logger  *slog.Logger
	lock    *flock.Flock
	timeout time.Duration

	// sem holds one token; taking it grants the rendering context.
	sem chan struct{}
}

// New wraps a rendering context.
func New(rc Context, opts ...Option) *Capturer {
	c := &Capturer{rc: rc, sem: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "capture")
	return c
}

// CaptureFile loads the mesh at path and captures it.
func (c *Capturer) CaptureFile(ctx context.Context, path string, sched render.Schedule, outputDir string) ([]View, error) {
	m, err := mesh.Load(path)
	if err != nil {
		metrics.RecordMeshCapture(metrics.CaptureFailed, 0)
		return nil, err
	}
	return c.Capture(ctx, m, sched, outputDir)
}

// Capture renders every step of sched for m into outputDir. Steps run strictly
// in order; cancellation is honored between steps. Frames already written stay
// on disk when a run fails part way.
func (c *Capturer) Capture(ctx context.Context, m *mesh.Mesh, sched render.Schedule, outputDir string) ([]View, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	started := time.Now()

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	views, err := c.run(ctx, m, sched, outputDir)
	outcome := metrics.CaptureSucceeded
	if err != nil {
		outcome = metrics.CaptureFailed
	}
	metrics.RecordMeshCapture(outcome, time.Since(started))
	return views, err
}

func (c *Capturer) acquire(ctx context.Context) (func(), error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, c.waitError(ctx.Err())
	}
	unlock := func() { <-c.sem }
	if c.lock == nil {
		return unlock, nil
	}
	ok, err := c.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !ok {
		unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, services.Wrap(services.ErrRender, "capture", "lock rendering context", c.lock.Path(), err)
	}
	return func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("release rendering lock failed", logging.Error(err))
		}
		unlock()
	}, nil
}

func (c *Capturer) waitError(err error) error {
	marker := services.ErrRender
	if errors.Is(err, context.DeadlineExceeded) {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, "capture", "wait for rendering context", "", err)
}

func (c *Capturer) run(ctx context.Context, m *mesh.Mesh, sched render.Schedule, outputDir string) ([]View, error) {
	runID := uuid.NewString()
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String("mesh", m.Name()),
		logging.String("run_id", runID),
	)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrRender, "capture", "create output dir", outputDir, err)
	}
	if err := c.rc.SetMesh(m); err != nil {
		return nil, services.Wrap(services.ErrRender, "capture", "load mesh", m.Name(), err)
	}
	c.rc.SetParallelProjection(true)

	steps := sched.Steps()
	views := make([]View, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			marker := services.ErrRender
			if errors.Is(err, context.DeadlineExceeded) {
				marker = services.ErrTimeout
			}
			return views, services.Wrap(marker, "capture", "schedule",
				fmt.Sprintf("stopped after %d of %d views", len(views), len(steps)), err)
		}

		c.rc.ResetClippingRange()
		path := filepath.Join(outputDir, FrameName(m.Name(), step.Band, step.Index))
		if err := c.writeFrame(path); err != nil {
			return views, services.Wrap(services.ErrRender, "capture", "write frame", path, err)
		}
		metrics.RecordFrame()
		views = append(views, View{Mesh: m.Name(), Band: step.Band, Step: step.Index, Path: path})

		c.rc.RotateZ(step.Horizontal)
		if step.EndOfBand {
			c.rc.RotateX(step.Vertical)
		}
	}

	logger.Debug("mesh captured", logging.Int("views", len(views)), logging.String("output_dir", outputDir))
	return views, nil
}

// writeFrame renders into a temporary sibling and renames it so a frame on disk
// is always complete.
func (c *Capturer) writeFrame(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := c.rc.CaptureFrame(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
