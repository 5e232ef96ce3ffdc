package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"shapelearner/internal/knn"
	"shapelearner/internal/logging"
	"shapelearner/internal/metrics"
	"shapelearner/internal/services"
)

// FeatureSource supplies training rows and prediction inputs.
type FeatureSource interface {
	All(ctx context.Context) ([]knn.Sample, error)
	Get(ctx context.Context, id int64) (knn.Sample, error)
	MaxID(ctx context.Context) (int64, error)
}

// ModelRepository persists fitted models.
type ModelRepository interface {
	Save(ctx context.Context, model *knn.Model) (*knn.Model, error)
	Load(ctx context.Context) (*knn.Model, error)
}

// Options configures a Service.
type Options struct {
	Params         knn.Params
	FitTimeout     time.Duration
	PredictTimeout time.Duration
	Logger         *slog.Logger
}

// Prediction is the ranked answer for one feature row.
type Prediction struct {
	PartID       int64
	ModelVersion int64
	Classes      []knn.Candidate
}

// Service trains, persists, and serves the classifier.
type Service struct {
	features FeatureSource
	models   ModelRepository
	opts     Options
	logger   *slog.Logger

	active atomic.Pointer[knn.Model]
	group  singleflight.Group
}

// New constructs a service with no active model.
func New(features FeatureSource, models ModelRepository, opts Options) *Service {
	if opts.Params.Neighbors == 0 {
		opts.Params = knn.DefaultParams()
	}
	return &Service{
		features: features,
		models:   models,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "classifier"),
	}
}

// Active returns the model currently serving predictions, or nil.
func (s *Service) Active() *knn.Model {
	return s.active.Load()
}

// Activate publishes model for subsequent predictions.
func (s *Service) Activate(model *knn.Model) {
	if model == nil {
		return
	}
	s.active.Store(model)
	metrics.SetActiveModel(model.Version(), model.Samples())
	s.logger.Info("model activated",
		logging.String(logging.FieldEventType, "model_activated"),
		logging.Int64("version", model.Version()),
		logging.Int("samples", model.Samples()),
		logging.Int("labels", len(model.Labels())),
	)
}

// Fit trains on rows and persists the result. It does not change the active model.
func (s *Service) Fit(ctx context.Context, rows []knn.Sample) (model *knn.Model, err error) {
	defer func() { metrics.RecordFit(err) }()

	ctx, cancel := withTimeout(ctx, s.opts.FitTimeout)
	defer cancel()

	started := time.Now()
	fitted, err := knn.Fit(rows, s.opts.Params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError("fit", err)
	}
	saved, err := s.models.Save(ctx, fitted)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError("fit", ctxErr)
		}
		return nil, err
	}
	s.logger.Info("model fitted",
		logging.String(logging.FieldEventType, "model_fitted"),
		logging.Int64("version", saved.Version()),
		logging.Int("samples", saved.Samples()),
		logging.Int("neighbors", saved.EffectiveNeighbors()),
		logging.String("weighting", string(saved.Params().Weighting)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return saved, nil
}

// Load returns the most recently persisted model. The boolean is false when
// nothing has been persisted yet.
func (s *Service) Load(ctx context.Context) (*knn.Model, bool, error) {
	model, err := s.models.Load(ctx)
	if errors.Is(err, services.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model, true, nil
}

// Recompute retrains from the current feature rows and swaps the new model
// in once it is persisted. Callers arriving while a recompute runs wait for
// and share its result. The shared fit is detached from any one caller's
// cancellation and bounded by FitTimeout instead; a caller whose ctx ends
// stops waiting while the fit carries on for the others.
func (s *Service) Recompute(ctx context.Context) (*knn.Model, error) {
	ch := s.group.DoChan("recompute", func() (any, error) {
		fitCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.opts.FitTimeout)
		defer cancel()
		rows, err := s.features.All(fitCtx)
		if err != nil {
			return nil, err
		}
		model, err := s.Fit(fitCtx, rows)
		if err != nil {
			return nil, err
		}
		s.Activate(model)
		return model, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, contextError("recompute", ctx.Err())
	}
	if res.Err != nil {
		logging.WarnWithContext(s.logger, "model recompute failed", "model_recompute_failed",
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "check the feature store and model storage"),
			logging.String(logging.FieldImpact, "previous model keeps serving predictions"),
		)
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Debug("recompute result shared", logging.String(logging.FieldEventType, "model_recompute_shared"))
	}
	return res.Val.(*knn.Model), nil
}

// Boot activates the latest persisted model. When none exists and fitOnBoot
// is set, a model is trained from the feature store; a store without labeled
// rows leaves the service without a model rather than failing.
func (s *Service) Boot(ctx context.Context, fitOnBoot bool) error {
	model, ok, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.Activate(model)
		return nil
	}
	if !fitOnBoot {
		s.logger.Info("no persisted model", logging.String(logging.FieldEventType, "model_absent"))
		return nil
	}
	if _, err := s.Recompute(ctx); err != nil {
		if errors.Is(err, services.ErrInsufficientData) {
			logging.WarnWithContext(s.logger, "no labeled rows to train on", "model_absent",
				logging.String(logging.FieldImpact, "predictions fail until a model is recomputed"),
			)
			return nil
		}
		return err
	}
	return nil
}

// Predict ranks labels for a feature vector using the active model.
func (s *Service) Predict(ctx context.Context, features []float64, filter knn.Filter) (classes []knn.Candidate, err error) {
	started := time.Now()
	defer func() { metrics.RecordPrediction(err, time.Since(started)) }()

	model := s.active.Load()
	if model == nil {
		return nil, services.Wrap(services.ErrModelUnavailable, "classifier", "predict", "no model has been trained", nil)
	}
	ctx, cancel := withTimeout(ctx, s.opts.PredictTimeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, contextError("predict", err)
	}
	return model.Predict(features, filter)
}

// PredictID classifies the stored feature row id, which must lie in
// [1, max id].
func (s *Service) PredictID(ctx context.Context, id int64, filter knn.Filter) (Prediction, error) {
	if id < 0 {
		return Prediction{}, services.Wrap(services.ErrValidation, "classifier", "predict", "id parameter can't be negative", nil)
	}
	model := s.active.Load()
	if model == nil {
		return Prediction{}, services.Wrap(services.ErrModelUnavailable, "classifier", "predict", "no model has been trained", nil)
	}

	ctx, cancel := withTimeout(ctx, s.opts.PredictTimeout)
	defer cancel()

	maxID, err := s.features.MaxID(ctx)
	if err != nil {
		return Prediction{}, err
	}
	if id < 1 || id > maxID {
		return Prediction{}, services.Wrap(services.ErrValidation, "classifier", "predict",
			fmt.Sprintf("Index Out of Range. Max Index = %d", maxID), nil)
	}
	row, err := s.features.Get(ctx, id)
	if err != nil {
		return Prediction{}, err
	}

	started := time.Now()
	classes, err := model.Predict(row.Features, filter)
	metrics.RecordPrediction(err, time.Since(started))
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{PartID: id, ModelVersion: model.Version(), Classes: classes}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func contextError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "classifier", operation, "deadline exceeded", err)
	}
	return err
}
