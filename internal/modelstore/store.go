package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"shapelearner/internal/config"
	"shapelearner/internal/knn"
	"shapelearner/internal/logging"
	"shapelearner/internal/services"
)

const latestName = "LATEST"

// errBlobNotFound is returned by backends for missing objects.
var errBlobNotFound = errors.New("blob not found")

// Backend stores opaque named blobs.
type Backend interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Ping(ctx context.Context) error
	Location() string
}

// SlotName returns the object name of a model version.
func SlotName(version int64) string {
	return fmt.Sprintf("knn-v%06d.model.zst", version)
}

// Store versions models on top of a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	mu      sync.Mutex
}

// New wraps a backend.
func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{backend: backend, logger: logging.NewComponentLogger(logger, "modelstore")}
}

// Open builds the store selected by cfg.ModelStore.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.ModelStore.Backend {
	case "local", "":
		return New(NewLocal(cfg.ModelStore.Dir), logger), nil
	case "minio":
		backend, err := NewMinIO(ctx, cfg.ModelStore)
		if err != nil {
			return nil, err
		}
		return New(backend, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "modelstore", "open",
			fmt.Sprintf("unknown backend %q", cfg.ModelStore.Backend), nil)
	}
}

// Location describes where slots are written.
func (s *Store) Location() string { return s.backend.Location() }

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "modelstore", "ping", s.backend.Location(), err)
	}
	return nil
}

// LatestVersion returns the newest saved version, or zero when nothing has
// been saved yet.
func (s *Store) LatestVersion(ctx context.Context) (int64, error) {
	data, err := s.backend.Get(ctx, latestName)
	if errors.Is(err, errBlobNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "modelstore", "read latest", s.backend.Location(), err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || version < 1 {
		return 0, services.Wrap(services.ErrValidation, "modelstore", "read latest",
			fmt.Sprintf("pointer holds %q", strings.TrimSpace(string(data))), err)
	}
	return version, nil
}

// Save writes model into the next slot, then advances LATEST. The returned
// model carries the assigned version.
func (s *Store) Save(ctx context.Context, model *knn.Model) (*knn.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	versioned := model.WithVersion(current + 1)
	data, err := Encode(versioned)
	if err != nil {
		return nil, err
	}
	slot := SlotName(versioned.Version())
	if err := s.backend.Put(ctx, slot, data); err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "modelstore", "write slot", slot, err)
	}
	if err := s.backend.Put(ctx, latestName, []byte(strconv.FormatInt(versioned.Version(), 10)+"\n")); err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "modelstore", "write latest", slot, err)
	}
	s.logger.Info("model saved",
		logging.String(logging.FieldEventType, "model_saved"),
		logging.Int64("version", versioned.Version()),
		logging.Int("bytes", len(data)),
		logging.String("location", s.backend.Location()),
	)
	return versioned, nil
}

// Load returns the model LATEST points to. It reports ErrNotFound when no
// model has been saved.
func (s *Store) Load(ctx context.Context) (*knn.Model, error) {
	version, err := s.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, services.Wrap(services.ErrNotFound, "modelstore", "load", "no model has been saved", nil)
	}
	return s.LoadVersion(ctx, version)
}

// LoadVersion reads a specific slot.
func (s *Store) LoadVersion(ctx context.Context, version int64) (*knn.Model, error) {
	slot := SlotName(version)
	data, err := s.backend.Get(ctx, slot)
	if errors.Is(err, errBlobNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "modelstore", "load", slot, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "modelstore", "load", slot, err)
	}
	model, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if model.Version() != version {
		return nil, services.Wrap(services.ErrValidation, "modelstore", "load",
			fmt.Sprintf("%s holds version %d", slot, model.Version()), nil)
	}
	return model, nil
}
