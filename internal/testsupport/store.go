package testsupport

import (
	"context"
	"testing"

	"shapelearner/internal/config"
	"shapelearner/internal/features"
	"shapelearner/internal/jobs"
	"shapelearner/internal/knn"
)

// MustOpenJobStore opens a jobs.Store for tests and registers cleanup.
func MustOpenJobStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenFeatureStore opens the configured feature store, creates a table of
// the given width, and loads rows into it.
func MustOpenFeatureStore(t testing.TB, cfg *config.Config, width int, rows ...knn.Sample) *features.Store {
	t.Helper()

	ctx := context.Background()
	store, err := features.OpenConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("features.OpenConfig: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	if err := store.EnsureTable(ctx, width); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if err := store.Upsert(ctx, rows); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return store
}

// ShapeRows returns a small labeled two-feature training set.
func ShapeRows() []knn.Sample {
	return []knn.Sample{
		{ID: 1, Label: "cube", Features: []float64{0, 0}},
		{ID: 2, Label: "cube", Features: []float64{0, 1}},
		{ID: 3, Label: "cylinder", Features: []float64{4, 4}},
		{ID: 4, Label: "cylinder", Features: []float64{4, 5}},
		{ID: 5, Label: "gear", Features: []float64{9, 0}},
	}
}
