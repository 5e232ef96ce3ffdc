package modelstore_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shapelearner/internal/config"
	"shapelearner/internal/knn"
	"shapelearner/internal/modelstore"
	"shapelearner/internal/services"
)

func fitModel(t *testing.T) *knn.Model {
	t.Helper()
	model, err := knn.Fit([]knn.Sample{
		{ID: 1, Label: "cube", Features: []float64{0, 0}},
		{ID: 2, Label: "cube", Features: []float64{0, 1}},
		{ID: 3, Label: "sphere", Features: []float64{5, 5}},
	}, knn.Params{Neighbors: 3, Weighting: knn.Distance})
	require.NoError(t, err)
	return model
}

func TestCodecRoundTripPreservesPredictions(t *testing.T) {
	model := fitModel(t)
	data, err := modelstore.Encode(model)
	require.NoError(t, err)

	decoded, err := modelstore.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, model.Labels(), decoded.Labels())
	assert.Equal(t, model.Width(), decoded.Width())

	query := []float64{0.2, 0.4}
	want, err := model.Probabilities(query)
	require.NoError(t, err)
	got, err := decoded.Probabilities(query)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := modelstore.Decode([]byte("not a model"))
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestLoadWithoutModel(t *testing.T) {
	store := modelstore.New(modelstore.NewLocal(t.TempDir()), nil)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, services.ErrNotFound)

	version, err := store.LatestVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestSaveAdvancesVersions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := modelstore.New(modelstore.NewLocal(dir), nil)

	first, err := store.Save(ctx, fitModel(t))
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Version())

	second, err := store.Save(ctx, fitModel(t))
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Version())

	assert.FileExists(t, filepath.Join(dir, modelstore.SlotName(1)))
	assert.FileExists(t, filepath.Join(dir, modelstore.SlotName(2)))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, loaded.Version())

	older, err := store.LoadVersion(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, older.Version())

	_, err = store.LoadVersion(ctx, 9)
	assert.ErrorIs(t, err, services.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp", "temp files must not remain")
	}
}

func TestConcurrentSavesGetDistinctVersions(t *testing.T) {
	ctx := context.Background()
	store := modelstore.New(modelstore.NewLocal(t.TempDir()), nil)
	model := fitModel(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		versions = map[int64]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saved, err := store.Save(ctx, model)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			versions[saved.Version()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, versions, 8)

	latest, err := store.LatestVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, latest)
}

func TestCorruptLatestPointer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LATEST"), []byte("banana\n"), 0o644))
	store := modelstore.New(modelstore.NewLocal(dir), nil)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.ModelStore.Backend = "ftp"
	_, err := modelstore.Open(context.Background(), &cfg, nil)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

// TestMinIOBackend requires a running MinIO instance named by
// SHAPELEARNER_TEST_MINIO_ENDPOINT.
func TestMinIOBackend(t *testing.T) {
	endpoint := os.Getenv("SHAPELEARNER_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("SHAPELEARNER_TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "shapelearner-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	backend := modelstore.NewMinIOClient(client, bucket, filepath.Base(t.TempDir())+"/")
	store := modelstore.New(backend, nil)
	require.NoError(t, store.Ping(ctx))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, services.ErrNotFound)

	saved, err := store.Save(ctx, fitModel(t))
	require.NoError(t, err)
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Version(), loaded.Version())
}
