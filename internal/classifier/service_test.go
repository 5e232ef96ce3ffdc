package classifier_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shapelearner/internal/classifier"
	"shapelearner/internal/knn"
	"shapelearner/internal/modelstore"
	"shapelearner/internal/services"
)

type memoryFeatures struct {
	mu   sync.Mutex
	rows []knn.Sample
	err  error
}

func (m *memoryFeatures) set(rows []knn.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

func (m *memoryFeatures) All(context.Context) ([]knn.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]knn.Sample(nil), m.rows...), nil
}

func (m *memoryFeatures) Get(_ context.Context, id int64) (knn.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return knn.Sample{}, services.Wrap(services.ErrNotFound, "test", "get", fmt.Sprintf("row %d", id), nil)
}

func (m *memoryFeatures) MaxID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxID int64
	for _, row := range m.rows {
		maxID = max(maxID, row.ID)
	}
	return maxID, nil
}

func shapeRows() []knn.Sample {
	return []knn.Sample{
		{ID: 1, Label: "cube", Features: []float64{0, 0}},
		{ID: 2, Label: "cube", Features: []float64{0, 1}},
		{ID: 3, Label: "cylinder", Features: []float64{3, 3}},
		{ID: 4, Label: "sphere", Features: []float64{6, 6}},
		{ID: 5, Label: "gear", Features: []float64{9, 0}},
		{ID: 6, Features: []float64{0.1, 0.4}},
	}
}

func newService(t *testing.T, source *memoryFeatures) (*classifier.Service, *modelstore.Store) {
	t.Helper()
	store := modelstore.New(modelstore.NewLocal(t.TempDir()), nil)
	svc := classifier.New(source, store, classifier.Options{
		Params: knn.Params{Neighbors: 5, Weighting: knn.Distance},
	})
	return svc, store
}

func TestPredictWithoutModel(t *testing.T) {
	svc, _ := newService(t, &memoryFeatures{rows: shapeRows()})
	_, err := svc.Predict(context.Background(), []float64{0, 0}, knn.Filter{})
	assert.ErrorIs(t, err, services.ErrModelUnavailable)

	_, err = svc.PredictID(context.Background(), 1, knn.TopN(1))
	assert.ErrorIs(t, err, services.ErrModelUnavailable)
}

func TestFitRequiresLabeledRows(t *testing.T) {
	svc, _ := newService(t, &memoryFeatures{})
	_, err := svc.Fit(context.Background(), []knn.Sample{{ID: 1, Features: []float64{1}}})
	assert.ErrorIs(t, err, services.ErrInsufficientData)
}

func TestLoadReportsAbsentModel(t *testing.T) {
	svc, _ := newService(t, &memoryFeatures{})
	model, ok, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, model)
}

func TestRecomputePersistsAndActivates(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, &memoryFeatures{rows: shapeRows()})

	model, err := svc.Recompute(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, model.Version())
	assert.Equal(t, []string{"cube", "cylinder", "gear", "sphere"}, model.Labels())
	assert.Same(t, model, svc.Active())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Version(), persisted.Version())

	loaded, ok, err := svc.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Labels(), loaded.Labels())
}

func TestPredictFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &memoryFeatures{rows: shapeRows()})
	_, err := svc.Recompute(ctx)
	require.NoError(t, err)

	query := []float64{0.5, 0.5}
	all, err := svc.Predict(ctx, query, knn.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	var sum float64
	for _, c := range all {
		sum += c.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, "cube", all[0].Label)

	top3, err := svc.Predict(ctx, query, knn.TopN(3))
	require.NoError(t, err)
	require.Len(t, top3, 3)
	assert.True(t, sort.SliceIsSorted(top3, func(i, j int) bool {
		return top3[i].Probability > top3[j].Probability
	}))

	zero, err := svc.Predict(ctx, query, knn.TopN(0))
	require.NoError(t, err)
	assert.Len(t, zero, 1)

	confident, err := svc.Predict(ctx, query, knn.MinConfidence(50))
	require.NoError(t, err)
	require.NotEmpty(t, confident)
	for _, c := range confident {
		assert.GreaterOrEqual(t, c.Probability, 0.5)
	}

	none, err := svc.Predict(ctx, query, knn.MinConfidence(100))
	require.NoError(t, err)
	assert.Empty(t, none, "an empty filtered result is not an error")
}

func TestPredictIDValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &memoryFeatures{rows: shapeRows()})
	_, err := svc.Recompute(ctx)
	require.NoError(t, err)

	_, err = svc.PredictID(ctx, -1, knn.TopN(1))
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "id parameter can't be negative")

	_, err = svc.PredictID(ctx, 7, knn.TopN(1))
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "Index Out of Range. Max Index = 6")

	prediction, err := svc.PredictID(ctx, 6, knn.TopN(2))
	require.NoError(t, err)
	assert.EqualValues(t, 6, prediction.PartID)
	assert.EqualValues(t, 1, prediction.ModelVersion)
	require.Len(t, prediction.Classes, 2)
	assert.Equal(t, "cube", prediction.Classes[0].Label)
}

func TestRecomputeFailureKeepsPreviousModel(t *testing.T) {
	ctx := context.Background()
	source := &memoryFeatures{rows: shapeRows()}
	svc, _ := newService(t, source)
	first, err := svc.Recompute(ctx)
	require.NoError(t, err)

	source.set([]knn.Sample{{ID: 1, Features: []float64{1, 1}}})
	_, err = svc.Recompute(ctx)
	require.ErrorIs(t, err, services.ErrInsufficientData)
	assert.Same(t, first, svc.Active())
}

func TestBoot(t *testing.T) {
	ctx := context.Background()

	t.Run("fits when nothing persisted", func(t *testing.T) {
		svc, _ := newService(t, &memoryFeatures{rows: shapeRows()})
		require.NoError(t, svc.Boot(ctx, true))
		require.NotNil(t, svc.Active())
	})

	t.Run("stays empty without labeled rows", func(t *testing.T) {
		svc, _ := newService(t, &memoryFeatures{})
		require.NoError(t, svc.Boot(ctx, true))
		assert.Nil(t, svc.Active())
	})

	t.Run("skips fitting when disabled", func(t *testing.T) {
		svc, _ := newService(t, &memoryFeatures{rows: shapeRows()})
		require.NoError(t, svc.Boot(ctx, false))
		assert.Nil(t, svc.Active())
	})

	t.Run("loads persisted model", func(t *testing.T) {
		source := &memoryFeatures{rows: shapeRows()}
		store := modelstore.New(modelstore.NewLocal(t.TempDir()), nil)
		first := classifier.New(source, store, classifier.Options{Params: knn.Params{Neighbors: 3, Weighting: knn.Uniform}})
		_, err := first.Recompute(ctx)
		require.NoError(t, err)

		second := classifier.New(&memoryFeatures{}, store, classifier.Options{})
		require.NoError(t, second.Boot(ctx, true))
		require.NotNil(t, second.Active())
		assert.EqualValues(t, 1, second.Active().Version())
		assert.Equal(t, knn.Uniform, second.Active().Params().Weighting)
	})
}

func TestConcurrentPredictionsSeeOneModel(t *testing.T) {
	ctx := context.Background()
	oldRows := []knn.Sample{
		{ID: 1, Label: "bolt", Features: []float64{0, 0}},
		{ID: 2, Label: "nut", Features: []float64{1, 1}},
	}
	newRows := []knn.Sample{
		{ID: 1, Label: "flange", Features: []float64{0, 0}},
		{ID: 2, Label: "gear", Features: []float64{1, 1}},
		{ID: 3, Label: "shaft", Features: []float64{2, 2}},
	}
	source := &memoryFeatures{rows: oldRows}
	svc, _ := newService(t, source)
	_, err := svc.Recompute(ctx)
	require.NoError(t, err)

	valid := map[string]bool{"bolt,nut": true, "flange,gear,shaft": true}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				classes, err := svc.Predict(ctx, []float64{0.5, 0.5}, knn.Filter{})
				if !assert.NoError(t, err) {
					return
				}
				labels := make([]string, len(classes))
				for i, c := range classes {
					labels[i] = c.Label
				}
				sort.Strings(labels)
				key := strings.Join(labels, ",")
				if !assert.True(t, valid[key], "mixed label set %s", key) {
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			source.set(newRows)
		} else {
			source.set(oldRows)
		}
		_, err := svc.Recompute(ctx)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestConcurrentRecomputesShareWork(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, &memoryFeatures{rows: shapeRows()})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Recompute(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	latest, err := store.LatestVersion(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, int64(1))
	assert.LessOrEqual(t, latest, int64(6))
	assert.Equal(t, latest, svc.Active().Version())
}

// gatedFeatures holds All until release is closed.
type gatedFeatures struct {
	*memoryFeatures
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFeatures) All(ctx context.Context) ([]knn.Sample, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.memoryFeatures.All(ctx)
}

func TestRecomputeSurvivesFirstCallerCancel(t *testing.T) {
	source := &gatedFeatures{
		memoryFeatures: &memoryFeatures{rows: shapeRows()},
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	store := modelstore.New(modelstore.NewLocal(t.TempDir()), nil)
	svc := classifier.New(source, store, classifier.Options{
		Params: knn.Params{Neighbors: 5, Weighting: knn.Distance},
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Recompute(firstCtx)
		firstErr <- err
	}()
	<-source.entered

	type outcome struct {
		model *knn.Model
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		m, err := svc.Recompute(context.Background())
		second <- outcome{m, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(source.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, int64(1), got.model.Version())
	require.NotNil(t, svc.Active())
	assert.Equal(t, int64(1), svc.Active().Version())
}
