package knn_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

func trainingSet() []knn.Sample {
	return []knn.Sample{
		{ID: 1, Label: "gear", Features: []float64{0, 0}},
		{ID: 2, Label: "gear", Features: []float64{0, 1}},
		{ID: 3, Label: "bolt", Features: []float64{5, 5}},
		{ID: 4, Label: "bolt", Features: []float64{5, 6}},
		{ID: 5, Label: "nut", Features: []float64{10, 0}},
		{ID: 6, Label: "washer", Features: []float64{-10, 0}},
		{ID: 7, Label: "", Features: []float64{100, 100}},
	}
}

func sumProbabilities(c []knn.Candidate) float64 {
	total := 0.0
	for _, x := range c {
		total += x.Probability
	}
	return total
}

func TestFitRecordsSortedAlphabetAndSkipsUnlabeled(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 3, Weighting: knn.Distance})
	require.NoError(t, err)
	assert.Equal(t, []string{"bolt", "gear", "nut", "washer"}, m.Labels())
	assert.Equal(t, 6, m.Samples())
	assert.Equal(t, 2, m.Width())
}

func TestFitWithoutLabeledRowsIsInsufficientData(t *testing.T) {
	_, err := knn.Fit([]knn.Sample{{ID: 1, Features: []float64{1}}}, knn.DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrInsufficientData))
}

func TestFitRejectsMixedWidths(t *testing.T) {
	_, err := knn.Fit([]knn.Sample{
		{ID: 1, Label: "a", Features: []float64{1, 2}},
		{ID: 2, Label: "b", Features: []float64{1}},
	}, knn.DefaultParams())
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestProbabilitiesCoverAlphabetAndSumToOne(t *testing.T) {
	for _, weighting := range []knn.Weighting{knn.Uniform, knn.Distance} {
		m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 53, Weighting: weighting})
		require.NoError(t, err)
		ranked, err := m.Probabilities([]float64{1, 1})
		require.NoError(t, err)
		require.Len(t, ranked, 4)
		assert.InDelta(t, 1.0, sumProbabilities(ranked), 1e-12)
		for i := 1; i < len(ranked); i++ {
			prev, cur := ranked[i-1], ranked[i]
			assert.True(t, prev.Probability > cur.Probability ||
				(prev.Probability == cur.Probability && prev.Label < cur.Label),
				"entries %d and %d out of order: %v", i-1, i, ranked)
		}
	}
}

func TestUniformWeightingCountsVotes(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 4, Weighting: knn.Uniform})
	require.NoError(t, err)
	ranked, err := m.Probabilities([]float64{0, 0.5})
	require.NoError(t, err)
	// Nearest four: both gears, then both bolts.
	assert.Equal(t, "bolt", ranked[0].Label)
	assert.InDelta(t, 0.5, ranked[0].Probability, 1e-12)
	assert.Equal(t, "gear", ranked[1].Label)
	assert.InDelta(t, 0.5, ranked[1].Probability, 1e-12)
	assert.Equal(t, 0.0, ranked[2].Probability)
}

func TestDistanceWeightingFavorsCloserRows(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 6, Weighting: knn.Distance})
	require.NoError(t, err)
	ranked, err := m.Probabilities([]float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, "bolt", ranked[0].Label)
	assert.Greater(t, ranked[0].Probability, 0.5)
}

func TestExactMatchTakesWholeVote(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 6, Weighting: knn.Distance})
	require.NoError(t, err)
	ranked, err := m.Probabilities([]float64{10, 0})
	require.NoError(t, err)
	assert.Equal(t, knn.Candidate{Label: "nut", Probability: 1}, ranked[0])
	assert.False(t, math.IsNaN(ranked[1].Probability))
	assert.Equal(t, 0.0, ranked[1].Probability)
}

func TestNeighborCountIsCappedByTrainingRows(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 6, m.EffectiveNeighbors())
}

func TestProbabilitiesRejectsWrongWidth(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.DefaultParams())
	require.NoError(t, err)
	_, err = m.Probabilities([]float64{1, 2, 3})
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestProbabilitiesRejectsNonFiniteQuery(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.DefaultParams())
	require.NoError(t, err)
	for _, q := range [][]float64{{math.NaN(), 0}, {0, math.Inf(1)}, {math.Inf(-1), 1}} {
		out, err := m.Predict(q, knn.Filter{})
		assert.True(t, errors.Is(err, services.ErrValidation), "query %v", q)
		assert.Nil(t, out)
	}
}

func TestPredictRejectsNaNConfidenceFloor(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.DefaultParams())
	require.NoError(t, err)
	_, err = m.Predict([]float64{0, 0}, knn.MinConfidence(math.NaN()))
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestCandidateJSONIsPair(t *testing.T) {
	data, err := json.Marshal([]knn.Candidate{{Label: "gear", Probability: 0.75}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["gear", 0.75]]`, string(data))

	var decoded []knn.Candidate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, knn.Candidate{Label: "gear", Probability: 0.75}, decoded[0])
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, err := knn.Fit(trainingSet(), knn.Params{Neighbors: 3, Weighting: knn.Uniform})
	require.NoError(t, err)
	restored, err := knn.FromSnapshot(m.WithVersion(9).Snapshot())
	require.NoError(t, err)
	assert.Equal(t, int64(9), restored.Version())
	assert.Equal(t, m.Labels(), restored.Labels())

	want, err := m.Probabilities([]float64{2, 2})
	require.NoError(t, err)
	got, err := restored.Probabilities([]float64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromSnapshotRejectsInconsistentData(t *testing.T) {
	snap := knn.Snapshot{
		Neighbors: 3,
		Weighting: knn.Uniform,
		Labels:    []string{"a"},
		Width:     1,
		IDs:       []int64{1},
		Points:    [][]float64{{1}},
		Targets:   []int{4},
	}
	_, err := knn.FromSnapshot(snap)
	assert.True(t, errors.Is(err, services.ErrValidation))
}
