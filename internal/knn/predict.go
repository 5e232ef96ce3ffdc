package knn

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"shapelearner/internal/services"
)

// Candidate is one ranked label. It encodes as a two-element JSON array
// [label, probability].
type Candidate struct {
	Label       string
	Probability float64
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Label, c.Probability})
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("candidate must be a [label, probability] pair")
	}
	if err := json.Unmarshal(pair[0], &c.Label); err != nil {
		return fmt.Errorf("candidate label: %w", err)
	}
	if err := json.Unmarshal(pair[1], &c.Probability); err != nil {
		return fmt.Errorf("candidate probability: %w", err)
	}
	return nil
}

type neighbor struct {
	index    int
	distance float64
}

// Probabilities returns every label with its vote share, sorted by descending
// probability with ties broken by ascending label.
func (m *Model) Probabilities(features []float64) ([]Candidate, error) {
	if len(features) != m.width {
		return nil, services.Wrap(services.ErrValidation, "knn", "predict",
			fmt.Sprintf("feature vector has %d values, model expects %d", len(features), m.width), nil)
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, services.Wrap(services.ErrValidation, "knn", "predict",
				fmt.Sprintf("feature %d is not a finite number", i), nil)
		}
	}

	neighbors := m.nearest(features, m.EffectiveNeighbors())
	votes := make([]float64, len(m.labels))

	if m.params.Weighting == Distance && neighbors[0].distance == 0 {
		// Exact matches take the whole vote.
		for _, n := range neighbors {
			if n.distance == 0 {
				votes[m.targets[n.index]]++
			}
		}
	} else {
		for _, n := range neighbors {
			w := 1.0
			if m.params.Weighting == Distance {
				w = 1 / n.distance
			}
			votes[m.targets[n.index]] += w
		}
	}

	total := 0.0
	for _, v := range votes {
		total += v
	}
	out := make([]Candidate, len(m.labels))
	for i, label := range m.labels {
		out[i] = Candidate{Label: label, Probability: votes[i] / total}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// Predict ranks labels for features and applies filter.
func (m *Model) Predict(features []float64, filter Filter) ([]Candidate, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	ranked, err := m.Probabilities(features)
	if err != nil {
		return nil, err
	}
	return filter.Apply(ranked), nil
}

// nearest returns the k closest training rows by Euclidean distance, closest
// first. Equal distances keep training order.
func (m *Model) nearest(query []float64, k int) []neighbor {
	all := make([]neighbor, len(m.points))
	for i, p := range m.points {
		sum := 0.0
		for j, v := range p {
			d := v - query[j]
			sum += d * d
		}
		all[i] = neighbor{index: i, distance: math.Sqrt(sum)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].distance < all[j].distance
	})
	return all[:k]
}
