package knn

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"shapelearner/internal/services"
)

// Weighting selects how neighbor votes are weighted.
type Weighting string

const (
	Uniform  Weighting = "uniform"
	Distance Weighting = "distance"
)

const (
	DefaultNeighbors = 53
	DefaultWeighting = Distance
)

// ParseWeighting resolves a weighting name case-insensitively.
func ParseWeighting(value string) (Weighting, error) {
	switch Weighting(strings.ToLower(strings.TrimSpace(value))) {
	case Uniform:
		return Uniform, nil
	case Distance, "":
		return Distance, nil
	default:
		return "", services.Wrap(services.ErrValidation, "knn", "parse weighting",
			fmt.Sprintf("unknown weighting %q (expected uniform or distance)", value), nil)
	}
}

// Params configures training.
type Params struct {
	Neighbors int
	Weighting Weighting
}

// DefaultParams returns the neighbor count and weighting used when none are configured.
func DefaultParams() Params {
	return Params{Neighbors: DefaultNeighbors, Weighting: DefaultWeighting}
}

func (p Params) validate() error {
	if p.Neighbors < 1 {
		return services.Wrap(services.ErrValidation, "knn", "fit", "neighbor count must be at least 1", nil)
	}
	if p.Weighting != Uniform && p.Weighting != Distance {
		return services.Wrap(services.ErrValidation, "knn", "fit", fmt.Sprintf("unknown weighting %q", p.Weighting), nil)
	}
	return nil
}

// Sample is one feature row. Rows with an empty label are ignored by Fit.
type Sample struct {
	ID       int64
	Label    string
	Features []float64
}

// Model is a fitted classifier.
type Model struct {
	version   int64
	params    Params
	labels    []string
	width     int
	ids       []int64
	points    [][]float64
	targets   []int
	trainedAt time.Time
}

// Fit trains a model over the labeled samples. All labeled samples must share
// one feature width.
func Fit(samples []Sample, params Params) (*Model, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	labeled := make([]Sample, 0, len(samples))
	alphabet := map[string]struct{}{}
	for _, s := range samples {
		if s.Label == "" {
			continue
		}
		labeled = append(labeled, s)
		alphabet[s.Label] = struct{}{}
	}
	if len(labeled) == 0 {
		return nil, services.Wrap(services.ErrInsufficientData, "knn", "fit", "no labeled feature rows", nil)
	}

	width := len(labeled[0].Features)
	if width == 0 {
		return nil, services.Wrap(services.ErrValidation, "knn", "fit", "feature rows have no columns", nil)
	}

	labels := make([]string, 0, len(alphabet))
	for label := range alphabet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}

	m := &Model{
		params:    params,
		labels:    labels,
		width:     width,
		ids:       make([]int64, len(labeled)),
		points:    make([][]float64, len(labeled)),
		targets:   make([]int, len(labeled)),
		trainedAt: time.Now().UTC(),
	}
	for i, s := range labeled {
		if len(s.Features) != width {
			return nil, services.Wrap(services.ErrValidation, "knn", "fit",
				fmt.Sprintf("row %d has %d features, expected %d", s.ID, len(s.Features), width), nil)
		}
		for _, v := range s.Features {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, services.Wrap(services.ErrValidation, "knn", "fit",
					fmt.Sprintf("row %d has a non-finite feature", s.ID), nil)
			}
		}
		m.ids[i] = s.ID
		m.points[i] = append([]float64(nil), s.Features...)
		m.targets[i] = index[s.Label]
	}
	return m, nil
}

// WithVersion returns a shallow copy of m carrying version. Training data is
// shared because models are never mutated.
func (m *Model) WithVersion(version int64) *Model {
	clone := *m
	clone.version = version
	return &clone
}

// Version identifies the persisted slot the model came from; zero for unsaved models.
func (m *Model) Version() int64 { return m.version }

// Params returns the training parameters.
func (m *Model) Params() Params { return m.params }

// Labels returns a copy of the sorted label alphabet.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Width is the expected feature vector length.
func (m *Model) Width() int { return m.width }

// Samples is the number of training rows.
func (m *Model) Samples() int { return len(m.points) }

// TrainedAt reports when Fit ran.
func (m *Model) TrainedAt() time.Time { return m.trainedAt }

// EffectiveNeighbors is the neighbor count actually consulted, which never
// exceeds the number of training rows.
func (m *Model) EffectiveNeighbors() int {
	return min(m.params.Neighbors, len(m.points))
}
