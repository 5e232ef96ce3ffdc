package knn

import (
	"fmt"
	"time"

	"shapelearner/internal/services"
)

// Snapshot is the serializable form of a Model.
type Snapshot struct {
	Version   int64       `json:"version"`
	Neighbors int         `json:"neighbors"`
	Weighting Weighting   `json:"weighting"`
	Labels    []string    `json:"labels"`
	Width     int         `json:"width"`
	IDs       []int64     `json:"ids"`
	Points    [][]float64 `json:"points"`
	Targets   []int       `json:"targets"`
	TrainedAt time.Time   `json:"trained_at"`
}

// Snapshot exports the model. The returned value shares training vectors with
// the model and must be treated as read-only.
func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Version:   m.version,
		Neighbors: m.params.Neighbors,
		Weighting: m.params.Weighting,
		Labels:    m.labels,
		Width:     m.width,
		IDs:       m.ids,
		Points:    m.points,
		Targets:   m.targets,
		TrainedAt: m.trainedAt,
	}
}

// FromSnapshot rebuilds a model, rejecting snapshots whose parts disagree.
func FromSnapshot(s Snapshot) (*Model, error) {
	params := Params{Neighbors: s.Neighbors, Weighting: s.Weighting}
	if err := params.validate(); err != nil {
		return nil, err
	}
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "knn", "load snapshot", msg, nil)
	}
	if len(s.Labels) == 0 || len(s.Points) == 0 {
		return nil, invalid("snapshot holds no training data")
	}
	if len(s.Targets) != len(s.Points) || len(s.IDs) != len(s.Points) {
		return nil, invalid(fmt.Sprintf("snapshot has %d points, %d targets, %d ids", len(s.Points), len(s.Targets), len(s.IDs)))
	}
	for i, p := range s.Points {
		if len(p) != s.Width {
			return nil, invalid(fmt.Sprintf("point %d has %d features, expected %d", i, len(p), s.Width))
		}
		if t := s.Targets[i]; t < 0 || t >= len(s.Labels) {
			return nil, invalid(fmt.Sprintf("point %d targets label %d of %d", i, t, len(s.Labels)))
		}
	}
	for i := 1; i < len(s.Labels); i++ {
		if s.Labels[i-1] >= s.Labels[i] {
			return nil, invalid("labels are not sorted and distinct")
		}
	}
	return &Model{
		version:   s.Version,
		params:    params,
		labels:    s.Labels,
		width:     s.Width,
		ids:       s.IDs,
		points:    s.Points,
		targets:   s.Targets,
		trainedAt: s.TrainedAt,
	}, nil
}
