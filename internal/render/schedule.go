package render

import (
	"fmt"

	"shapelearner/internal/services"
)

// FullTurn and HalfTurn are the angular spans, in degrees, covered horizontally
// within a band and vertically across all bands.
const (
	FullTurn = 360.0
	HalfTurn = 180.0
)

// Step is a single capture position. After capturing, the object is rotated by
// Horizontal degrees about the vertical axis; when EndOfBand is set it is then
// rotated by Vertical degrees about the horizontal axis.
type Step struct {
	Band       int
	Index      int
	Horizontal float64
	Vertical   float64
	EndOfBand  bool
}

// Schedule is an immutable, ordered list of capture steps.
type Schedule struct {
	difficulty []int
	vertical   float64
	horizontal []float64
	steps      []Step
}

// NewSchedule builds the rotation schedule for the given band sizes. At least
// two bands are required and every band must hold at least one view.
func NewSchedule(difficulty []int) (Schedule, error) {
	if len(difficulty) < 2 {
		return Schedule{}, services.Wrap(services.ErrConfiguration, "render", "schedule",
			fmt.Sprintf("difficulty needs at least 2 bands, got %d", len(difficulty)), nil)
	}
	total := 0
	for i, size := range difficulty {
		if size <= 0 {
			return Schedule{}, services.Wrap(services.ErrConfiguration, "render", "schedule",
				fmt.Sprintf("band %d size must be positive, got %d", i, size), nil)
		}
		total += size
	}

	bands := make([]int, len(difficulty))
	copy(bands, difficulty)

	vertical := HalfTurn / float64(len(bands)-1)
	horizontal := make([]float64, len(bands))
	steps := make([]Step, 0, total)
	for band, size := range bands {
		horizontal[band] = FullTurn / float64(size)
		for index := 0; index < size; index++ {
			steps = append(steps, Step{
				Band:       band,
				Index:      index,
				Horizontal: horizontal[band],
				Vertical:   vertical,
				EndOfBand:  index == size-1,
			})
		}
	}

	return Schedule{
		difficulty: bands,
		vertical:   vertical,
		horizontal: horizontal,
		steps:      steps,
	}, nil
}

// Steps returns a copy of the ordered capture steps.
func (s Schedule) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Views returns the total number of captured views (the sum of band sizes).
func (s Schedule) Views() int {
	return len(s.steps)
}

// Bands returns the number of latitude bands.
func (s Schedule) Bands() int {
	return len(s.difficulty)
}

// BandSize returns the number of views captured in band.
func (s Schedule) BandSize(band int) int {
	if band < 0 || band >= len(s.difficulty) {
		return 0
	}
	return s.difficulty[band]
}

// Vertical returns the rotation applied between bands, in degrees.
func (s Schedule) Vertical() float64 {
	return s.vertical
}

// Horizontal returns the per-step rotation inside band, in degrees.
func (s Schedule) Horizontal(band int) float64 {
	if band < 0 || band >= len(s.horizontal) {
		return 0
	}
	return s.horizontal[band]
}

// HorizontalIncrements returns the per-band horizontal increments in band order.
func (s Schedule) HorizontalIncrements() []float64 {
	out := make([]float64, len(s.horizontal))
	copy(out, s.horizontal)
	return out
}

// Difficulty returns a copy of the band sizes the schedule was built from.
func (s Schedule) Difficulty() []int {
	out := make([]int, len(s.difficulty))
	copy(out, s.difficulty)
	return out
}
