package knn

import (
	"fmt"
	"math"

	"shapelearner/internal/services"
)

// Filter narrows a ranked candidate list. Nil fields are unset.
type Filter struct {
	// NMax caps the number of candidates. Zero is treated as one so a numeric
	// cap never yields an empty result.
	NMax *int
	// PMin is a confidence floor in percent, 0 to 100 inclusive.
	PMin *float64
}

// TopN returns a filter capping the result at n entries.
func TopN(n int) Filter {
	return Filter{NMax: &n}
}

// MinConfidence returns a filter dropping entries below percent.
func MinConfidence(percent float64) Filter {
	return Filter{PMin: &percent}
}

// Combined returns a filter applying both the cap and the floor.
func Combined(n int, percent float64) Filter {
	return Filter{NMax: &n, PMin: &percent}
}

// Validate rejects a confidence floor outside [0, 100]. A NaN floor would
// silently drop every candidate.
func (f Filter) Validate() error {
	if f.PMin == nil {
		return nil
	}
	if p := *f.PMin; math.IsNaN(p) || p < 0 || p > 100 {
		return services.Wrap(services.ErrValidation, "knn", "filter",
			fmt.Sprintf("confidence floor %v is outside [0, 100]", p), nil)
	}
	return nil
}

// Apply truncates to NMax first, then drops entries whose probability is
// below PMin/100. The input must already be ranked and is not modified.
func (f Filter) Apply(ranked []Candidate) []Candidate {
	out := ranked
	if f.NMax != nil {
		n := *f.NMax
		if n <= 0 {
			n = 1
		}
		if n < len(out) {
			out = out[:n]
		}
	}
	if f.PMin != nil {
		floor := *f.PMin / 100
		kept := make([]Candidate, 0, len(out))
		for _, c := range out {
			if c.Probability >= floor {
				kept = append(kept, c)
			}
		}
		return kept
	}
	return append([]Candidate(nil), out...)
}
