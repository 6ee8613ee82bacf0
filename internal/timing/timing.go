// Package timing reconciles per-slide durations with the fixed crossfade
// length: it validates durations, derives crossfade offsets, and computes the
// total output duration.
package timing

import (
	"fmt"
	"math"

	"github.com/maauso/reelcard-api/internal/failure"
)

// Policy decides what happens when a slide is too short to host its crossfades.
type Policy string

const (
	// PolicyReject fails graph construction.
	PolicyReject Policy = "reject"
	// PolicyClamp clamps offending offsets to the previous offset (or zero).
	PolicyClamp Policy = "clamp"
)

// Params holds the timing constants.
type Params struct {
	MinDuration        float64 `yaml:"min_duration"`
	MaxDuration        float64 `yaml:"max_duration"`
	TransitionDuration float64 `yaml:"transition_duration"`
	Policy             Policy  `yaml:"offset_policy"`
}

// DefaultParams returns the timing constants used when no render profile overrides them.
func DefaultParams() Params {
	return Params{
		MinDuration:        1,
		MaxDuration:        30,
		TransitionDuration: 1,
		Policy:             PolicyReject,
	}
}

// Plan is the reconciled timeline of a job.
type Plan struct {
	Durations  []float64 `json:"durations"`
	Transition float64   `json:"transition"`
	// Offsets[k] is the start of the crossfade between slide k and slide k+1.
	Offsets []float64 `json:"offsets"`
	Total   float64   `json:"total"`
	// Clamped lists indices into Offsets adjusted under PolicyClamp.
	Clamped []int `json:"clamped,omitempty"`
}

// Validate checks that every duration lies within [MinDuration, MaxDuration].
// It runs before any fetch or graph construction.
func Validate(durations []float64, p Params) error {
	if len(durations) == 0 {
		return failure.Validation("slides", "at least one slide is required")
	}
	for i, d := range durations {
		if math.IsNaN(d) || d < p.MinDuration || d > p.MaxDuration {
			return failure.Validation(fmt.Sprintf("slides[%d].duration", i),
				"must be between %s and %s seconds, got %s", num(p.MinDuration), num(p.MaxDuration), num(d))
		}
	}
	return nil
}

// Offsets returns the crossfade offsets for the given durations:
// the k-th crossfade (zero based) starts at the cumulative duration of
// slides 0..k minus (k+1) transitions. No policy is applied.
func Offsets(durations []float64, transition float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, len(durations)-1)
	var cum float64
	for k := range offsets {
		cum += durations[k]
		offsets[k] = tidy(cum - float64(k+1)*transition)
	}
	return offsets
}

// Total returns sum(durations) - (n-1) * transition.
func Total(durations []float64, transition float64) float64 {
	if len(durations) == 0 {
		return 0
	}
	var sum float64
	for _, d := range durations {
		sum += d
	}
	return tidy(sum - float64(len(durations)-1)*transition)
}

// Reconcile derives the offsets and total duration and enforces the offset
// invariants: the first offset is non-negative, each later offset is strictly
// greater than its predecessor, and the last slide outlasts the transition.
// Violations return a *failure.GraphConstructionError under PolicyReject and
// are clamped under PolicyClamp.
func Reconcile(durations []float64, p Params) (Plan, error) {
	if len(durations) == 0 {
		return Plan{}, &failure.GraphConstructionError{Kind: failure.KindMissingOutput, Msg: "no slides"}
	}

	plan := Plan{
		Durations:  append([]float64(nil), durations...),
		Transition: p.TransitionDuration,
		Offsets:    Offsets(durations, p.TransitionDuration),
	}

	for k, off := range plan.Offsets {
		var bad *failure.GraphConstructionError
		switch {
		case k == 0 && off < 0:
			bad = &failure.GraphConstructionError{
				Kind: failure.KindNegativeOffset,
				Msg:  fmt.Sprintf("crossfade 0 offset %ss: slide 0 is shorter than the %ss transition", num(off), num(p.TransitionDuration)),
			}
		case k > 0 && off <= plan.Offsets[k-1]:
			bad = &failure.GraphConstructionError{
				Kind: failure.KindNonMonotonic,
				Msg: fmt.Sprintf("crossfade %d offset %ss does not follow %ss: slide %d (%ss) cannot host two %ss transitions",
					k, num(off), num(plan.Offsets[k-1]), k, num(durations[k]), num(p.TransitionDuration)),
			}
		}
		if bad == nil {
			continue
		}
		if p.Policy != PolicyClamp {
			return Plan{}, bad
		}
		if k == 0 {
			plan.Offsets[k] = 0
		} else {
			plan.Offsets[k] = plan.Offsets[k-1]
		}
		plan.Clamped = append(plan.Clamped, k)
	}

	last := durations[len(durations)-1]
	if len(durations) > 1 && last < p.TransitionDuration && p.Policy != PolicyClamp {
		return Plan{}, &failure.GraphConstructionError{
			Kind: failure.KindSlideTooShort,
			Msg:  fmt.Sprintf("last slide (%ss) is shorter than the %ss transition", num(last), num(p.TransitionDuration)),
		}
	}

	if n := len(plan.Offsets); n > 0 {
		plan.Total = tidy(plan.Offsets[n-1] + last)
	} else {
		plan.Total = durations[0]
	}
	return plan, nil
}

// tidy rounds to microseconds so accumulated float error does not leak into
// serialized offsets.
func tidy(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func num(v float64) string {
	return fmt.Sprintf("%g", v)
}
