// Package safesize picks output dimensions that a removal provider accepts.
package safesize

import (
	"math"

	"github.com/menta2k/object-eraser/pkg/types"
)

const op = "safesize"

// Validate checks that c describes a non-empty range of step multiples
func Validate(c types.Constraints) error {
	if c.Step <= 0 {
		return types.Errorf(types.KindProviderConstraint, op, "step must be positive, got %d", c.Step)
	}
	lo, hi := bounds(c)
	if hi < lo {
		return types.Errorf(types.KindProviderConstraint, op,
			"no multiple of %d within [%d,%d]", c.Step, c.MinSide, c.MaxSide)
	}
	return nil
}

// bounds returns the smallest and largest allowed step multiples
func bounds(c types.Constraints) (int, int) {
	lo := ceilDiv(c.MinSide, c.Step) * c.Step
	if lo < c.Step {
		lo = c.Step
	}
	hi := (c.MaxSide / c.Step) * c.Step
	return lo, hi
}

// Resolve returns a target size for a srcW x srcH source:
// the longer side is brought within MaxSide (never upscaled), snapped to
// the nearest step multiple and clamped; the shorter side follows the
// source aspect ratio and is snapped and clamped the same way.
func Resolve(srcW, srcH int, c types.Constraints) (types.TargetSize, error) {
	if srcW <= 0 || srcH <= 0 {
		return types.TargetSize{}, types.Errorf(types.KindProviderConstraint, op,
			"source size %dx%d must be positive", srcW, srcH)
	}
	if err := Validate(c); err != nil {
		return types.TargetSize{}, err
	}
	lo, hi := bounds(c)

	long, short := float64(srcW), float64(srcH)
	if srcH > srcW {
		long, short = short, long
	}
	ratio := short / long

	if long > float64(c.MaxSide) {
		long = float64(c.MaxSide)
	}
	longSide := snap(long, c.Step, lo, hi)
	shortSide := snap(float64(longSide)*ratio, c.Step, lo, hi)

	w, h := longSide, shortSide
	if srcH > srcW {
		w, h = shortSide, longSide
	}
	return types.TargetSize{
		Width:  w,
		Height: h,
		ScaleX: float64(w) / float64(srcW),
		ScaleY: float64(h) / float64(srcH),
	}, nil
}

// snap rounds v to the nearest multiple of step within [lo,hi]
func snap(v float64, step, lo, hi int) int {
	n := int(math.Round(v/float64(step))) * step
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
