/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package condition implements the feasibility and scoring predicates attached
// to blocks and to the site as a whole.
//
// A Condition is stateless. Evaluate never returns an error: an ephemeris that
// cannot answer makes the condition unsatisfied at that instant, and the
// scheduler simply probes again at a later tick.
package condition

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
)

var (
	// ErrInvalidBound indicates a lower bound above its upper bound.
	ErrInvalidBound = errors.New("invalid condition bound")

	// ErrSyntax indicates malformed condition text.
	ErrSyntax = errors.New("condition syntax error")

	// ErrUnknownKind indicates condition text naming no known variant.
	ErrUnknownKind = errors.New("unknown condition kind")
)

// Result is the outcome of evaluating a condition at one instant.
type Result struct {
	Satisfied bool
	Score     float64 // in [0,1]
}

var (
	pass = Result{Satisfied: true, Score: 1}
	fail = Result{}
)

// graded returns a satisfied result carrying a clamped score.
func graded(score float64) Result {
	if math.IsNaN(score) {
		score = 0
	}
	return Result{Satisfied: true, Score: math.Max(0, math.Min(1, score))}
}

// Condition is a feasibility predicate over (time, site, target). A nil target
// means the observation has no pointing (calibration); target-dependent
// quantities are then vacuously satisfied.
type Condition interface {
	Kind() string
	Evaluate(eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) Result
	Validate() error
	String() string
}

// Unbounded is the value of a bound the condition does not constrain.
var Unbounded = math.Inf(1)

// Range is a closed interval. Infinite ends are open.
type Range struct {
	Min float64
	Max float64
}

// Any returns a range without bounds.
func Any() Range {
	return Range{Min: math.Inf(-1), Max: math.Inf(1)}
}

// AtLeast returns [min, +inf).
func AtLeast(min float64) Range {
	return Range{Min: min, Max: math.Inf(1)}
}

// AtMost returns (-inf, max].
func AtMost(max float64) Range {
	return Range{Min: math.Inf(-1), Max: max}
}

// Between returns [min, max].
func Between(min, max float64) Range {
	return Range{Min: min, Max: max}
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) validate(name string) error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return fmt.Errorf("%s: NaN bound: %w", name, ErrInvalidBound)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%s: min %g > max %g: %w", name, r.Min, r.Max, ErrInvalidBound)
	}
	return nil
}

// All evaluates every condition. ok is false at the first unsatisfied one.
// mean is the arithmetic mean of the scores, 1 for an empty set.
func All(conds []Condition, eph astro.Ephemeris, site astro.Site, at time.Time, target *astro.Target) (ok bool, mean float64) {
	if len(conds) == 0 {
		return true, 1
	}
	var sum float64
	for _, c := range conds {
		r := c.Evaluate(eph, site, at, target)
		if !r.Satisfied {
			return false, 0
		}
		sum += r.Score
	}
	return true, sum / float64(len(conds))
}

// Limits are the site-wide constraints applied to every candidate.
type Limits struct {
	MaxSunAltitude    float64 // degrees
	MinElevation      float64 // degrees
	MaxAirmass        float64
	MinMoonSeparation float64 // degrees
}

// Global builds the site-wide conditions for the given limits.
func Global(l Limits) []Condition {
	return []Condition{
		&Sun{Separation: Any(), Altitude: AtMost(l.MaxSunAltitude)},
		&Boundary{Quantity: QuantityAltitude, Range: AtLeast(l.MinElevation)},
		&Airmass{Range: AtMost(l.MaxAirmass)},
		&Moon{Separation: AtLeast(l.MinMoonSeparation), Altitude: Any(), Illumination: Any()},
	}
}
