/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package optimizer selects the next block to place and when.
package optimizer

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/telemetry"
	"github.com/friendsincode/telrun/internal/transition"
)

// ErrInvalidStep indicates a non-positive probe resolution.
var ErrInvalidStep = errors.New("optimizer step must be positive")

// Request is one selection problem.
type Request struct {
	// Candidates are pending blocks in rank order.
	Candidates []*models.Block
	Cursor     time.Time
	WindowEnd  time.Time
	// Last is the previously placed block, nil at the start of the night.
	Last *models.Block
	// Step is the probe resolution.
	Step time.Duration
	// Global conditions apply to every candidate in addition to its own.
	Global []condition.Condition
}

// Placement is a selected block with its timing. The transition occupies
// [Start, ObserveStart) and the observation [ObserveStart, End).
type Placement struct {
	Block        *models.Block
	Start        time.Time
	ObserveStart time.Time
	End          time.Time
	Transition   transition.Breakdown
	Score        float64
}

// Optimizer chooses the next placement at or after the cursor. A nil
// placement means no candidate fits before the window closes.
type Optimizer interface {
	Name() string
	SelectNext(ctx context.Context, req Request) (*Placement, error)
}

// Env is what optimizers need to evaluate candidates.
type Env struct {
	Ephemeris   astro.Ephemeris
	Site        astro.Site
	Transitions transition.CostModel
	// SpanStep is the sampling interval when checking a whole span. Zero uses
	// the request step.
	SpanStep time.Duration
}

// candidate is a block with the cost model to reach it from the last
// placement.
type candidate struct {
	block *models.Block
	last  *models.Block
	costs transition.CostModel
}

// timing returns the transition and observation bounds when the transition
// starts at tick. Targets are propagated to tick.
func (c candidate) timing(tick time.Time) (cost transition.Breakdown, observe, end time.Time) {
	if c.last != nil {
		cost = c.costs.Cost(c.last.Configuration(), c.block.Configuration(), c.last.Target(), c.block.Target(), tick)
	}
	observe = tick.Add(cost.Total())
	return cost, observe, observe.Add(c.block.Duration())
}

func (e Env) prepare(req Request) []candidate {
	costs := e.Transitions
	if costs == nil {
		costs = transition.None{}
	}
	out := make([]candidate, 0, len(req.Candidates))
	for _, b := range req.Candidates {
		out = append(out, candidate{block: b, last: req.Last, costs: costs})
	}
	return out
}

// feasibleAt checks the block's and the global conditions at one instant.
func (e Env) feasibleAt(b *models.Block, global []condition.Condition, at time.Time) bool {
	if ok, _ := condition.All(global, e.Ephemeris, e.Site, at, b.Target()); !ok {
		return false
	}
	return b.IsFeasible(e.Ephemeris, e.Site, at)
}

// feasibleSpan samples [start, end] at the span step plus both endpoints.
// The end point is checked first as the cheapest rejection of blocks whose
// window closes mid-span.
func (e Env) feasibleSpan(b *models.Block, global []condition.Condition, start, end time.Time, step time.Duration) (bool, int) {
	if e.SpanStep > 0 {
		step = e.SpanStep
	}
	probes := 1
	if !e.feasibleAt(b, global, end) {
		return false, probes
	}
	for t := start; t.Before(end); t = t.Add(step) {
		probes++
		if !e.feasibleAt(b, global, t) {
			return false, probes
		}
	}
	return true, probes
}

// probeLoop advances a tick from the cursor and asks pick for a placement at
// each one.
func probeLoop(ctx context.Context, name string, req Request, pick func(tick time.Time) (*Placement, int)) (*Placement, error) {
	if req.Step <= 0 {
		return nil, ErrInvalidStep
	}
	var probes int
	defer func() { telemetry.OptimizerProbesTotal.WithLabelValues(name).Add(float64(probes)) }()

	for tick := req.Cursor; tick.Before(req.WindowEnd); tick = tick.Add(req.Step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, n := pick(tick)
		probes += n
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// PriorityOptimizer places, at the earliest tick where any candidate is
// feasible over its whole span, the candidate with the highest score. Global
// conditions are scored alongside the block's own. Equal scores keep rank
// order.
type PriorityOptimizer struct {
	Env
}

// NewPriority creates the default optimizer.
func NewPriority(env Env) *PriorityOptimizer {
	return &PriorityOptimizer{Env: env}
}

func (o *PriorityOptimizer) Name() string { return "priority" }

func (o *PriorityOptimizer) SelectNext(ctx context.Context, req Request) (*Placement, error) {
	cands := o.prepare(req)
	return probeLoop(ctx, o.Name(), req, func(tick time.Time) (*Placement, int) {
		var best *Placement
		probes := 0
		for _, c := range cands {
			cost, observe, end := c.timing(tick)
			if end.After(req.WindowEnd) {
				continue
			}
			ok, n := o.feasibleSpan(c.block, req.Global, tick, end, req.Step)
			probes += n
			if !ok {
				continue
			}
			score := c.block.ScoreWith(o.Ephemeris, o.Site, observe, req.Global)
			if best == nil || score > best.Score {
				best = &Placement{
					Block:        c.block,
					Start:        tick,
					ObserveStart: observe,
					End:          end,
					Transition:   cost,
					Score:        score,
				}
			}
		}
		return best, probes
	})
}

// FirstFitOptimizer places the first candidate in rank order that fits at
// the earliest tick, ignoring condition scores.
type FirstFitOptimizer struct {
	Env
}

// NewFirstFit creates the first-fit optimizer.
func NewFirstFit(env Env) *FirstFitOptimizer {
	return &FirstFitOptimizer{Env: env}
}

func (o *FirstFitOptimizer) Name() string { return "firstfit" }

func (o *FirstFitOptimizer) SelectNext(ctx context.Context, req Request) (*Placement, error) {
	cands := o.prepare(req)
	return probeLoop(ctx, o.Name(), req, func(tick time.Time) (*Placement, int) {
		probes := 0
		for _, c := range cands {
			cost, observe, end := c.timing(tick)
			if end.After(req.WindowEnd) {
				continue
			}
			ok, n := o.feasibleSpan(c.block, req.Global, tick, end, req.Step)
			probes += n
			if ok {
				return &Placement{
					Block:        c.block,
					Start:        tick,
					ObserveStart: observe,
					End:          end,
					Transition:   cost,
					Score:        c.block.Priority,
				}, probes
			}
		}
		return nil, probes
	})
}

// New returns the optimizer registered under name.
func New(name string, env Env) (Optimizer, error) {
	switch name {
	case "", "priority":
		return NewPriority(env), nil
	case "firstfit":
		return NewFirstFit(env), nil
	}
	return nil, errors.New("unknown optimizer " + name)
}
