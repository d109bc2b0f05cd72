/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transition models the time spent moving between two consecutive
// observations: slewing the mount and reconfiguring the instrument.
package transition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/models"
)

// Breakdown is the cost of one transition.
type Breakdown struct {
	Slew        time.Duration
	Reconfigure time.Duration
}

func (b Breakdown) Total() time.Duration { return b.Slew + b.Reconfigure }

// CostModel computes transition costs. Implementations must be pure. Targets
// are propagated to the instant the transition starts.
type CostModel interface {
	Cost(fromCfg, toCfg models.InstrumentConfiguration, from, to *astro.Target, at time.Time) Breakdown
}

// Reconfiguration is the time to change one setting. Pairs override Default
// for specific from/to values and are keyed by PairKey.
type Reconfiguration struct {
	Default time.Duration            `yaml:"default" json:"default"`
	Pairs   map[string]time.Duration `yaml:"pairs" json:"pairs"`
}

// PairKey builds the Pairs key for a value change.
func PairKey(from, to string) string {
	return from + "->" + to
}

// ParsePairKey splits a Pairs key.
func ParsePairKey(key string) (from, to string, err error) {
	from, to, ok := strings.Cut(key, "->")
	if !ok {
		return "", "", fmt.Errorf("reconfiguration pair %q: want from->to", key)
	}
	return from, to, nil
}

func (r Reconfiguration) lookup(from, to string) time.Duration {
	if d, ok := r.Pairs[PairKey(from, to)]; ok {
		return d
	}
	return r.Default
}

// Model combines slew time (separation / SlewRate + Settle) with the summed
// reconfiguration time of every changed setting. A positive MaxCost caps the
// total; the slew share is reduced first.
type Model struct {
	SlewRate        float64 // degrees per second; zero means instantaneous
	Settle          time.Duration
	Reconfiguration map[string]Reconfiguration
	MaxCost         time.Duration
}

func (m *Model) Cost(fromCfg, toCfg models.InstrumentConfiguration, from, to *astro.Target, at time.Time) Breakdown {
	var out Breakdown

	if from != nil && to != nil && m.SlewRate > 0 {
		fromRA, fromDec := from.At(at)
		toRA, toDec := to.At(at)
		sep := astro.EquatorialSeparation(fromRA, fromDec, toRA, toDec)
		if sep > 0 {
			secs := sep / m.SlewRate
			out.Slew = time.Duration(math.Round(secs*1e3))*time.Millisecond + m.Settle
		}
	}

	for _, key := range fromCfg.Diff(toCfg) {
		r, ok := m.Reconfiguration[key]
		if !ok {
			continue
		}
		oldValue, _ := fromCfg.Get(key)
		newValue, _ := toCfg.Get(key)
		out.Reconfigure += r.lookup(oldValue, newValue)
	}

	if m.MaxCost > 0 && out.Total() > m.MaxCost {
		excess := out.Total() - m.MaxCost
		if excess <= out.Slew {
			out.Slew -= excess
		} else {
			out.Reconfigure -= excess - out.Slew
			out.Slew = 0
		}
	}
	return out
}

// None is a zero-cost model.
type None struct{}

func (None) Cost(_, _ models.InstrumentConfiguration, _, _ *astro.Target, _ time.Time) Breakdown {
	return Breakdown{}
}
