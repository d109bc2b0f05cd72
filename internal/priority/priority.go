/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package priority assigns working priorities to pending blocks and keeps
// the per-project accrual that feeds them.
package priority

import (
	"time"

	"github.com/friendsincode/telrun/internal/models"
	"github.com/rs/zerolog"
)

// Context is the scheduling state a prioritizer may consult.
type Context struct {
	Cursor    time.Time
	Window    models.Window
	Directory *models.Directory
}

// Prioritizer computes a block's working priority.
type Prioritizer interface {
	Score(b *models.Block, ctx Context) float64
}

// Default fair-share parameters.
const (
	DefaultShareWeight  = 1.0
	DefaultUrgencyBoost = 1.0
	DefaultHorizon      = 2 * time.Hour
)

// FairShare is the default policy:
//
//	base x project weight x (1 + ShareWeight x (1 - min(accrued/requested, 1))) x urgency
//
// where urgency is 1 + UrgencyBoost x (1 - remaining/Horizon) once the
// block's time window closes within Horizon of the cursor, and 1 otherwise.
type FairShare struct {
	ShareWeight  float64
	UrgencyBoost float64
	Horizon      time.Duration
}

// NewFairShare returns the policy with default parameters.
func NewFairShare() *FairShare {
	return &FairShare{
		ShareWeight:  DefaultShareWeight,
		UrgencyBoost: DefaultUrgencyBoost,
		Horizon:      DefaultHorizon,
	}
}

func (f *FairShare) Score(b *models.Block, ctx Context) float64 {
	score := b.BasePriority

	if p, ok := ctx.Directory.Project(b.ProjectID); ok {
		ratio := p.AccruedRatio()
		if ratio > 1 {
			ratio = 1
		}
		score *= p.Weight * (1 + f.ShareWeight*(1-ratio))
	}

	_, closes := b.TimeWindow()
	if !closes.IsZero() && f.Horizon > 0 {
		remaining := closes.Sub(ctx.Cursor)
		if remaining >= 0 && remaining < f.Horizon {
			score *= 1 + f.UrgencyBoost*(1-float64(remaining)/float64(f.Horizon))
		}
	}
	return score
}

// Static keeps the submitted priority.
type Static struct{}

func (Static) Score(b *models.Block, _ Context) float64 { return b.BasePriority }

// Apply writes the prioritizer's score into each block's working priority.
func Apply(p Prioritizer, blocks []*models.Block, ctx Context) {
	for _, b := range blocks {
		b.Priority = p.Score(b, ctx)
	}
}

// Ledger records scheduled time against projects.
type Ledger struct {
	dir    *models.Directory
	logger zerolog.Logger
}

// NewLedger creates a ledger over the caller's directory. A nil directory
// records nothing.
func NewLedger(dir *models.Directory, logger zerolog.Logger) *Ledger {
	return &Ledger{dir: dir, logger: logger.With().Str("component", "priority").Logger()}
}

// Record accrues a scheduled block's span to its project.
func (l *Ledger) Record(b *models.Block) {
	if l.dir == nil || b.ProjectID == "" || b.State != models.StateScheduled {
		return
	}
	if err := l.dir.Accrue(b.ProjectID, b.End.Sub(b.Start)); err != nil {
		l.logger.Debug().Err(err).Str("block_id", b.ID).Msg("accrual skipped")
		return
	}
	p, _ := l.dir.Project(b.ProjectID)
	l.logger.Debug().
		Str("project_id", p.ID).
		Dur("accrued", p.Accrued).
		Float64("ratio", p.AccruedRatio()).
		Msg("project accrued time")
}
