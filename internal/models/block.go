/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/condition"
)

var (
	// ErrInvalidBlock indicates a block that violates the data model.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrStateTransition indicates a state change from a non-pending block.
	ErrStateTransition = errors.New("invalid block state transition")
)

// BlockKind enumerates block variants.
type BlockKind string

const (
	BlockSchedule    BlockKind = "schedule"
	BlockCalibration BlockKind = "calibration"
	BlockTransition  BlockKind = "transition"
	BlockUnallocated BlockKind = "unallocated"
)

// Submittable reports whether callers may queue blocks of this kind.
func (k BlockKind) Submittable() bool {
	return k == BlockSchedule || k == BlockCalibration
}

// BlockState is the allocation state of a block within one run.
type BlockState string

const (
	StatePending   BlockState = "pending"
	StateScheduled BlockState = "scheduled"
	StateRejected  BlockState = "rejected"
	StateExpired   BlockState = "expired"
)

// Block is the schedulable unit. Observer and project are referenced by ID and
// resolved through a Directory.
type Block struct {
	ID         string
	Name       string
	Kind       BlockKind
	ObserverID string
	ProjectID  string
	Field      Field
	Conditions []condition.Condition

	// BasePriority is the submitted weight; Priority is owned by the
	// prioritizer and recomputed from it before each selection.
	BasePriority float64
	Priority     float64

	State  BlockState
	Start  time.Time
	End    time.Time
	Reason string // why the block was rejected or expired
}

// NewBlock returns a pending block whose working priority equals its base.
func NewBlock(id string, kind BlockKind, field Field, priority float64, conds ...condition.Condition) *Block {
	return &Block{
		ID:           id,
		Kind:         kind,
		Field:        field,
		Conditions:   conds,
		BasePriority: priority,
		Priority:     priority,
		State:        StatePending,
	}
}

// NewUnallocated returns an idle gap covering [start, end).
func NewUnallocated(id string, start, end time.Time) *Block {
	return &Block{ID: id, Kind: BlockUnallocated, State: StateScheduled, Start: start, End: end}
}

// NewTransition returns a synthesized transition block.
func NewTransition(id string, field *TransitionField, start time.Time) *Block {
	return &Block{
		ID:    id,
		Kind:  BlockTransition,
		Field: field,
		State: StateScheduled,
		Start: start,
		End:   start.Add(field.TotalDuration()),
	}
}

// Target returns the pointing of the block's field, nil for calibrations.
func (b *Block) Target() *astro.Target {
	if b.Field == nil {
		return nil
	}
	return b.Field.Target()
}

// Duration returns the field's total duration.
func (b *Block) Duration() time.Duration {
	if b.Field == nil {
		return 0
	}
	return b.Field.TotalDuration()
}

// Configuration returns the configuration the field requires.
func (b *Block) Configuration() InstrumentConfiguration {
	if b.Field == nil {
		return InstrumentConfiguration{}
	}
	return b.Field.RequiredConfiguration()
}

// Validate checks the data model invariants of a submitted block.
func (b *Block) Validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("missing id: %w", ErrInvalidBlock)
	case !b.Kind.Submittable():
		return fmt.Errorf("block %s: kind %q cannot be submitted: %w", b.ID, b.Kind, ErrInvalidBlock)
	case b.Field == nil:
		return fmt.Errorf("block %s: missing field: %w", b.ID, ErrInvalidBlock)
	case b.Field.Kind() == FieldTransition:
		return fmt.Errorf("block %s: transition fields are synthesized: %w", b.ID, ErrInvalidBlock)
	case math.IsNaN(b.BasePriority) || math.IsInf(b.BasePriority, 0) || b.BasePriority < 0:
		return fmt.Errorf("block %s: priority %g: %w", b.ID, b.BasePriority, ErrInvalidBlock)
	case b.State != StatePending:
		return fmt.Errorf("block %s: state %s: %w", b.ID, b.State, ErrInvalidBlock)
	}
	if err := b.Field.Validate(); err != nil {
		return fmt.Errorf("block %s: %v: %w", b.ID, err, ErrInvalidBlock)
	}
	for _, c := range b.Conditions {
		if c == nil {
			return fmt.Errorf("block %s: nil condition: %w", b.ID, ErrInvalidBlock)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("block %s: %v: %w", b.ID, err, ErrInvalidBlock)
		}
	}
	if lo, hi := b.TimeWindow(); !lo.IsZero() && !hi.IsZero() && hi.Sub(lo) < b.Duration() {
		return fmt.Errorf("block %s: time window shorter than %s: %w", b.ID, b.Duration(), ErrInvalidBlock)
	}
	return nil
}

// IsFeasible reports whether every attached condition holds at the instant.
func (b *Block) IsFeasible(eph astro.Ephemeris, site astro.Site, at time.Time) bool {
	ok, _ := condition.All(b.Conditions, eph, site, at, b.Target())
	return ok
}

// Score is priority x mean(condition scores), 0 when infeasible.
func (b *Block) Score(eph astro.Ephemeris, site astro.Site, at time.Time) float64 {
	return b.ScoreWith(eph, site, at, nil)
}

// ScoreWith scores the block against its own conditions plus extra, which
// share a single mean.
func (b *Block) ScoreWith(eph astro.Ephemeris, site astro.Site, at time.Time, extra []condition.Condition) float64 {
	conds := b.Conditions
	if len(extra) > 0 {
		conds = make([]condition.Condition, 0, len(b.Conditions)+len(extra))
		conds = append(append(conds, b.Conditions...), extra...)
	}
	ok, mean := condition.All(conds, eph, site, at, b.Target())
	if !ok {
		return 0
	}
	return b.Priority * mean
}

// TimeWindow intersects the attached time conditions. A zero bound is open.
func (b *Block) TimeWindow() (lo, hi time.Time) {
	for _, c := range b.Conditions {
		tc, ok := c.(*condition.Time)
		if !ok {
			continue
		}
		if !tc.Start.IsZero() && (lo.IsZero() || tc.Start.After(lo)) {
			lo = tc.Start
		}
		if !tc.End.IsZero() && (hi.IsZero() || tc.End.Before(hi)) {
			hi = tc.End
		}
	}
	return lo, hi
}

// MarkScheduled fixes the block's placement. It is written once per run.
func (b *Block) MarkScheduled(start, end time.Time) error {
	if b.State != StatePending {
		return fmt.Errorf("block %s: schedule from %s: %w", b.ID, b.State, ErrStateTransition)
	}
	if !start.Before(end) {
		return fmt.Errorf("block %s: start %s not before end %s: %w", b.ID, start, end, ErrInvalidBlock)
	}
	if end.Sub(start) < b.Duration() {
		return fmt.Errorf("block %s: span %s shorter than %s: %w", b.ID, end.Sub(start), b.Duration(), ErrInvalidBlock)
	}
	b.State = StateScheduled
	b.Start, b.End = start, end
	return nil
}

// MarkRejected records that no feasible slot existed before window close.
func (b *Block) MarkRejected(reason string) error {
	return b.terminate(StateRejected, reason)
}

// MarkExpired records that the block's time window closed unscheduled.
func (b *Block) MarkExpired(reason string) error {
	return b.terminate(StateExpired, reason)
}

func (b *Block) terminate(state BlockState, reason string) error {
	if b.State != StatePending {
		return fmt.Errorf("block %s: %s from %s: %w", b.ID, state, b.State, ErrStateTransition)
	}
	b.State = state
	b.Reason = reason
	return nil
}

// Reset returns the block to pending for re-submission on another night.
func (b *Block) Reset() {
	b.State = StatePending
	b.Start, b.End = time.Time{}, time.Time{}
	b.Priority = b.BasePriority
	b.Reason = ""
}
