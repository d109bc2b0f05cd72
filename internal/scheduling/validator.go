/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling checks finished schedules for structural defects.
package scheduling

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/models"
)

// RuleType identifies the check that produced a violation.
type RuleType string

const (
	RuleOverlap    RuleType = "overlap"     // entries share time
	RuleGap        RuleType = "gap"         // implicit idle time between entries
	RuleOrdering   RuleType = "ordering"    // entries not sorted by start
	RuleCoverage   RuleType = "coverage"    // schedule does not span its window
	RuleDuplicate  RuleType = "duplicate"   // a block placed more than once
	RuleShortBlock RuleType = "short_block" // entry shorter than its block needs
	RuleEmpty      RuleType = "empty"       // entry with end <= start
	RuleIdle       RuleType = "idle"        // unallocated share above threshold
)

// Severity is how serious a violation is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Violation is a single finding.
type Violation struct {
	Rule        RuleType       `json:"rule"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	StartsAt    time.Time      `json:"starts_at"`
	EndsAt      time.Time      `json:"ends_at"`
	AffectedIDs []string       `json:"affected_ids,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// ValidationResult is the outcome of validating one schedule.
type ValidationResult struct {
	Valid      bool        `json:"valid"` // no errors; warnings are allowed
	Errors     []Violation `json:"errors"`
	Warnings   []Violation `json:"warnings"`
	Info       []Violation `json:"info"`
	CheckedAt  time.Time   `json:"checked_at"`
	RangeStart time.Time   `json:"range_start"`
	RangeEnd   time.Time   `json:"range_end"`
}

func (r *ValidationResult) add(v Violation) {
	switch v.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, v)
		r.Valid = false
	case SeverityWarning:
		r.Warnings = append(r.Warnings, v)
	default:
		r.Info = append(r.Info, v)
	}
}

// Item is a schedule entry reduced to what the checks need. Required is the
// duration the block needs; zero skips the short-block check.
type Item struct {
	ID       string
	Kind     models.BlockKind
	Label    string
	Start    time.Time
	End      time.Time
	Required time.Duration
}

func (i Item) label() string {
	if i.Label != "" {
		return fmt.Sprintf("%s (%s)", i.Label, i.ID)
	}
	return i.ID
}

// Validator runs the structural checks.
type Validator struct {
	// MaxIdleFraction raises a warning when the unallocated share of the
	// window exceeds it. Zero disables the check.
	MaxIdleFraction float64

	logger zerolog.Logger
}

// NewValidator creates a schedule validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{
		logger: logger.With().Str("component", "schedule_validator").Logger(),
	}
}

// Validate checks a schedule built by the scheduler.
func (v *Validator) Validate(s *models.Schedule) *ValidationResult {
	items := make([]Item, 0, len(s.Entries))
	for _, e := range s.Entries {
		it := Item{ID: e.Block.ID, Kind: e.Block.Kind, Label: e.Block.Name, Start: e.Start, End: e.End}
		if e.Block.Kind.Submittable() {
			it.Required = e.Block.Duration()
		}
		items = append(items, it)
	}
	return v.ValidateItems(s.Window, items)
}

// ValidateRows checks a schedule read back from an export. Rows carry no
// overhead, so the short-block check is skipped.
func (v *Validator) ValidateRows(w models.Window, rows []models.ScheduleRow) *ValidationResult {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{ID: r.BlockID, Kind: r.Kind, Label: r.Name, Start: r.Start, End: r.End})
	}
	return v.ValidateItems(w, items)
}

// ValidateItems runs every check over items in schedule order.
func (v *Validator) ValidateItems(w models.Window, items []Item) *ValidationResult {
	result := &ValidationResult{
		Valid:      true,
		Errors:     []Violation{},
		Warnings:   []Violation{},
		Info:       []Violation{},
		CheckedAt:  time.Now(),
		RangeStart: w.Start,
		RangeEnd:   w.End,
	}

	v.checkCoverage(result, w, items)
	v.checkSequence(result, items)
	v.checkDuplicates(result, items)
	v.checkShortBlocks(result, items)
	v.checkIdle(result, w, items)

	v.logger.Debug().
		Bool("valid", result.Valid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Int("entries", len(items)).
		Msg("schedule validated")
	return result
}

func (v *Validator) checkCoverage(result *ValidationResult, w models.Window, items []Item) {
	if len(items) == 0 {
		result.add(Violation{
			Rule:     RuleCoverage,
			Severity: SeverityError,
			Message:  "schedule has no entries",
			StartsAt: w.Start,
			EndsAt:   w.End,
		})
		return
	}
	if first := items[0]; !first.Start.Equal(w.Start) {
		result.add(Violation{
			Rule:        RuleCoverage,
			Severity:    SeverityError,
			Message:     fmt.Sprintf("first entry %s starts at %s, window opens at %s", first.label(), first.Start.Format(time.RFC3339), w.Start.Format(time.RFC3339)),
			StartsAt:    w.Start,
			EndsAt:      first.Start,
			AffectedIDs: []string{first.ID},
		})
	}
	if last := items[len(items)-1]; !last.End.Equal(w.End) {
		result.add(Violation{
			Rule:        RuleCoverage,
			Severity:    SeverityError,
			Message:     fmt.Sprintf("last entry %s ends at %s, window closes at %s", last.label(), last.End.Format(time.RFC3339), w.End.Format(time.RFC3339)),
			StartsAt:    last.End,
			EndsAt:      w.End,
			AffectedIDs: []string{last.ID},
		})
	}
}

// checkSequence compares each entry with its predecessor.
func (v *Validator) checkSequence(result *ValidationResult, items []Item) {
	for i, it := range items {
		if !it.Start.Before(it.End) {
			result.add(Violation{
				Rule:        RuleEmpty,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("entry %s has end %s not after start %s", it.label(), it.End.Format(time.RFC3339), it.Start.Format(time.RFC3339)),
				StartsAt:    it.Start,
				EndsAt:      it.End,
				AffectedIDs: []string{it.ID},
			})
		}
		if i == 0 {
			continue
		}
		prev := items[i-1]
		switch {
		case it.Start.Before(prev.Start):
			result.add(Violation{
				Rule:        RuleOrdering,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("entry %s starts before preceding entry %s", it.label(), prev.label()),
				StartsAt:    it.Start,
				EndsAt:      prev.Start,
				AffectedIDs: []string{prev.ID, it.ID},
			})
		case it.Start.Before(prev.End):
			overlap := minTime(prev.End, it.End).Sub(it.Start)
			result.add(Violation{
				Rule:        RuleOverlap,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("entry %s overlaps %s by %s", it.label(), prev.label(), overlap),
				StartsAt:    it.Start,
				EndsAt:      minTime(prev.End, it.End),
				AffectedIDs: []string{prev.ID, it.ID},
				Details:     map[string]any{"overlap_seconds": overlap.Seconds()},
			})
		case it.Start.After(prev.End):
			gap := it.Start.Sub(prev.End)
			result.add(Violation{
				Rule:        RuleGap,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("%s of unrecorded time between %s and %s", gap, prev.label(), it.label()),
				StartsAt:    prev.End,
				EndsAt:      it.Start,
				AffectedIDs: []string{prev.ID, it.ID},
				Details:     map[string]any{"gap_seconds": gap.Seconds()},
			})
		}
	}
}

func (v *Validator) checkDuplicates(result *ValidationResult, items []Item) {
	seen := make(map[string]Item)
	for _, it := range items {
		if !it.Kind.Submittable() {
			continue
		}
		if first, ok := seen[it.ID]; ok {
			result.add(Violation{
				Rule:        RuleDuplicate,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("block %s placed at %s and again at %s", it.label(), first.Start.Format(time.RFC3339), it.Start.Format(time.RFC3339)),
				StartsAt:    it.Start,
				EndsAt:      it.End,
				AffectedIDs: []string{it.ID},
			})
			continue
		}
		seen[it.ID] = it
	}
}

func (v *Validator) checkShortBlocks(result *ValidationResult, items []Item) {
	for _, it := range items {
		if it.Required <= 0 {
			continue
		}
		if got := it.End.Sub(it.Start); got < it.Required {
			result.add(Violation{
				Rule:        RuleShortBlock,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("block %s has %s, needs %s", it.label(), got, it.Required),
				StartsAt:    it.Start,
				EndsAt:      it.End,
				AffectedIDs: []string{it.ID},
				Details:     map[string]any{"required_seconds": it.Required.Seconds(), "actual_seconds": got.Seconds()},
			})
		}
	}
}

func (v *Validator) checkIdle(result *ValidationResult, w models.Window, items []Item) {
	if !w.Valid() {
		return
	}
	var idle, transition time.Duration
	for _, it := range items {
		switch it.Kind {
		case models.BlockUnallocated:
			idle += it.End.Sub(it.Start)
		case models.BlockTransition:
			transition += it.End.Sub(it.Start)
		}
	}
	frac := float64(idle) / float64(w.Duration())
	if v.MaxIdleFraction > 0 && frac > v.MaxIdleFraction {
		result.add(Violation{
			Rule:     RuleIdle,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%.0f%% of the window is unallocated", frac*100),
			StartsAt: w.Start,
			EndsAt:   w.End,
			Details:  map[string]any{"idle_fraction": frac},
		})
	}
	if transition > 0 {
		result.add(Violation{
			Rule:     RuleIdle,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s spent in transitions", transition),
			StartsAt: w.Start,
			EndsAt:   w.End,
			Details:  map[string]any{"transition_seconds": transition.Seconds()},
		})
	}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
