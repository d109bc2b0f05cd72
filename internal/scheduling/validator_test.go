/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/models"
)

var (
	base   = time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC)
	window = models.Window{Start: base, End: base.Add(4 * time.Hour)}
)

func hours(h float64) time.Time {
	return base.Add(time.Duration(h * float64(time.Hour)))
}

func lightBlock(id string, d time.Duration) *models.Block {
	return models.NewBlock(id, models.BlockSchedule, &models.LightField{
		Exposure: models.Exposure{Duration: d, Repeat: 1},
		Pointing: astro.Target{Name: id},
	}, 1)
}

func TestValidScheduleFromAppend(t *testing.T) {
	s := models.NewSchedule("run", window)
	if err := s.Append(lightBlock("a", time.Hour), hours(0), hours(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(lightBlock("b", time.Hour), hours(2), hours(3)); err != nil {
		t.Fatal(err)
	}
	s.Fill()

	result := NewValidator(zerolog.Nop()).Validate(s)
	if !result.Valid {
		t.Fatalf("errors: %+v", result.Errors)
	}
}

func TestValidateItems(t *testing.T) {
	item := func(id string, kind models.BlockKind, start, end float64) Item {
		return Item{ID: id, Kind: kind, Start: hours(start), End: hours(end)}
	}

	tests := []struct {
		name  string
		items []Item
		want  RuleType
	}{
		{
			name:  "overlap",
			items: []Item{item("a", models.BlockSchedule, 0, 2), item("b", models.BlockSchedule, 1, 4)},
			want:  RuleOverlap,
		},
		{
			name:  "implicit gap",
			items: []Item{item("a", models.BlockSchedule, 0, 1), item("b", models.BlockSchedule, 2, 4)},
			want:  RuleGap,
		},
		{
			name:  "out of order",
			items: []Item{item("a", models.BlockSchedule, 2, 4), item("b", models.BlockSchedule, 0, 2)},
			want:  RuleOrdering,
		},
		{
			name:  "late start",
			items: []Item{item("a", models.BlockSchedule, 1, 4)},
			want:  RuleCoverage,
		},
		{
			name:  "early end",
			items: []Item{item("a", models.BlockSchedule, 0, 3)},
			want:  RuleCoverage,
		},
		{
			name:  "no entries",
			items: nil,
			want:  RuleCoverage,
		},
		{
			name:  "duplicate block",
			items: []Item{item("a", models.BlockSchedule, 0, 2), item("a", models.BlockSchedule, 2, 4)},
			want:  RuleDuplicate,
		},
		{
			name: "short block",
			items: []Item{
				{ID: "a", Kind: models.BlockSchedule, Start: hours(0), End: hours(1), Required: 2 * time.Hour},
				item("gap", models.BlockUnallocated, 1, 4),
			},
			want: RuleShortBlock,
		},
		{
			name:  "empty entry",
			items: []Item{item("a", models.BlockSchedule, 0, 0), item("b", models.BlockSchedule, 0, 4)},
			want:  RuleEmpty,
		},
	}

	v := NewValidator(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateItems(window, tt.items)
			if result.Valid {
				t.Fatal("expected invalid schedule")
			}
			found := false
			for _, e := range result.Errors {
				if e.Rule == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %+v missing %s", result.Errors, tt.want)
			}
		})
	}
}

func TestUnallocatedRepeatsAreNotDuplicates(t *testing.T) {
	items := []Item{
		{ID: "gap", Kind: models.BlockUnallocated, Start: hours(0), End: hours(1)},
		{ID: "a", Kind: models.BlockSchedule, Start: hours(1), End: hours(2)},
		{ID: "gap", Kind: models.BlockUnallocated, Start: hours(2), End: hours(4)},
	}
	if result := NewValidator(zerolog.Nop()).ValidateItems(window, items); !result.Valid {
		t.Errorf("errors: %+v", result.Errors)
	}
}

func TestIdleWarning(t *testing.T) {
	items := []Item{
		{ID: "a", Kind: models.BlockSchedule, Start: hours(0), End: hours(0.5)},
		{ID: "t", Kind: models.BlockTransition, Start: hours(0.5), End: hours(1)},
		{ID: "gap", Kind: models.BlockUnallocated, Start: hours(1), End: hours(4)},
	}
	v := NewValidator(zerolog.Nop())
	v.MaxIdleFraction = 0.5

	result := v.ValidateItems(window, items)
	if !result.Valid {
		t.Fatalf("warnings must not invalidate: %+v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Rule != RuleIdle {
		t.Errorf("warnings = %+v", result.Warnings)
	}
	if len(result.Info) != 1 {
		t.Errorf("info = %+v, want transition overhead", result.Info)
	}
}

func TestValidateRows(t *testing.T) {
	rows := []models.ScheduleRow{
		{BlockID: "a", Kind: models.BlockSchedule, Start: hours(0), End: hours(2)},
		{BlockID: "b", Kind: models.BlockSchedule, Start: hours(1.5), End: hours(4)},
	}
	result := NewValidator(zerolog.Nop()).ValidateRows(window, rows)
	if result.Valid || result.Errors[0].Rule != RuleOverlap {
		t.Errorf("result = %+v", result)
	}
}
