/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule exports, imports and persists finished schedules.
package schedule

import (
	"time"

	"github.com/friendsincode/telrun/internal/models"
)

// isot is the timestamp layout used in file names.
const isot = "2006-01-02T15:04:05.000"

// Rows flattens a schedule into one row per entry.
func Rows(s *models.Schedule) []models.ScheduleRow {
	rows := make([]models.ScheduleRow, 0, len(s.Entries))
	for i, e := range s.Entries {
		b := e.Block
		row := models.ScheduleRow{
			RunID:      s.RunID,
			Seq:        i,
			Start:      e.Start.UTC(),
			End:        e.End.UTC(),
			Kind:       b.Kind,
			BlockID:    b.ID,
			Name:       b.Name,
			ProjectID:  b.ProjectID,
			ObserverID: b.ObserverID,
			Priority:   b.BasePriority,
		}
		if b.Field != nil {
			row.Field = b.Field.Kind()
			if row.Field.Calibration() {
				row.Calibration = string(row.Field)
			}
			row.Configuration = b.Configuration().String()
			if exp, ok := exposureOf(b.Field); ok {
				row.Exposure = exp.Duration.Seconds()
				row.Repeat = exp.Repeat
			}
		}
		if t := b.Target(); t != nil {
			row.Target = t.Name
			row.RA, row.Dec = t.At(e.Start)
			row.PMRA, row.PMDec = t.PMRA, t.PMDec
		}
		rows = append(rows, row)
	}
	return rows
}

func exposureOf(f models.Field) (models.Exposure, bool) {
	switch f := f.(type) {
	case *models.LightField:
		return f.Exposure, true
	case *models.AutofocusField:
		return f.Exposure, true
	case *models.DarkField:
		return f.Exposure, true
	case *models.FlatField:
		return f.Exposure, true
	}
	return models.Exposure{}, false
}

// Filename names an exported schedule after its first entry's start.
func Filename(rows []models.ScheduleRow) string {
	if len(rows) == 0 {
		return "telrun_empty.ecsv"
	}
	return "telrun_" + rows[0].Start.UTC().Format(isot) + ".ecsv"
}

// Window recovers the covered window from rows in schedule order.
func Window(rows []models.ScheduleRow) models.Window {
	if len(rows) == 0 {
		return models.Window{}
	}
	return models.Window{Start: rows[0].Start, End: rows[len(rows)-1].End}
}

func utc(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
