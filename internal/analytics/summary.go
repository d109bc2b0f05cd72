/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package analytics reports how a night was spent.
package analytics

import (
	"sort"
	"time"

	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/schedule"
)

// ProjectUsage is the time one project received.
type ProjectUsage struct {
	ProjectID string        `json:"project_id"`
	Name      string        `json:"name,omitempty"`
	Blocks    int           `json:"blocks"`
	Allocated time.Duration `json:"allocated"`
	Share     float64       `json:"share"` // of the window
	// Requested and Accrued come from the directory and are zero for rows.
	Requested time.Duration `json:"requested,omitempty"`
	Accrued   time.Duration `json:"accrued,omitempty"`
}

// Summary describes one schedule.
type Summary struct {
	RunID      string                     `json:"run_id"`
	Window     models.Window              `json:"window"`
	Entries    int                        `json:"entries"`
	Counts     map[models.BlockKind]int   `json:"counts"`
	Time       map[models.BlockKind]int64 `json:"seconds"` // per kind
	Observing  time.Duration              `json:"observing"`
	Transition time.Duration              `json:"transition"`
	Idle       time.Duration              `json:"idle"`

	IdleFraction       float64 `json:"idle_fraction"`
	TransitionOverhead float64 `json:"transition_overhead"` // transition / (observing + transition)
	Utilization        float64 `json:"utilization"`         // observing / window

	Projects []ProjectUsage `json:"projects"`
}

// Summarize reports a scheduler result. dir may be nil.
func Summarize(s *models.Schedule, dir *models.Directory) *Summary {
	return summarize(s.RunID, s.Window, schedule.Rows(s), dir)
}

// SummarizeRows reports a schedule read back from storage or an export.
func SummarizeRows(runID string, w models.Window, rows []models.ScheduleRow) *Summary {
	return summarize(runID, w, rows, nil)
}

func summarize(runID string, w models.Window, rows []models.ScheduleRow, dir *models.Directory) *Summary {
	out := &Summary{
		RunID:    runID,
		Window:   w,
		Entries:  len(rows),
		Counts:   make(map[models.BlockKind]int),
		Time:     make(map[models.BlockKind]int64),
		Projects: []ProjectUsage{},
	}

	byProject := make(map[string]*ProjectUsage)
	for _, r := range rows {
		d := r.Duration()
		out.Counts[r.Kind]++
		out.Time[r.Kind] += int64(d / time.Second)

		switch r.Kind {
		case models.BlockUnallocated:
			out.Idle += d
		case models.BlockTransition:
			out.Transition += d
		default:
			out.Observing += d
			if r.ProjectID == "" {
				continue
			}
			u, ok := byProject[r.ProjectID]
			if !ok {
				u = &ProjectUsage{ProjectID: r.ProjectID}
				byProject[r.ProjectID] = u
			}
			u.Blocks++
			u.Allocated += d
		}
	}

	if total := w.Duration(); total > 0 {
		out.IdleFraction = float64(out.Idle) / float64(total)
		out.Utilization = float64(out.Observing) / float64(total)
	}
	if busy := out.Observing + out.Transition; busy > 0 {
		out.TransitionOverhead = float64(out.Transition) / float64(busy)
	}

	for _, u := range byProject {
		if total := w.Duration(); total > 0 {
			u.Share = float64(u.Allocated) / float64(total)
		}
		if dir != nil {
			if p, ok := dir.Project(u.ProjectID); ok {
				u.Name = p.Name
				u.Requested = p.Requested
				u.Accrued = p.Accrued
			}
		}
		out.Projects = append(out.Projects, *u)
	}
	sort.Slice(out.Projects, func(i, j int) bool {
		a, b := out.Projects[i], out.Projects[j]
		if a.Allocated != b.Allocated {
			return a.Allocated > b.Allocated
		}
		return a.ProjectID < b.ProjectID
	})
	return out
}
