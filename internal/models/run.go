/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// RunState is the terminal state of a scheduling run.
type RunState string

const (
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// ScheduleRun is a persisted scheduling run.
type ScheduleRun struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Site        string    `gorm:"index" json:"site"`
	WindowStart time.Time `gorm:"index" json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	State       RunState  `gorm:"type:varchar(16)" json:"state"`
	Placed      int       `json:"placed"`
	Rejected    int       `json:"rejected"`
	Expired     int       `json:"expired"`
	AbortBlock  string    `json:"abort_block,omitempty"`
	AbortReason string    `gorm:"type:text" json:"abort_reason,omitempty"`
	ObjectKey   string    `json:"object_key,omitempty"` // exported ECSV in the object store
	CreatedAt   time.Time `json:"created_at"`
}

// ScheduleRow is one schedule entry in tabular form. Rows are ordered by Seq.
type ScheduleRow struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	RunID         string    `gorm:"type:uuid;index" json:"run_id" yaml:"-"`
	Seq           int       `json:"seq"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Kind          BlockKind `gorm:"type:varchar(16)" json:"kind"`
	BlockID       string    `gorm:"index" json:"block_id"`
	Name          string    `json:"name"`
	ProjectID     string    `gorm:"index" json:"project_id"`
	ObserverID    string    `json:"observer_id"`
	Field         FieldKind `gorm:"type:varchar(16)" json:"field"`
	Target        string    `json:"target"`
	RA            float64   `json:"ra"`
	Dec           float64   `json:"dec"`
	PMRA          float64   `json:"pm_ra"`
	PMDec         float64   `json:"pm_dec"`
	Calibration   string    `json:"calibration"`
	Configuration string    `json:"configuration"`
	Exposure      float64   `json:"exposure"` // seconds
	Repeat        int       `json:"repeat"`
	Priority      float64   `json:"priority"`
}

// Duration returns End - Start.
func (r ScheduleRow) Duration() time.Duration { return r.End.Sub(r.Start) }
