/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"encoding/json"
	"io"

	"github.com/friendsincode/telrun/internal/models"
)

// Document is the JSON form of an exported schedule.
type Document struct {
	Meta Meta                 `json:"meta"`
	Rows []models.ScheduleRow `json:"rows"`
}

// WriteJSON writes rows as an indented JSON document.
func WriteJSON(w io.Writer, meta Meta, rows []models.ScheduleRow) error {
	if rows == nil {
		rows = []models.ScheduleRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Meta: meta, Rows: rows})
}
