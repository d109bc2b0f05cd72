/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/telrun/internal/models"
)

// ErrFormat indicates a malformed ECSV document.
var ErrFormat = errors.New("malformed ecsv")

const ecsvSignature = "# %ECSV 1.0"

// Meta is the run metadata carried in the ECSV header.
type Meta struct {
	RunID       string    `yaml:"run_id" json:"run_id"`
	Site        string    `yaml:"site" json:"site"`
	WindowStart time.Time `yaml:"-" json:"window_start"`
	WindowEnd   time.Time `yaml:"-" json:"window_end"`
	State       string    `yaml:"state,omitempty" json:"state,omitempty"`
}

// Window returns the scheduled window.
func (m Meta) Window() models.Window {
	return models.Window{Start: m.WindowStart, End: m.WindowEnd}
}

type column struct {
	Name        string `yaml:"name"`
	Datatype    string `yaml:"datatype"`
	Unit        string `yaml:"unit,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type ecsvMeta struct {
	RunID       string `yaml:"run_id"`
	Site        string `yaml:"site"`
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`
	State       string `yaml:"state,omitempty"`
}

type ecsvHeader struct {
	Delimiter string   `yaml:"delimiter"`
	Datatype  []column `yaml:"datatype"`
	Meta      ecsvMeta `yaml:"meta"`
	Schema    string   `yaml:"schema"`
}

// columns in output order. Each knows how to format and parse its cell.
var columns = []struct {
	column
	get func(r *models.ScheduleRow) string
	set func(r *models.ScheduleRow, v string) error
}{
	{column{Name: "start", Datatype: "string", Description: "UTC, RFC 3339"},
		func(r *models.ScheduleRow) string { return utc(r.Start) },
		func(r *models.ScheduleRow, v string) (err error) {
			r.Start, err = time.Parse(time.RFC3339Nano, v)
			return
		}},
	{column{Name: "end", Datatype: "string", Description: "UTC, RFC 3339"},
		func(r *models.ScheduleRow) string { return utc(r.End) },
		func(r *models.ScheduleRow, v string) (err error) {
			r.End, err = time.Parse(time.RFC3339Nano, v)
			return
		}},
	{column{Name: "kind", Datatype: "string"},
		func(r *models.ScheduleRow) string { return string(r.Kind) },
		func(r *models.ScheduleRow, v string) error { r.Kind = models.BlockKind(v); return nil }},
	{column{Name: "block_id", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.BlockID },
		func(r *models.ScheduleRow, v string) error { r.BlockID = v; return nil }},
	{column{Name: "name", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.Name },
		func(r *models.ScheduleRow, v string) error { r.Name = v; return nil }},
	{column{Name: "project_id", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.ProjectID },
		func(r *models.ScheduleRow, v string) error { r.ProjectID = v; return nil }},
	{column{Name: "observer_id", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.ObserverID },
		func(r *models.ScheduleRow, v string) error { r.ObserverID = v; return nil }},
	{column{Name: "field", Datatype: "string"},
		func(r *models.ScheduleRow) string { return string(r.Field) },
		func(r *models.ScheduleRow, v string) error { r.Field = models.FieldKind(v); return nil }},
	{column{Name: "target", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.Target },
		func(r *models.ScheduleRow, v string) error { r.Target = v; return nil }},
	{column{Name: "ra", Datatype: "float64", Unit: "deg"},
		func(r *models.ScheduleRow) string { return ftoa(r.RA) },
		func(r *models.ScheduleRow, v string) (err error) { r.RA, err = atof(v); return }},
	{column{Name: "dec", Datatype: "float64", Unit: "deg"},
		func(r *models.ScheduleRow) string { return ftoa(r.Dec) },
		func(r *models.ScheduleRow, v string) (err error) { r.Dec, err = atof(v); return }},
	{column{Name: "pm_ra", Datatype: "float64", Unit: "arcsec / h"},
		func(r *models.ScheduleRow) string { return ftoa(r.PMRA) },
		func(r *models.ScheduleRow, v string) (err error) { r.PMRA, err = atof(v); return }},
	{column{Name: "pm_dec", Datatype: "float64", Unit: "arcsec / h"},
		func(r *models.ScheduleRow) string { return ftoa(r.PMDec) },
		func(r *models.ScheduleRow, v string) (err error) { r.PMDec, err = atof(v); return }},
	{column{Name: "calibration", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.Calibration },
		func(r *models.ScheduleRow, v string) error { r.Calibration = v; return nil }},
	{column{Name: "configuration", Datatype: "string"},
		func(r *models.ScheduleRow) string { return r.Configuration },
		func(r *models.ScheduleRow, v string) error { r.Configuration = v; return nil }},
	{column{Name: "exposure", Datatype: "float64", Unit: "s"},
		func(r *models.ScheduleRow) string { return ftoa(r.Exposure) },
		func(r *models.ScheduleRow, v string) (err error) { r.Exposure, err = atof(v); return }},
	{column{Name: "repeat", Datatype: "int64"},
		func(r *models.ScheduleRow) string { return strconv.Itoa(r.Repeat) },
		func(r *models.ScheduleRow, v string) (err error) { r.Repeat, err = strconv.Atoi(v); return }},
	{column{Name: "priority", Datatype: "float64"},
		func(r *models.ScheduleRow) string { return ftoa(r.Priority) },
		func(r *models.ScheduleRow, v string) (err error) { r.Priority, err = atof(v); return }},
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func atof(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

// WriteECSV writes rows as an Enhanced CSV table with a YAML header.
func WriteECSV(w io.Writer, meta Meta, rows []models.ScheduleRow) error {
	hdr := ecsvHeader{
		Delimiter: ",",
		Meta: ecsvMeta{
			RunID:       meta.RunID,
			Site:        meta.Site,
			WindowStart: utc(meta.WindowStart),
			WindowEnd:   utc(meta.WindowEnd),
			State:       meta.State,
		},
		Schema: "astropy-2.0",
	}
	for _, c := range columns {
		hdr.Datatype = append(hdr.Datatype, c.column)
	}
	doc, err := yaml.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode ecsv header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(ecsvSignature + "\n")
	fmt.Fprintln(bw, "# ---")
	for _, line := range strings.Split(strings.TrimRight(string(doc), "\n"), "\n") {
		fmt.Fprintln(bw, "# "+line)
	}

	cw := csv.NewWriter(bw)
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	if err := cw.Write(names); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for i := range rows {
		for j, c := range columns {
			record[j] = c.get(&rows[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadECSV parses a document written by WriteECSV. Columns are matched by
// name, so reordered or extra columns are tolerated.
func ReadECSV(r io.Reader) (Meta, []models.ScheduleRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Meta{}, nil, err
	}

	var yamlLines []string
	body, line := data, 0
	for len(body) > 0 && body[0] == '#' {
		var text string
		if end := bytes.IndexByte(body, '\n'); end >= 0 {
			text, body = string(body[:end]), body[end+1:]
		} else {
			text, body = string(body), nil
		}
		text = strings.TrimRight(text, "\r")
		switch {
		case line == 0 && !strings.HasPrefix(text, "# %ECSV"):
			return Meta{}, nil, fmt.Errorf("missing %q signature: %w", ecsvSignature, ErrFormat)
		case line == 0, text == "# ---":
		default:
			yamlLines = append(yamlLines, strings.TrimPrefix(strings.TrimPrefix(text, "#"), " "))
		}
		line++
	}
	if line == 0 {
		return Meta{}, nil, fmt.Errorf("no header: %w", ErrFormat)
	}

	var hdr ecsvHeader
	if err := yaml.Unmarshal([]byte(strings.Join(yamlLines, "\n")), &hdr); err != nil {
		return Meta{}, nil, fmt.Errorf("decode header: %v: %w", err, ErrFormat)
	}
	meta := Meta{RunID: hdr.Meta.RunID, Site: hdr.Meta.Site, State: hdr.Meta.State}
	if hdr.Meta.WindowStart != "" {
		if meta.WindowStart, err = time.Parse(time.RFC3339Nano, hdr.Meta.WindowStart); err != nil {
			return Meta{}, nil, fmt.Errorf("window_start: %v: %w", err, ErrFormat)
		}
	}
	if hdr.Meta.WindowEnd != "" {
		if meta.WindowEnd, err = time.Parse(time.RFC3339Nano, hdr.Meta.WindowEnd); err != nil {
			return Meta{}, nil, fmt.Errorf("window_end: %v: %w", err, ErrFormat)
		}
	}

	cr := csv.NewReader(bytes.NewReader(body))
	if hdr.Delimiter != "" {
		if len(hdr.Delimiter) != 1 {
			return Meta{}, nil, fmt.Errorf("delimiter %q: %w", hdr.Delimiter, ErrFormat)
		}
		cr.Comma = rune(hdr.Delimiter[0])
	}
	records, err := cr.ReadAll()
	if err != nil {
		return Meta{}, nil, fmt.Errorf("read table: %v: %w", err, ErrFormat)
	}
	if len(records) == 0 {
		return Meta{}, nil, fmt.Errorf("no column names: %w", ErrFormat)
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[name] = i
	}
	for _, c := range columns[:3] {
		if _, ok := index[c.Name]; !ok {
			return Meta{}, nil, fmt.Errorf("missing column %q: %w", c.Name, ErrFormat)
		}
	}

	rows := make([]models.ScheduleRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		row := models.ScheduleRow{RunID: meta.RunID, Seq: n}
		for _, c := range columns {
			i, ok := index[c.Name]
			if !ok || rec[i] == "" {
				continue
			}
			if err := c.set(&row, rec[i]); err != nil {
				return Meta{}, nil, fmt.Errorf("row %d column %s: %v: %w", n+1, c.Name, err, ErrFormat)
			}
		}
		rows = append(rows, row)
	}
	if meta.WindowStart.IsZero() && meta.WindowEnd.IsZero() {
		w := Window(rows)
		meta.WindowStart, meta.WindowEnd = w.Start, w.End
	}
	return meta, rows, nil
}
