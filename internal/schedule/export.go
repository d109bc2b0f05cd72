/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/telrun/internal/events"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/scheduler"
	"github.com/friendsincode/telrun/internal/storage"
	"github.com/friendsincode/telrun/internal/telemetry"
)

// ErrNothingToExport indicates an exporter with no destinations.
var ErrNothingToExport = errors.New("no export destination configured")

// NewRun summarizes a scheduler result as a persistable run.
func NewRun(site string, res *scheduler.Result) *models.ScheduleRun {
	run := &models.ScheduleRun{
		ID:          res.RunID,
		Site:        site,
		WindowStart: res.Schedule.Window.Start.UTC(),
		WindowEnd:   res.Schedule.Window.End.UTC(),
		State:       models.RunCompleted,
		Placed:      len(res.Placed),
		Rejected:    len(res.Rejected),
		Expired:     len(res.Expired),
		CreatedAt:   time.Now().UTC(),
	}
	if res.Abort != nil {
		run.State = models.RunAborted
		run.AbortBlock = res.Abort.BlockID
		run.AbortReason = res.Abort.Error()
	}
	return run
}

// MetaFor returns the ECSV metadata of a run.
func MetaFor(run *models.ScheduleRun) Meta {
	return Meta{
		RunID:       run.ID,
		Site:        run.Site,
		WindowStart: run.WindowStart,
		WindowEnd:   run.WindowEnd,
		State:       string(run.State),
	}
}

// ObjectKey is where a run's ECSV lives in the object store.
func ObjectKey(run *models.ScheduleRun, rows []models.ScheduleRow) string {
	site := slugify(run.Site)
	if site == "" {
		site = "default"
	}
	return path.Join(site, run.ID, Filename(rows))
}

// Exporter uploads finished schedules and records them in the store. Either
// destination may be nil.
type Exporter struct {
	store     *Store
	objects   storage.ObjectStore
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewExporter creates an exporter.
func NewExporter(store *Store, objects storage.ObjectStore, logger zerolog.Logger) *Exporter {
	return &Exporter{
		store:     store,
		objects:   objects,
		publisher: events.Discard{},
		logger:    logger.With().Str("component", "schedule_export").Logger(),
	}
}

// SetPublisher sets the sink for export events.
func (e *Exporter) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.Discard{}
	}
	e.publisher = p
}

// Export writes the schedule to the object store, then the database.
func (e *Exporter) Export(ctx context.Context, run *models.ScheduleRun, s *models.Schedule) error {
	if e.store == nil && e.objects == nil {
		return ErrNothingToExport
	}
	ctx, span := telemetry.StartSpan(ctx, "schedule", "schedule.Export")
	defer span.End()

	rows := Rows(s)
	if e.objects != nil {
		var buf bytes.Buffer
		if err := WriteECSV(&buf, MetaFor(run), rows); err != nil {
			return fmt.Errorf("encode ecsv: %w", err)
		}
		key := ObjectKey(run, rows)
		if err := e.objects.Put(ctx, key, buf.Bytes()); err != nil {
			telemetry.ExportsTotal.WithLabelValues("object_store", "error").Inc()
			telemetry.RecordError(span, err)
			return fmt.Errorf("upload %s: %w", key, err)
		}
		telemetry.ExportsTotal.WithLabelValues("object_store", "ok").Inc()
		run.ObjectKey = key
	}

	if e.store != nil {
		if err := e.store.SaveRun(ctx, run, rows); err != nil {
			telemetry.ExportsTotal.WithLabelValues("database", "error").Inc()
			telemetry.RecordError(span, err)
			return err
		}
		telemetry.ExportsTotal.WithLabelValues("database", "ok").Inc()
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"run_id":     run.ID,
		"rows":       len(rows),
		"object_key": run.ObjectKey,
	})
	e.logger.Info().
		Str("run_id", run.ID).
		Str("object_key", run.ObjectKey).
		Int("rows", len(rows)).
		Msg("schedule exported")
	e.publisher.Publish(events.EventExported, events.Payload{
		"run_id":     run.ID,
		"site":       run.Site,
		"object_key": run.ObjectKey,
		"rows":       len(rows),
	})
	return nil
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
