/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/telrun/internal/models"
)

// ErrRunNotFound indicates an unknown run ID.
var ErrRunNotFound = errors.New("schedule run not found")

// Store persists runs and their rows.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a run store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "schedule_store").Logger(),
	}
}

// SaveRun writes a run and replaces its rows. Re-saving a run ID is
// idempotent.
func (s *Store) SaveRun(ctx context.Context, run *models.ScheduleRun, rows []models.ScheduleRow) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&models.ScheduleRow{}).Error; err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		batch := make([]models.ScheduleRow, len(rows))
		for i, r := range rows {
			r.ID = 0
			r.RunID = run.ID
			r.Seq = i
			batch[i] = r
		}
		if err := tx.CreateInBatches(batch, 200).Error; err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Str("run_id", run.ID).Int("rows", len(rows)).Msg("run saved")
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (*models.ScheduleRun, error) {
	var run models.ScheduleRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs by window start. A site filters
// when non-empty; limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, site string, limit int) ([]models.ScheduleRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("window_start DESC").Order("created_at DESC").Limit(limit)
	if site != "" {
		q = q.Where("site = ?", site)
	}
	var runs []models.ScheduleRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LoadRows returns a run's rows in schedule order.
func (s *Store) LoadRows(ctx context.Context, runID string) ([]models.ScheduleRow, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	var rows []models.ScheduleRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
