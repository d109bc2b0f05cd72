/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/telrun/internal/telemetry"
)

const (
	_startTime = "gorm:start_time"
)

// RegisterCallbacks times every CRUD operation and counts failures.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []func() error{
		func() error {
			return cb.Query().Before("gorm:query").Register("telemetry:before_query", beforeCallback)
		},
		func() error {
			return cb.Query().After("gorm:query").Register("telemetry:after_query", afterCallback("query"))
		},
		func() error {
			return cb.Create().Before("gorm:create").Register("telemetry:before_create", beforeCallback)
		},
		func() error {
			return cb.Create().After("gorm:create").Register("telemetry:after_create", afterCallback("create"))
		},
		func() error {
			return cb.Update().Before("gorm:update").Register("telemetry:before_update", beforeCallback)
		},
		func() error {
			return cb.Update().After("gorm:update").Register("telemetry:after_update", afterCallback("update"))
		},
		func() error {
			return cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", beforeCallback)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Register("telemetry:after_delete", afterCallback("delete"))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// beforeCallback records the start time before a database operation.
func beforeCallback(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

// afterCallback creates a callback that records metrics after a database operation.
func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		startTimeValue, exists := db.InstanceGet(_startTime)
		if !exists {
			return
		}

		startTime, ok := startTimeValue.(time.Time)
		if !ok {
			return
		}

		duration := time.Since(startTime).Seconds()

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		telemetry.DatabaseQueryDuration.WithLabelValues(operation, tableName).Observe(duration)

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, tableName).Inc()
		}
	}
}

// UpdateConnectionMetrics samples the pool size; the server calls it on a ticker.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsOpen.Set(float64(stats.OpenConnections))
}
