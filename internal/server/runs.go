/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/telrun/internal/analytics"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/schedule"
	"github.com/friendsincode/telrun/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 500 {
		limit = 500
	}
	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("site"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list runs failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	if runs == nil {
		runs = []models.ScheduleRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	run, rows, ok := s.loadRunRows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := schedule.WriteJSON(w, schedule.MetaFor(run), rows); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("write rows failed")
	}
}

// handleECSV serves the exported file, regenerating it from rows when the
// object store has no copy.
func (s *Server) handleECSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	var data []byte
	if s.objects != nil && run.ObjectKey != "" {
		b, err := s.objects.Get(r.Context(), run.ObjectKey)
		switch {
		case err == nil:
			data = b
		case errors.Is(err, storage.ErrNotFound):
			s.logger.Warn().Str("run_id", run.ID).Str("key", run.ObjectKey).Msg("exported schedule missing, regenerating")
		default:
			s.logger.Error().Err(err).Str("run_id", run.ID).Msg("object store read failed, regenerating")
		}
	}

	rows, err := s.store.LoadRows(r.Context(), run.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("load rows failed")
		writeError(w, http.StatusInternalServerError, "load_failed")
		return
	}
	if data == nil {
		var buf bytes.Buffer
		if err := schedule.WriteECSV(&buf, schedule.MetaFor(run), rows); err != nil {
			writeError(w, http.StatusInternalServerError, "encode_failed")
			return
		}
		data = buf.Bytes()
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+schedule.Filename(rows)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if sum, ok := s.cache.GetSummary(r.Context(), chi.URLParam(r, "id")); ok {
		writeJSON(w, http.StatusOK, sum)
		return
	}
	run, rows, ok := s.loadRunRows(w, r)
	if !ok {
		return
	}
	sum := analytics.SummarizeRows(run.ID, schedule.MetaFor(run).Window(), rows)
	if err := s.cache.SetSummary(r.Context(), sum); err != nil {
		s.logger.Debug().Err(err).Str("run_id", run.ID).Msg("cache summary failed")
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if result, ok := s.cache.GetValidation(r.Context(), chi.URLParam(r, "id")); ok {
		writeJSON(w, http.StatusOK, result)
		return
	}
	run, rows, ok := s.loadRunRows(w, r)
	if !ok {
		return
	}
	result := s.validator.ValidateRows(schedule.MetaFor(run).Window(), rows)
	if err := s.cache.SetValidation(r.Context(), run.ID, result); err != nil {
		s.logger.Debug().Err(err).Str("run_id", run.ID).Msg("cache validation failed")
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*models.ScheduleRun, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, schedule.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found")
		return nil, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", id).Msg("get run failed")
		writeError(w, http.StatusInternalServerError, "load_failed")
		return nil, false
	}
	return run, true
}

func (s *Server) loadRunRows(w http.ResponseWriter, r *http.Request) (*models.ScheduleRun, []models.ScheduleRow, bool) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return nil, nil, false
	}
	rows, err := s.store.LoadRows(r.Context(), run.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("load rows failed")
		writeError(w, http.StatusInternalServerError, "load_failed")
		return nil, nil, false
	}
	return run, rows, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
