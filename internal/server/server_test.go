package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/telrun/internal/config"
	"github.com/friendsincode/telrun/internal/db"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/schedule"
	"github.com/friendsincode/telrun/internal/scheduling"
	"github.com/friendsincode/telrun/internal/storage"
)

const runID = "5f0c7a5e-2b1a-5c8e-9d51-6a4b0f7a3e21"

var t0 = time.Date(2024, 10, 2, 2, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, objects storage.ObjectStore) (*Server, *models.ScheduleRun) {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	run := &models.ScheduleRun{
		ID:          runID,
		Site:        "Winer",
		WindowStart: t0,
		WindowEnd:   t0.Add(2 * time.Hour),
		State:       models.RunCompleted,
		Placed:      1,
		CreatedAt:   t0,
	}
	rows := []models.ScheduleRow{
		{Kind: models.BlockSchedule, BlockID: "m31", Name: "M31", ProjectID: "p1", Start: t0, End: t0.Add(time.Hour), Field: models.FieldLight, Target: "M31", RA: 10.68, Dec: 41.27, Exposure: 60, Repeat: 50, Priority: 1},
		{Kind: models.BlockUnallocated, BlockID: runID + "/unallocated-001", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
	}
	if err := schedule.NewStore(database, zerolog.Nop()).SaveRun(context.Background(), run, rows); err != nil {
		t.Fatal(err)
	}

	srv := New(&config.Config{HTTPBind: "127.0.0.1", HTTPPort: 0}, database, objects, zerolog.Nop())
	t.Cleanup(func() { _ = srv.Close() })
	return srv, run
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := get(t, srv, "/healthz")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body)
	}
	if rr := get(t, srv, "/metrics"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "telrun_api_requests_total") {
		t.Errorf("metrics = %d", rr.Code)
	}
}

func TestListAndGetRun(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := get(t, srv, "/api/v1/runs?site=Winer")
	var list struct {
		Runs []models.ScheduleRun `json:"runs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != runID {
		t.Fatalf("runs = %+v", list.Runs)
	}

	rr = get(t, srv, "/api/v1/runs?site=elsewhere")
	if !strings.Contains(rr.Body.String(), `"runs":[]`) {
		t.Errorf("filtered list = %s", rr.Body)
	}

	rr = get(t, srv, "/api/v1/runs/"+runID)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"site":"Winer"`) {
		t.Errorf("get = %d %s", rr.Code, rr.Body)
	}

	if rr := get(t, srv, "/api/v1/runs/missing"); rr.Code != http.StatusNotFound {
		t.Errorf("missing run = %d", rr.Code)
	}
}

func TestRowsDocument(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := get(t, srv, "/api/v1/runs/"+runID+"/rows")
	var doc schedule.Document
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Meta.RunID != runID || len(doc.Rows) != 2 || doc.Rows[0].BlockID != "m31" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestECSVRegeneratedWithoutObjectStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := get(t, srv, "/api/v1/runs/"+runID+"/ecsv")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "telrun_2024-10-02T02:00:00.000.ecsv") {
		t.Errorf("disposition = %q", cd)
	}
	meta, rows, err := schedule.ReadECSV(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	if meta.RunID != runID || len(rows) != 2 {
		t.Errorf("meta %+v rows %d", meta, len(rows))
	}
}

func TestECSVServedFromObjectStore(t *testing.T) {
	objects := storage.NewFSStore(t.TempDir(), zerolog.Nop())
	srv, run := newTestServer(t, objects)

	key := "winer/" + runID + "/telrun_2024-10-02T02:00:00.000.ecsv"
	if err := objects.Put(context.Background(), key, []byte("# %ECSV 1.0\nstored copy\n")); err != nil {
		t.Fatal(err)
	}
	run.ObjectKey = key
	if err := srv.db.Save(run).Error; err != nil {
		t.Fatal(err)
	}

	rr := get(t, srv, "/api/v1/runs/"+runID+"/ecsv")
	if !strings.Contains(rr.Body.String(), "stored copy") {
		t.Errorf("body = %q", rr.Body)
	}

	run.ObjectKey = "winer/gone.ecsv"
	if err := srv.db.Save(run).Error; err != nil {
		t.Fatal(err)
	}
	rr = get(t, srv, "/api/v1/runs/"+runID+"/ecsv")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "m31") {
		t.Errorf("fallback = %d %q", rr.Code, rr.Body)
	}
}

func TestSummaryAndValidate(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := get(t, srv, "/api/v1/runs/"+runID+"/summary")
	var summary struct {
		IdleFraction float64 `json:"idle_fraction"`
		Projects     []struct {
			ProjectID string `json:"project_id"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.IdleFraction != 0.5 || len(summary.Projects) != 1 || summary.Projects[0].ProjectID != "p1" {
		t.Errorf("summary = %s", rr.Body)
	}

	rr = get(t, srv, "/api/v1/runs/"+runID+"/validate")
	var result scheduling.ValidationResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("errors = %+v", result.Errors)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}
