package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite || cfg.DBDSN != "telrun.db" {
		t.Errorf("db = %s %q", cfg.DBBackend, cfg.DBDSN)
	}
	l := cfg.Limits()
	if l.MaxSunAltitude != -12 || l.MinElevation != 30 || l.MaxAirmass != 3 || l.MinMoonSeparation != 30 {
		t.Errorf("limits = %+v", l)
	}
	if cfg.Resolution != 5*time.Second || cfg.GapTime != time.Minute {
		t.Errorf("resolution %s gap %s", cfg.Resolution, cfg.GapTime)
	}
	if cfg.LogFormatOrDefault() != "console" {
		t.Errorf("format = %s", cfg.LogFormatOrDefault())
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("TELRUN_ENV", "production")
	t.Setenv("TELRUN_MAX_AIRMASS", "2.5")
	t.Setenv("TELRUN_RESOLUTION", "10")
	t.Setenv("TELRUN_GAP_TIME", "90s")
	t.Setenv("TELRUN_EVENT_BUS", "nats")
	t.Setenv("TELRUN_S3_USE_PATH_STYLE", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxAirmass != 2.5 || cfg.Resolution != 10*time.Second || cfg.GapTime != 90*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.EventBus != EventBusNATS || !cfg.S3UsePathStyle {
		t.Errorf("bus %s path style %v", cfg.EventBus, cfg.S3UsePathStyle)
	}
	if cfg.LogFormatOrDefault() != "json" {
		t.Errorf("format = %s", cfg.LogFormatOrDefault())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"TELRUN_DB_BACKEND":       "oracle",
		"TELRUN_EVENT_BUS":        "kafka",
		"TELRUN_MAX_AIRMASS":      "0.5",
		"TELRUN_MIN_ELEVATION":    "95",
		"TELRUN_RESOLUTION":       "-5s",
		"TELRUN_MAX_SUN_ALTITUDE": "-100",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s accepted", key, value)
			}
		})
	}

	t.Run("cache without ttl", func(t *testing.T) {
		t.Setenv("TELRUN_CACHE_ENABLED", "true")
		t.Setenv("TELRUN_CACHE_TTL", "0")
		if _, err := Load(); err == nil {
			t.Error("expected cache ttl error")
		}
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("TELRUN_DB_BACKEND", "postgres")
		if _, err := Load(); err == nil {
			t.Error("expected missing DSN error")
		}
	})
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("TELRUN_EXECUTE", "/srv/telrun/execute")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OutputDir != "/srv/telrun/execute" {
		t.Errorf("output dir = %q", cfg.OutputDir)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

const observatoryYAML = `
site:
  name: Winer Observatory
  longitude: -110.6
  latitude: 31.66
  elevation: 1515
  timezone: America/Phoenix
slew_rate: 2
settle_time: 5s
instrument_reconfiguration_times:
  filter:
    default: 30s
    pairs:
      "r->g": 20s
  binning:
    default: 2s
`

func TestLoadObservatory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observatory.yaml")
	if err := os.WriteFile(path, []byte(observatoryYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	obs, err := LoadObservatory(path)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Site.Name != "Winer Observatory" || obs.Site.Latitude != 31.66 || obs.SlewRate != 2 || obs.Settle != 5*time.Second {
		t.Errorf("obs = %+v", obs)
	}

	model := obs.CostModel(time.Minute)
	from := models.NewConfiguration(models.Option{Key: "filter", Value: "r"}, models.Option{Key: "binning", Value: "1x1"})
	to := models.NewConfiguration(models.Option{Key: "filter", Value: "g"}, models.Option{Key: "binning", Value: "2x2"})
	a, b := &astro.Target{RA: 0, Dec: 0}, &astro.Target{RA: 20, Dec: 0}

	cost := model.Cost(from, to, a, b, time.Time{})
	if cost.Reconfigure != 22*time.Second {
		t.Errorf("reconfigure = %s, want 22s", cost.Reconfigure)
	}
	// 10s slew + 5s settle + 22s reconfiguration fits under the cap.
	if cost.Total() != 37*time.Second {
		t.Errorf("total = %s, want 37s", cost.Total())
	}
}

func TestParseObservatoryRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"latitude", "site: {latitude: 91}"},
		{"timezone", "site: {timezone: Mars/Olympus}"},
		{"slew", "slew_rate: -1"},
		{"pair key", "instrument_reconfiguration_times: {filter: {pairs: {rg: 5s}}}"},
		{"unknown field", "slew_speed: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseObservatory(strings.NewReader(tt.doc)); !errors.Is(err, ErrInvalidObservatory) {
				t.Errorf("err = %v, want ErrInvalidObservatory", err)
			}
		})
	}
}
