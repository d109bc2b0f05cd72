package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/models"
)

const sample = `
observers:
  - id: wgolay
    name: Will Golay
  - id: wgolay
    name: duplicate
projects:
  - id: variables
    name: Variable stars
    observer: wgolay
    requested: 4h
  - id: orphan
    observer: nobody
blocks:
  - id: m31
    name: M31 core
    project: variables
    priority: 3
    conditions:
      - "airmass(max=2)"
      - "moon(min_sep=30)"
    field:
      type: light
      exposure: 60s
      overhead: 5s
      repeat: 10
      configuration: "filter=r;binning=2x2"
      target: {name: M31, ra: 10.6847, dec: 41.2690}
  - name: evening darks
    field:
      type: dark
      exposure: 0s
      overhead: 2s
      repeat: 20
  - id: badcond
    field: {type: light, exposure: 10s, target: {ra: 0, dec: 0}}
    conditions: ["airmass(max=2"]
  - id: notarget
    field: {type: light, exposure: 10s}
  - id: m31
    field: {type: flat, exposure: 2s}
  - id: ghost
    project: missing
    field: {type: flat, exposure: 2s}
  - id: wrongdec
    field: {type: light, exposure: 10s, target: {ra: 0, dec: 95}}
`

func TestLoad(t *testing.T) {
	cat, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}

	if len(cat.Blocks) != 2 {
		t.Fatalf("blocks = %d, rejected = %v", len(cat.Blocks), cat.Rejected)
	}
	m31 := cat.Blocks[0]
	if m31.ID != "m31" || m31.ObserverID != "wgolay" || m31.BasePriority != 3 || m31.Kind != models.BlockSchedule {
		t.Errorf("m31 = %+v", m31)
	}
	if m31.Duration() != 650*time.Second {
		t.Errorf("duration = %s", m31.Duration())
	}
	if got := m31.Configuration().String(); got != "binning=2x2;filter=r" {
		t.Errorf("configuration = %q", got)
	}
	if _, ok := m31.Conditions[0].(*condition.Airmass); !ok || len(m31.Conditions) != 2 {
		t.Errorf("conditions = %v", condition.Strings(m31.Conditions))
	}

	darks := cat.Blocks[1]
	if darks.Kind != models.BlockCalibration || darks.ID == "" || darks.BasePriority != 1 {
		t.Errorf("darks = %+v", darks)
	}

	again, _ := Load(strings.NewReader(sample))
	if again.Blocks[1].ID != darks.ID {
		t.Error("generated id changed between loads")
	}

	want := map[string]bool{
		"observer/wgolay": true,
		"project/orphan":  true,
		"block/badcond":   true,
		"block/notarget":  true,
		"block/m31":       true,
		"block/ghost":     true,
		"block/wrongdec":  true,
	}
	if len(cat.Rejected) != len(want) {
		t.Errorf("rejected = %v", cat.Rejected)
	}
	for _, r := range cat.Rejected {
		if !want[r.Section+"/"+r.ID] {
			t.Errorf("unexpected rejection %v", r)
		}
	}

	if _, ok := cat.Directory.Project("variables"); !ok {
		t.Error("project missing from directory")
	}
	if _, ok := cat.Directory.Project("orphan"); ok {
		t.Error("orphan project accepted")
	}
}

func TestRejectionReasons(t *testing.T) {
	cat, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range cat.Rejected {
		switch r.ID {
		case "notarget":
			if !errors.Is(r.Err, ErrInvalidEntry) {
				t.Errorf("notarget: %v", r.Err)
			}
		case "ghost":
			if !errors.Is(r.Err, models.ErrNotFound) {
				t.Errorf("ghost: %v", r.Err)
			}
		case "wrongdec":
			if !errors.Is(r.Err, models.ErrInvalidBlock) {
				t.Errorf("wrongdec: %v", r.Err)
			}
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("blocks:\n  - id: f\n    field: {type: flat, exposure: 1s}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Blocks) != 1 || len(cat.Rejected) != 0 {
		t.Errorf("catalog = %+v", cat)
	}

	if _, err := Load(strings.NewReader("blocks: [")); err == nil {
		t.Error("expected decode error")
	}
	empty, err := Load(strings.NewReader(""))
	if err != nil || len(empty.Blocks) != 0 {
		t.Errorf("empty: %v %+v", err, empty)
	}
}

func TestMalformedEntriesRejectedIndividually(t *testing.T) {
	doc := `
observers:
  - id: ok
  - id: mail
    email: [not, a, string]
projects:
  - id: short
    requested: forever
blocks:
  - id: good
    priority: 2
    field: {type: light, exposure: 30s, target: {ra: 10, dec: 20}}
  - id: wordy
    priority: high
    field: {type: light, exposure: 30s, target: {ra: 10, dec: 20}}
  - id: vague
    field: {type: light, exposure: soon, target: {ra: 10, dec: 20}}
  - id: bare
    field: {type: light, exposure: 30, target: {ra: 10, dec: 20}}
  - id: typo
    priorty: 5
    field: {type: light, exposure: 30s, target: {ra: 10, dec: 20}}
  - id: nested
    field: {type: light, exposure: 30s, target: {ra: 10, decl: 20}}
`
	cat, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.Blocks) != 1 || cat.Blocks[0].ID != "good" || cat.Blocks[0].BasePriority != 2 {
		t.Fatalf("blocks = %v, rejected = %v", cat.Blocks, cat.Rejected)
	}
	if _, ok := cat.Directory.Observer("ok"); !ok {
		t.Error("valid observer dropped")
	}

	want := map[string]bool{
		"observer/mail": true,
		"project/short": true,
		"block/wordy":   true,
		"block/vague":   true,
		"block/bare":    true,
		"block/typo":    true,
		"block/nested":  true,
	}
	if len(cat.Rejected) != len(want) {
		t.Errorf("rejected = %v", cat.Rejected)
	}
	for _, r := range cat.Rejected {
		if !want[r.Section+"/"+r.ID] {
			t.Errorf("unexpected rejection %v", r)
		}
		if !errors.Is(r.Err, ErrInvalidEntry) {
			t.Errorf("%s: err = %v, want ErrInvalidEntry", r.ID, r.Err)
		}
	}
}

func TestUnknownTopLevelKey(t *testing.T) {
	if _, err := Load(strings.NewReader("blokcs: []\n")); err == nil {
		t.Error("expected error for unknown top-level key")
	}
}

func TestGroups(t *testing.T) {
	doc := `
groups: [first, second]
blocks:
  - id: loose
    field: {type: flat, exposure: 1s}
  - id: b2
    group: second
    field: {type: flat, exposure: 1s}
  - id: b1
    group: first
    field: {type: flat, exposure: 1s}
  - id: lost
    group: third
    field: {type: flat, exposure: 1s}
`
	cat, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, g := range cat.Groups {
		ids := make([]string, len(g.Blocks))
		for i, b := range g.Blocks {
			ids[i] = b.ID
		}
		got = append(got, g.Name+":"+strings.Join(ids, ","))
	}
	if want := []string{":loose", "first:b1", "second:b2"}; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("groups = %v, want %v", got, want)
	}
	if len(cat.Blocks) != 3 {
		t.Errorf("flattened blocks = %d, want 3", len(cat.Blocks))
	}
	if len(cat.Rejected) != 1 || cat.Rejected[0].ID != "lost" {
		t.Errorf("rejected = %v", cat.Rejected)
	}

	if _, err := Load(strings.NewReader("groups: [a, a]\n")); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("duplicate group: err = %v", err)
	}
}

func TestUngroupedCatalogHasOneGroup(t *testing.T) {
	cat, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Groups) != 1 || cat.Groups[0].Name != DefaultGroup || len(cat.Groups[0].Blocks) != len(cat.Blocks) {
		t.Errorf("groups = %+v", cat.Groups)
	}
}
