package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/models"
)

var base = time.Date(2024, 10, 2, 2, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func light(id, project string, minutes int) *models.Block {
	b := models.NewBlock(id, models.BlockSchedule, &models.LightField{
		Exposure: models.Exposure{Duration: time.Minute, Repeat: minutes},
		Pointing: astro.Target{Name: id},
	}, 1)
	b.ProjectID = project
	return b
}

func TestSummarize(t *testing.T) {
	s := models.NewSchedule("run-1", models.Window{Start: at(0), End: at(100)})
	mustAppend := func(b *models.Block, start, end int) {
		t.Helper()
		if err := s.Append(b, at(start), at(end)); err != nil {
			t.Fatal(err)
		}
	}
	mustAppend(light("a", "p1", 30), 0, 30)
	mustAppend(models.NewTransition("run-1/transition-000", &models.TransitionField{Slew: 10 * time.Minute}, at(30)), 30, 40)
	mustAppend(light("b", "p2", 20), 40, 60)
	mustAppend(light("c", "p1", 20), 70, 90) // gap 60-70 inserted by Append
	s.Fill()

	dir := models.NewDirectory()
	if err := dir.AddObserver(&models.Observer{ID: "o"}); err != nil {
		t.Fatal(err)
	}
	if err := dir.AddProject(&models.Project{ID: "p1", Name: "Variables", ObserverID: "o", Requested: 2 * time.Hour}); err != nil {
		t.Fatal(err)
	}

	got := Summarize(s, dir)
	if got.Counts[models.BlockSchedule] != 3 || got.Counts[models.BlockTransition] != 1 || got.Counts[models.BlockUnallocated] != 2 {
		t.Errorf("counts = %v", got.Counts)
	}
	if got.Observing != 70*time.Minute || got.Transition != 10*time.Minute || got.Idle != 20*time.Minute {
		t.Errorf("observing %s transition %s idle %s", got.Observing, got.Transition, got.Idle)
	}
	if math.Abs(got.IdleFraction-0.2) > 1e-9 || math.Abs(got.Utilization-0.7) > 1e-9 || math.Abs(got.TransitionOverhead-0.125) > 1e-9 {
		t.Errorf("fractions idle=%v util=%v overhead=%v", got.IdleFraction, got.Utilization, got.TransitionOverhead)
	}
	if len(got.Projects) != 2 {
		t.Fatalf("projects = %+v", got.Projects)
	}
	p1 := got.Projects[0]
	if p1.ProjectID != "p1" || p1.Blocks != 2 || p1.Allocated != 50*time.Minute || p1.Name != "Variables" || p1.Requested != 2*time.Hour {
		t.Errorf("p1 = %+v", p1)
	}
	if got.Projects[1].ProjectID != "p2" || got.Projects[1].Name != "" {
		t.Errorf("p2 = %+v", got.Projects[1])
	}
}

func TestSummarizeRowsEmptyNight(t *testing.T) {
	w := models.Window{Start: at(0), End: at(60)}
	rows := []models.ScheduleRow{{Kind: models.BlockUnallocated, Start: at(0), End: at(60)}}

	got := SummarizeRows("run-2", w, rows)
	if got.IdleFraction != 1 || got.Utilization != 0 || got.TransitionOverhead != 0 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Projects) != 0 {
		t.Errorf("projects = %+v", got.Projects)
	}
}
