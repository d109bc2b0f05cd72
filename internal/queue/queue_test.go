package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/telrun/internal/astro"
	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/models"
)

var night = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

func block(id string, priority float64, conds ...condition.Condition) *models.Block {
	field := &models.LightField{
		Exposure: models.Exposure{Duration: 10 * time.Minute, Repeat: 1},
		Pointing: astro.Target{Name: id, RA: 100, Dec: 20},
	}
	return models.NewBlock(id, models.BlockSchedule, field, priority, conds...)
}

func ids(blocks []*models.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddRejectsDuplicatesAndInvalid(t *testing.T) {
	q := New()
	if err := q.Add(block("a", 1)); err != nil {
		t.Fatal(err)
	}
	if err := q.Add(block("a", 2)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate error = %v, want ErrDuplicateID", err)
	}
	bad := block("b", 1)
	bad.Field = nil
	if err := q.Add(bad); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("invalid error = %v, want ErrInvalidBlock", err)
	}
	if err := q.Add(nil); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("nil error = %v, want ErrInvalidBlock", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestAddAllRejectsIndividually(t *testing.T) {
	q := New()
	bad := block("bad", -3)
	rejected := q.AddAll([]*models.Block{block("a", 1), bad, block("a", 1), block("c", 1)})

	if len(rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2", rejected)
	}
	if rejected[0].Index != 1 || rejected[0].BlockID != "bad" {
		t.Errorf("first rejection = %+v", rejected[0])
	}
	if !errors.Is(rejected[1].Err, ErrDuplicateID) {
		t.Errorf("second rejection = %v", rejected[1].Err)
	}
	if got := ids(q.All()); !equal(got, []string{"a", "c"}) {
		t.Errorf("All() = %v", got)
	}
}

func TestRemoveIsNoOpSafe(t *testing.T) {
	q := New()
	_ = q.Add(block("a", 1))
	q.Remove("missing")
	q.Remove("a")
	q.Remove("a")
	if q.Len() != 0 {
		t.Errorf("Len() = %d", q.Len())
	}
	if _, ok := q.Get("a"); ok {
		t.Error("removed block still present")
	}
}

func TestSnapshotOrdering(t *testing.T) {
	q := New()
	early := &condition.Time{Start: night.Add(time.Hour)}
	later := &condition.Time{Start: night.Add(2 * time.Hour)}

	blocks := []*models.Block{
		block("low", 1),
		block("tie-late", 5, later),
		block("tie-open-1", 5),
		block("tie-early", 5, early),
		block("high", 9),
		block("tie-open-2", 5),
		block("done", 100),
	}
	if rejected := q.AddAll(blocks); len(rejected) != 0 {
		t.Fatalf("rejected: %+v", rejected)
	}
	_ = blocks[6].MarkRejected("test")

	want := []string{"high", "tie-open-1", "tie-open-2", "tie-early", "tie-late", "low"}
	for i := 0; i < 3; i++ {
		if got := ids(q.Snapshot(ByPriority)); !equal(got, want) {
			t.Fatalf("Snapshot() = %v, want %v", got, want)
		}
	}

	inverse := func(b *models.Block) float64 { return -b.Priority }
	if got := ids(q.Snapshot(inverse)); got[0] != "low" {
		t.Errorf("custom rank first = %s, want low", got[0])
	}
}

func TestCheckIntegrity(t *testing.T) {
	q := New()
	b := block("a", 1)
	_ = q.Add(b)
	if err := q.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity() = %v", err)
	}
	b.ID = "renamed"
	if err := q.CheckIntegrity(); !errors.Is(err, ErrIntegrity) {
		t.Errorf("CheckIntegrity() = %v, want ErrIntegrity", err)
	}
}
