package game

import (
	"reflect"
	"testing"
)

func TestRegistryJoinLastWins(t *testing.T) {
	r := NewRegistry()
	r.Join("a", PlayerState{X: 1, Y: 2, Attrs: map[string]any{"skin": "red"}})
	r.Join("a", PlayerState{X: 3, Y: 4})

	if r.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", r.Len())
	}
	p, _ := r.Get("a")
	if p.X != 3 || p.Y != 4 || p.Attrs != nil {
		t.Errorf("Expected second join to win, got %+v", p)
	}
	if p.ID != "a" {
		t.Errorf("Expected id to be forced to a, got %q", p.ID)
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Join("a", PlayerState{})

	if !r.Remove("a") {
		t.Error("First remove should report true")
	}
	if r.Remove("a") {
		t.Error("Second remove should report false")
	}
	if r.Has("a") || r.Len() != 0 {
		t.Error("Registry should be empty")
	}
}

func TestRegistryUpdateUnknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.UpdatePosition("ghost", 1, 2, 3); ok {
		t.Error("Update for unknown id should report false")
	}
	if r.Len() != 0 {
		t.Error("Update must not create an entry")
	}
}

func TestRegistrySortedOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"m", "c", "x", "a"} {
		r.Join(id, PlayerState{})
	}
	r.Remove("x")
	r.Join("b", PlayerState{})

	want := []string{"a", "b", "c", "m"}
	if got := r.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	var seen []string
	for _, p := range r.list() {
		seen = append(seen, p.ID)
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("list() order = %v, want %v", seen, want)
	}
}

func TestRegistrySnapshotImmutable(t *testing.T) {
	r := NewRegistry()
	r.Join("a", PlayerState{X: 1})

	snap := r.Snapshot()
	r.UpdatePosition("a", 50, 60, 1)
	r.Join("b", PlayerState{})

	if len(snap) != 1 {
		t.Errorf("Snapshot grew to %d entries", len(snap))
	}
	if snap["a"].X != 1 {
		t.Errorf("Snapshot changed after update: %+v", snap["a"])
	}
}

func TestJoinCopiesAttrs(t *testing.T) {
	attrs := map[string]any{"name": "ann"}
	r := NewRegistry()
	r.Join("a", PlayerState{Attrs: attrs})
	attrs["name"] = "bob"

	p, _ := r.Get("a")
	if p.Attrs["name"] != "ann" {
		t.Errorf("Registry shares caller's attrs map: %v", p.Attrs)
	}
}

func TestPlayerFieldsOverrideAttrs(t *testing.T) {
	p := PlayerState{
		ID: "a", X: 10, Y: 20, Angle: 0.5,
		Attrs: map[string]any{"x": "spoofed", "color": "blue"},
	}
	f := p.Fields()
	if f["x"] != 10.0 || f["y"] != 20.0 || f["angle"] != 0.5 {
		t.Errorf("Authoritative fields not applied: %v", f)
	}
	if f["color"] != "blue" {
		t.Errorf("Extra attrs lost: %v", f)
	}
}
