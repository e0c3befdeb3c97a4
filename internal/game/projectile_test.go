package game

import (
	"errors"
	"math/rand"
	"testing"
)

var testBounds = Bounds{Min: -10, MaxX: 2000, MaxY: 2000}

// TestBoundsContains checks both edges are inclusive
func TestBoundsContains(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"origin", 0, 0, true},
		{"lower edge", -10, -10, true},
		{"upper edge", 2000, 2000, true},
		{"below x", -10.01, 5, false},
		{"above y", 5, 2000.5, false},
		{"above x", 2005, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testBounds.Contains(tt.x, tt.y); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

// TestSnapshotAfterSpawn verifies the spawned values come back unchanged
func TestSnapshotAfterSpawn(t *testing.T) {
	s := NewProjectileStore(0)
	if err := s.Spawn("a", 12.5, -3.25, 7.75, -0.5); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 projectile, got %d", len(snap))
	}
	want := Projectile{X: 12.5, Y: -3.25, SpeedX: 7.75, SpeedY: -0.5, OwnerID: "a"}
	if snap[0] != want {
		t.Errorf("Expected %+v, got %+v", want, snap[0])
	}

	// Snapshot must be independent of the store
	snap[0].X = 999
	if s.Snapshot()[0].X != 12.5 {
		t.Error("Mutating a snapshot changed the store")
	}
}

// TestCullAtUpperBound covers the 1995 -> 2005 case
func TestCullAtUpperBound(t *testing.T) {
	s := NewProjectileStore(0)
	_ = s.Spawn("a", 1995, 100, 10, 0)
	_ = s.Spawn("a", 1990, 100, 10, 0) // lands exactly on 2000

	removed := s.AdvanceAndCull(testBounds)
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].X != 2000 {
		t.Errorf("Expected single survivor at x=2000, got %+v", snap)
	}
}

// TestCullConsecutive removes three adjacent projectiles without skipping
func TestCullConsecutive(t *testing.T) {
	s := NewProjectileStore(0)
	_ = s.Spawn("keep1", 100, 100, 1, 0)
	_ = s.Spawn("out1", 1999, 100, 5, 0)
	_ = s.Spawn("out2", 1999, 100, 5, 0)
	_ = s.Spawn("out3", -9, 100, -5, 0)
	_ = s.Spawn("keep2", 200, 200, 0, 1)

	removed := s.AdvanceAndCull(testBounds)
	if removed != 3 {
		t.Fatalf("Expected 3 removed, got %d", removed)
	}

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 survivors, got %d", len(snap))
	}
	if snap[0].OwnerID != "keep1" || snap[0].X != 101 {
		t.Errorf("First survivor wrong: %+v", snap[0])
	}
	if snap[1].OwnerID != "keep2" || snap[1].Y != 201 {
		t.Errorf("Second survivor wrong: %+v", snap[1])
	}
}

// TestAdvanceAndCullRandomized checks N-K survivors, each advanced exactly once
func TestAdvanceAndCullRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		s := NewProjectileStore(0)
		n := rng.Intn(60)
		var expected []Projectile

		for i := 0; i < n; i++ {
			// Start near edges half the time so removals cluster
			x := rng.Float64() * 2000
			y := rng.Float64() * 2000
			if rng.Intn(2) == 0 {
				x = 1990 + rng.Float64()*10
			}
			sx := rng.Float64()*40 - 20
			sy := rng.Float64()*40 - 20
			_ = s.Spawn("p", x, y, sx, sy)

			next := Projectile{X: x + sx, Y: y + sy, SpeedX: sx, SpeedY: sy, OwnerID: "p"}
			if testBounds.Contains(next.X, next.Y) {
				expected = append(expected, next)
			}
		}

		removed := s.AdvanceAndCull(testBounds)
		if removed != n-len(expected) {
			t.Fatalf("round %d: removed %d, want %d", round, removed, n-len(expected))
		}

		got := s.Snapshot()
		if len(got) != len(expected) {
			t.Fatalf("round %d: %d survivors, want %d", round, len(got), len(expected))
		}
		for i := range got {
			if got[i] != expected[i] {
				t.Fatalf("round %d: survivor %d = %+v, want %+v", round, i, got[i], expected[i])
			}
		}
	}
}

// TestAdvanceEmptyStore must not fault
func TestAdvanceEmptyStore(t *testing.T) {
	s := NewProjectileStore(0)
	if removed := s.AdvanceAndCull(testBounds); removed != 0 {
		t.Errorf("Expected 0 removed, got %d", removed)
	}
	if snap := s.Snapshot(); snap == nil || len(snap) != 0 {
		t.Errorf("Expected empty non-nil snapshot, got %#v", snap)
	}
}

// TestProjectileLimit verifies the store cap
func TestProjectileLimit(t *testing.T) {
	s := NewProjectileStore(2)
	if err := s.Spawn("a", 0, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Spawn("a", 0, 0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Spawn("a", 0, 0, 1, 1); !errors.Is(err, ErrProjectileLimit) {
		t.Errorf("Expected ErrProjectileLimit, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 projectiles, got %d", s.Len())
	}
}
