package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"arena-server/internal/game"
)

func testSnapshot() game.WorldSnapshot {
	return game.WorldSnapshot{
		Players: []game.PlayerState{
			{ID: "a", X: 1000, Y: 1000, Attrs: map[string]any{"color": "#ff0000"}},
			{ID: "b", X: 100, Y: 100},
		},
		Projectiles: []game.Projectile{{X: 500, Y: 500, SpeedX: 1, OwnerID: "a"}},
		Bounds:      game.Bounds{Min: -10, MaxX: 2000, MaxY: 2000},
	}
}

func TestRenderDrawsPlayers(t *testing.T) {
	m := NewMinimap(MinimapConfig{Size: 201, HitRadius: 50})
	img := m.Render(testSnapshot())

	if img.Bounds().Dx() != 201 || img.Bounds().Dy() != 201 {
		t.Fatalf("Unexpected size %v", img.Bounds())
	}

	// Player a sits at (1010/2010)*201 ~= 101 px on both axes
	r, g, b, _ := img.At(101, 101).RGBA()
	if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("Expected red player pixel, got %v", color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255})
	}
}

func TestRenderReturnsIndependentImage(t *testing.T) {
	m := NewMinimap(MinimapConfig{Size: 64})
	first := m.Render(testSnapshot())
	before := first.At(32, 32)

	m.Render(game.WorldSnapshot{Bounds: game.Bounds{Min: -10, MaxX: 2000, MaxY: 2000}})
	if first.At(32, 32) != before {
		t.Error("Second render modified the first image")
	}
}

func TestWritePNG(t *testing.T) {
	m := NewMinimap(DefaultMinimapConfig())
	var buf bytes.Buffer
	if err := m.WritePNG(&buf, testSnapshot()); err != nil {
		t.Fatal(err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 512 {
		t.Errorf("Expected 512px image, got %d", img.Bounds().Dx())
	}

	want := m.Render(testSnapshot())
	for _, pt := range [][2]int{{0, 0}, {257, 257}, {30, 30}} {
		r1, g1, b1, a1 := img.At(pt[0], pt[1]).RGBA()
		r2, g2, b2, a2 := want.At(pt[0], pt[1]).RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
			t.Errorf("PNG pixel %v differs from Render", pt)
		}
	}
}

func TestRenderDegenerateBounds(t *testing.T) {
	m := NewMinimap(MinimapConfig{Size: 32})
	// Must not panic or divide by zero
	m.Render(game.WorldSnapshot{})
}

func TestPlayerColor(t *testing.T) {
	tests := []struct {
		name  string
		p     game.PlayerState
		want  color.RGBA
		exact bool
	}{
		{"hex attr", game.PlayerState{ID: "x", Attrs: map[string]any{"color": "#10ff20"}}, color.RGBA{0x10, 0xff, 0x20, 255}, true},
		{"bad attr falls back", game.PlayerState{ID: "x", Attrs: map[string]any{"color": "red"}}, color.RGBA{}, false},
		{"no attr", game.PlayerState{ID: "x"}, color.RGBA{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := playerColor(tt.p)
			if tt.exact && got != tt.want {
				t.Errorf("Got %v, want %v", got, tt.want)
			}
			if got.A != 255 {
				t.Errorf("Expected opaque color, got %v", got)
			}
			if !tt.exact && got != playerColor(game.PlayerState{ID: tt.p.ID}) {
				t.Error("Fallback color is not stable per id")
			}
		})
	}
}
