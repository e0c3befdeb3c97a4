// Package render draws a top-down minimap of the world for the debug
// endpoint. It never touches live state: it only reads WorldSnapshot values.
package render

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/fogleman/gg"

	"arena-server/internal/game"
)

// MinimapConfig sizes the output image.
type MinimapConfig struct {
	Size      int     // Output is Size x Size pixels
	HitRadius float64 // World units; drawn around each player
}

// DefaultMinimapConfig returns a 512px minimap with the default hit radius.
func DefaultMinimapConfig() MinimapConfig {
	return MinimapConfig{Size: 512, HitRadius: 50}
}

// Minimap renders world snapshots. The drawing context is reused between
// calls, so Render is serialized.
type Minimap struct {
	mu  sync.Mutex
	cfg MinimapConfig
	dc  *gg.Context
}

// NewMinimap creates a renderer.
func NewMinimap(cfg MinimapConfig) *Minimap {
	if cfg.Size <= 0 {
		cfg.Size = DefaultMinimapConfig().Size
	}
	return &Minimap{
		cfg: cfg,
		dc:  gg.NewContext(cfg.Size, cfg.Size),
	}
}

// Render draws snap and returns a copy of the image.
func (m *Minimap) Render(snap game.WorldSnapshot) image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.draw(snap)
	src := m.dc.Image().(*image.RGBA)
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	return out
}

// WritePNG renders snap as PNG into w. Encoding runs on a copy, so a slow
// writer does not hold up other renders.
func (m *Minimap) WritePNG(w io.Writer, snap game.WorldSnapshot) error {
	if err := png.Encode(w, m.Render(snap)); err != nil {
		return fmt.Errorf("encode minimap: %w", err)
	}
	return nil
}

func (m *Minimap) draw(snap game.WorldSnapshot) {
	dc := m.dc
	size := float64(m.cfg.Size)

	// Background
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, size, size)
	dc.Fill()

	b := snap.Bounds
	spanX := b.MaxX - b.Min
	spanY := b.MaxY - b.Min
	if spanX <= 0 || spanY <= 0 {
		return
	}
	sx := size / spanX
	sy := size / spanY
	toPx := func(x, y float64) (float64, float64) {
		return (x - b.Min) * sx, (y - b.Min) * sy
	}

	// Grid every 250 world units
	dc.SetColor(color.RGBA{40, 40, 60, 255})
	dc.SetLineWidth(1)
	for v := 0.0; v <= b.MaxX; v += 250 {
		px, _ := toPx(v, 0)
		dc.DrawLine(px, 0, px, size)
		dc.Stroke()
	}
	for v := 0.0; v <= b.MaxY; v += 250 {
		_, py := toPx(0, v)
		dc.DrawLine(0, py, size, py)
		dc.Stroke()
	}

	for _, p := range snap.Players {
		px, py := toPx(p.X, p.Y)

		// Hit radius ring
		dc.SetColor(color.RGBA{255, 255, 255, 40})
		dc.DrawCircle(px, py, m.cfg.HitRadius*sx)
		dc.Fill()

		dc.SetColor(playerColor(p))
		dc.DrawCircle(px, py, 4)
		dc.Fill()
	}

	dc.SetColor(color.RGBA{255, 200, 40, 255})
	for _, proj := range snap.Projectiles {
		px, py := toPx(proj.X, proj.Y)
		dc.DrawCircle(px, py, 1.5)
		dc.Fill()
	}
}

// playerColor uses the client's "color" attribute when it is a hex string,
// otherwise a stable color derived from the id.
func playerColor(p game.PlayerState) color.RGBA {
	if s, ok := p.Attrs["color"].(string); ok {
		if c, ok := parseHexColor(s); ok {
			return c
		}
	}
	h := fnv.New32a()
	h.Write([]byte(p.ID))
	sum := h.Sum32()
	return color.RGBA{uint8(sum>>16) | 0x40, uint8(sum>>8) | 0x40, uint8(sum) | 0x40, 255}
}

func parseHexColor(hex string) (color.RGBA, bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{}, false
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{r, g, b, 255}, true
}
