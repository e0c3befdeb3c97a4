// Package spatial provides a uniform grid for broad-phase proximity queries.
//
// The grid stores entity indices (not pointers) in preallocated cell slices,
// so rebuilding it every tick does not allocate once it has warmed up.
package spatial

import "math"

// Grid buckets points into square cells covering a rectangle.
// Points outside the rectangle are clamped into the border cells.
//
// Optimal cell size equals the query radius: a radius query then touches
// at most 3x3 cells.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
// Grid is not safe for concurrent use.
type Grid struct {
	minX, minY  float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32
	scratch     []uint32 // reused by QueryRadius
	count       int
}

// NewGrid creates a grid covering [minX, maxX] x [minY, maxY].
// It panics if cellSize is not positive.
func NewGrid(minX, minY, maxX, maxY, cellSize float64) *Grid {
	if !(cellSize > 0) {
		panic("spatial: cell size must be positive")
	}
	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxY - minY) / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &Grid{
		minX:        minX,
		minY:        minY,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       make([][]uint32, cols*rows),
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear empties every cell, keeping capacity.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.count = 0
}

// Insert adds entity id at (x, y).
func (g *Grid) Insert(id uint32, x, y float64) {
	idx := g.row(y)*g.cols + g.col(x)
	g.cells[idx] = append(g.cells[idx], id)
	g.count++
}

// Len returns the number of inserted entities.
func (g *Grid) Len() int {
	return g.count
}

// QueryRadius returns every entity whose cell intersects the square of
// half-side radius around (cx, cy). Candidates may lie outside the radius;
// the caller does the exact distance check.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
func (g *Grid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, maxCol := g.col(cx-radius), g.col(cx+radius)
	minRow, maxRow := g.row(cy-radius), g.row(cy+radius)

	for row := minRow; row <= maxRow; row++ {
		base := row * g.cols
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[base+col]...)
		}
	}
	return g.scratch
}

// Dimensions returns the number of columns and rows.
func (g *Grid) Dimensions() (cols, rows int) {
	return g.cols, g.rows
}

// col maps x to a column. The mapping is monotonic, so every point within
// a query range lands in a cell the query visits.
func (g *Grid) col(x float64) int {
	return clampCell((x-g.minX)*g.invCellSize, g.cols)
}

func (g *Grid) row(y float64) int {
	return clampCell((y-g.minY)*g.invCellSize, g.rows)
}

// clampCell floors v into [0, n). Comparing as floats first keeps huge
// and non-finite coordinates away from the int conversion.
func clampCell(v float64, n int) int {
	if !(v >= 1) {
		return 0
	}
	if v >= float64(n-1) {
		return n - 1
	}
	return int(v)
}
