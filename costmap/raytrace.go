package costmap

import (
	"math"

	"github.com/golang/geo/r2"
)

// CellAction is applied to every cell visited by RaytraceLine, identified by its index.
type CellAction func(index int)

// MarkCell returns an action that sets every visited cell of c to cost.
func (c *Costmap2D) MarkCell(cost uint8) CellAction {
	return func(index int) {
		c.costs[index] = cost
	}
}

// RaytraceLine walks the cells on the line from (x0, y0) to (x1, y1) with an integer
// Bresenham traversal and applies at to each of them, the start and end cell included.
// The walk ends once it has covered maxLength cells of euclidean length.
// Both end points must be on the grid.
func (c *Costmap2D) RaytraceLine(at CellAction, x0, y0, x1, y1, maxLength int) {
	dx := x1 - x0
	dy := y1 - y0

	absDx := absInt(dx)
	absDy := absInt(dy)

	offsetDx := signInt(dx)
	offsetDy := signInt(dy) * c.sizeX

	offset := c.Index(x0, y0)

	// the cap applies to the euclidean length of the line, projected onto the major axis
	dist := math.Hypot(float64(dx), float64(dy))
	capSteps := func(absDa int) int {
		if dist <= float64(maxLength) {
			return absDa
		}
		return int(float64(absDa) * float64(maxLength) / dist)
	}

	if absDx >= absDy {
		bresenham2D(at, absDx, absDy, absDx/2, offsetDx, offsetDy, offset, capSteps(absDx))
		return
	}
	bresenham2D(at, absDy, absDx, absDy/2, offsetDy, offsetDx, offset, capSteps(absDy))
}

// bresenham2D steps along the major axis a, carrying an error term for the minor axis b.
func bresenham2D(at CellAction, absDa, absDb, errorB, offsetA, offsetB, offset, maxLength int) {
	end := absDa
	if maxLength < end {
		end = maxLength
	}
	if end < 0 {
		end = 0
	}
	for i := 0; i < end; i++ {
		at(offset)
		offset += offsetA
		errorB += absDb
		if errorB >= absDa {
			offset += offsetB
			errorB -= absDa
		}
	}
	at(offset)
}

// cell is a grid coordinate.
type cell struct {
	x, y int
}

// polygonOutlineCells returns the cells on the edges of the polygon given in cell coordinates.
func (c *Costmap2D) polygonOutlineCells(polygon []cell) []cell {
	var out []cell
	collect := func(index int) {
		x, y := c.IndexToCells(index)
		out = append(out, cell{x: x, y: y})
	}
	for i := 0; i+1 < len(polygon); i++ {
		c.RaytraceLine(collect, polygon[i].x, polygon[i].y, polygon[i+1].x, polygon[i+1].y, math.MaxInt32)
	}
	if len(polygon) > 0 {
		last := polygon[len(polygon)-1]
		first := polygon[0]
		c.RaytraceLine(collect, last.x, last.y, first.x, first.y, math.MaxInt32)
	}
	return out
}

// convexFillCells returns the outline and interior cells of a convex polygon in cell coordinates.
func (c *Costmap2D) convexFillCells(polygon []cell) []cell {
	if len(polygon) < 3 {
		return nil
	}
	outline := c.polygonOutlineCells(polygon)
	if len(outline) == 0 {
		return nil
	}

	// per column, the lowest and highest outline row bound the interior
	minX, maxX := outline[0].x, outline[0].x
	for _, p := range outline {
		if p.x < minX {
			minX = p.x
		}
		if p.x > maxX {
			maxX = p.x
		}
	}
	lows := make([]int, maxX-minX+1)
	highs := make([]int, maxX-minX+1)
	for i := range lows {
		lows[i] = math.MaxInt32
		highs[i] = math.MinInt32
	}
	for _, p := range outline {
		i := p.x - minX
		if p.y < lows[i] {
			lows[i] = p.y
		}
		if p.y > highs[i] {
			highs[i] = p.y
		}
	}

	var cells []cell
	for i := range lows {
		for y := lows[i]; y <= highs[i]; y++ {
			cells = append(cells, cell{x: minX + i, y: y})
		}
	}
	return cells
}

// SetConvexPolygonCost sets every cell covered by the convex polygon, given in world
// coordinates, to cost. It returns false and changes nothing when any vertex is off the grid.
func (c *Costmap2D) SetConvexPolygonCost(polygon []r2.Point, cost uint8) bool {
	mapPolygon := make([]cell, 0, len(polygon))
	for _, p := range polygon {
		mx, my, ok := c.WorldToMap(p.X, p.Y)
		if !ok {
			return false
		}
		mapPolygon = append(mapPolygon, cell{x: mx, y: my})
	}
	for _, p := range c.convexFillCells(mapPolygon) {
		c.SetCost(p.x, p.y, cost)
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func signInt(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
