package costmap

import (
	"github.com/golang/geo/r2"
)

// Bounds accumulates the world-space rectangle touched during one update cycle.
// It only grows; a fresh Bounds is made for every cycle.
type Bounds struct {
	rect r2.Rect
}

// NewBounds returns an empty Bounds.
func NewBounds() *Bounds {
	return &Bounds{rect: r2.EmptyRect()}
}

// Touch expands the bounds to include (x, y).
func (b *Bounds) Touch(x, y float64) {
	b.rect = b.rect.AddPoint(r2.Point{X: x, Y: y})
}

// IsEmpty reports whether nothing has been touched yet.
func (b *Bounds) IsEmpty() bool {
	return b.rect.IsEmpty()
}

// Rect returns the touched rectangle.
func (b *Bounds) Rect() r2.Rect {
	return b.rect
}

// Min returns the lower left corner.
func (b *Bounds) Min() (float64, float64) {
	lo := b.rect.Lo()
	return lo.X, lo.Y
}

// Max returns the upper right corner.
func (b *Bounds) Max() (float64, float64) {
	hi := b.rect.Hi()
	return hi.X, hi.Y
}

// ContainsPoint reports whether (x, y) lies within the touched rectangle, edges included.
func (b *Bounds) ContainsPoint(x, y float64) bool {
	return b.rect.ContainsPoint(r2.Point{X: x, Y: y})
}

// CellWindow converts bounds into the half open cell window [minI, maxI) x [minJ, maxJ) of c.
// ok is false when the bounds are empty or do not overlap the grid.
func (c *Costmap2D) CellWindow(b *Bounds) (minI, minJ, maxI, maxJ int, ok bool) {
	if b.IsEmpty() || c.sizeX == 0 || c.sizeY == 0 {
		return 0, 0, 0, 0, false
	}
	minX, minY := b.Min()
	maxX, maxY := b.Max()
	if maxX < c.originX || maxY < c.originY ||
		minX >= c.originX+c.SizeInMetersX() || minY >= c.originY+c.SizeInMetersY() {
		return 0, 0, 0, 0, false
	}
	minI, minJ = c.WorldToMapEnforceBounds(minX, minY)
	maxI, maxJ = c.WorldToMapEnforceBounds(maxX, maxY)
	return minI, minJ, maxI + 1, maxJ + 1, true
}
