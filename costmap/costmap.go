// Package costmap implements the 2D cost grid the obstacle layer writes into.
package costmap

import (
	"math"
)

const (
	// FreeSpace is the cost of a cell known to be free.
	FreeSpace uint8 = 0
	// InscribedInflatedObstacle is the cost of a cell within the robot's inscribed radius of an obstacle.
	InscribedInflatedObstacle uint8 = 253
	// LethalObstacle is the cost of a cell occupied by an obstacle.
	LethalObstacle uint8 = 254
	// NoInformation is the cost of a cell nothing is known about.
	NoInformation uint8 = 255
)

// DefaultValue returns the cost new and reset cells take. Unknown space is tracked as
// NoInformation, otherwise cells start out free.
func DefaultValue(trackUnknownSpace bool) uint8 {
	if trackUnknownSpace {
		return NoInformation
	}
	return FreeSpace
}

// Costmap2D is a dense grid of costs with a fixed resolution and a world origin at the
// lower left corner of cell (0, 0). Cells are stored row major: index = my*sizeX + mx.
type Costmap2D struct {
	sizeX        int
	sizeY        int
	resolution   float64
	originX      float64
	originY      float64
	defaultValue uint8
	costs        []uint8
}

// New returns a grid of cellsX by cellsY cells with every cell set to defaultValue.
func New(cellsX, cellsY int, resolution, originX, originY float64, defaultValue uint8) *Costmap2D {
	if cellsX < 0 {
		cellsX = 0
	}
	if cellsY < 0 {
		cellsY = 0
	}
	c := &Costmap2D{
		sizeX:        cellsX,
		sizeY:        cellsY,
		resolution:   resolution,
		originX:      originX,
		originY:      originY,
		defaultValue: defaultValue,
		costs:        make([]uint8, cellsX*cellsY),
	}
	c.ResetMaps()
	return c
}

// NewFromMeters returns a grid covering widthMeters by heightMeters starting at the given origin.
func NewFromMeters(widthMeters, heightMeters, resolution, originX, originY float64, defaultValue uint8) *Costmap2D {
	cellsX := int(math.Ceil(widthMeters/resolution - 1e-9))
	cellsY := int(math.Ceil(heightMeters/resolution - 1e-9))
	return New(cellsX, cellsY, resolution, originX, originY, defaultValue)
}

// NewMatching returns an empty grid with the same geometry as other but its own default value.
func NewMatching(other *Costmap2D, defaultValue uint8) *Costmap2D {
	return New(other.sizeX, other.sizeY, other.resolution, other.originX, other.originY, defaultValue)
}

// Clone returns a deep copy of c.
func (c *Costmap2D) Clone() *Costmap2D {
	clone := *c
	clone.costs = append([]uint8(nil), c.costs...)
	return &clone
}

// SizeInCellsX returns the number of columns.
func (c *Costmap2D) SizeInCellsX() int { return c.sizeX }

// SizeInCellsY returns the number of rows.
func (c *Costmap2D) SizeInCellsY() int { return c.sizeY }

// SizeInMetersX returns the width of the grid in meters.
func (c *Costmap2D) SizeInMetersX() float64 { return float64(c.sizeX) * c.resolution }

// SizeInMetersY returns the height of the grid in meters.
func (c *Costmap2D) SizeInMetersY() float64 { return float64(c.sizeY) * c.resolution }

// Resolution returns the side length of a cell in meters.
func (c *Costmap2D) Resolution() float64 { return c.resolution }

// OriginX returns the world x coordinate of the grid's lower left corner.
func (c *Costmap2D) OriginX() float64 { return c.originX }

// OriginY returns the world y coordinate of the grid's lower left corner.
func (c *Costmap2D) OriginY() float64 { return c.originY }

// DefaultValue returns the cost reset cells take.
func (c *Costmap2D) DefaultValue() uint8 { return c.defaultValue }

// Costs exposes the underlying cells. Callers must not change its length.
func (c *Costmap2D) Costs() []uint8 { return c.costs }

// SameGeometry reports whether both grids cover the same cells.
func (c *Costmap2D) SameGeometry(other *Costmap2D) bool {
	return c.sizeX == other.sizeX && c.sizeY == other.sizeY &&
		c.resolution == other.resolution && c.originX == other.originX && c.originY == other.originY
}

// Index returns the offset of cell (mx, my) in Costs.
func (c *Costmap2D) Index(mx, my int) int {
	return my*c.sizeX + mx
}

// IndexToCells is the inverse of Index.
func (c *Costmap2D) IndexToCells(index int) (int, int) {
	my := index / c.sizeX
	return index - my*c.sizeX, my
}

// Cost returns the cost of cell (mx, my).
func (c *Costmap2D) Cost(mx, my int) uint8 {
	return c.costs[c.Index(mx, my)]
}

// SetCost sets the cost of cell (mx, my).
func (c *Costmap2D) SetCost(mx, my int, cost uint8) {
	c.costs[c.Index(mx, my)] = cost
}

// MapToWorld returns the world coordinates of the center of cell (mx, my).
func (c *Costmap2D) MapToWorld(mx, my int) (float64, float64) {
	return c.originX + (float64(mx)+0.5)*c.resolution, c.originY + (float64(my)+0.5)*c.resolution
}

// WorldToMap converts world coordinates to a cell. ok is false when the point lies off the grid.
func (c *Costmap2D) WorldToMap(wx, wy float64) (mx, my int, ok bool) {
	// negated comparisons also reject NaN
	if !(wx >= c.originX) || !(wy >= c.originY) {
		return 0, 0, false
	}
	fx := (wx - c.originX) / c.resolution
	fy := (wy - c.originY) / c.resolution
	if !(fx < float64(c.sizeX)) || !(fy < float64(c.sizeY)) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// WorldToMapNoBounds converts world coordinates to a cell that may lie off the grid.
func (c *Costmap2D) WorldToMapNoBounds(wx, wy float64) (int, int) {
	return int(math.Floor((wx - c.originX) / c.resolution)), int(math.Floor((wy - c.originY) / c.resolution))
}

// WorldToMapEnforceBounds converts world coordinates to the nearest cell on the grid.
func (c *Costmap2D) WorldToMapEnforceBounds(wx, wy float64) (int, int) {
	mx, my := c.WorldToMapNoBounds(wx, wy)
	return clampInt(mx, 0, c.sizeX-1), clampInt(my, 0, c.sizeY-1)
}

// CellDistance converts a world distance to a whole number of cells.
func (c *Costmap2D) CellDistance(worldDist float64) int {
	if c.resolution <= 0 || math.IsNaN(worldDist) {
		return 0
	}
	return int(math.Max(0, math.Round(worldDist/c.resolution)))
}

// ResetMaps sets every cell to the default value.
func (c *Costmap2D) ResetMaps() {
	for i := range c.costs {
		c.costs[i] = c.defaultValue
	}
}

// ResetMap sets the cells in [x0, xn) x [y0, yn) to the default value.
func (c *Costmap2D) ResetMap(x0, y0, xn, yn int) {
	x0, xn = clampInt(x0, 0, c.sizeX), clampInt(xn, 0, c.sizeX)
	y0, yn = clampInt(y0, 0, c.sizeY), clampInt(yn, 0, c.sizeY)
	for y := y0; y < yn; y++ {
		row := c.costs[c.Index(x0, y):c.Index(xn, y)]
		for i := range row {
			row[i] = c.defaultValue
		}
	}
}

// UpdateOrigin moves the grid so its lower left corner is at (newOriginX, newOriginY), snapped
// to whole cells. Cells that overlap the old grid keep their costs, all others are reset.
func (c *Costmap2D) UpdateOrigin(newOriginX, newOriginY float64) {
	cellOx := int(math.Floor((newOriginX - c.originX) / c.resolution))
	cellOy := int(math.Floor((newOriginY - c.originY) / c.resolution))
	if cellOx == 0 && cellOy == 0 {
		return
	}

	// overlap of old and new windows, in old cell coordinates
	lowerLeftX := clampInt(cellOx, 0, c.sizeX)
	lowerLeftY := clampInt(cellOy, 0, c.sizeY)
	upperRightX := clampInt(cellOx+c.sizeX, 0, c.sizeX)
	upperRightY := clampInt(cellOy+c.sizeY, 0, c.sizeY)

	cellSizeX := upperRightX - lowerLeftX
	cellSizeY := upperRightY - lowerLeftY
	if cellSizeX <= 0 || cellSizeY <= 0 {
		c.ResetMaps()
		c.originX += float64(cellOx) * c.resolution
		c.originY += float64(cellOy) * c.resolution
		return
	}

	local := make([]uint8, cellSizeX*cellSizeY)
	for y := 0; y < cellSizeY; y++ {
		copy(local[y*cellSizeX:(y+1)*cellSizeX], c.costs[c.Index(lowerLeftX, lowerLeftY+y):c.Index(upperRightX, lowerLeftY+y)])
	}

	c.ResetMaps()

	c.originX += float64(cellOx) * c.resolution
	c.originY += float64(cellOy) * c.resolution

	startX := lowerLeftX - cellOx
	startY := lowerLeftY - cellOy
	for y := 0; y < cellSizeY; y++ {
		copy(c.costs[c.Index(startX, startY+y):c.Index(startX+cellSizeX, startY+y)], local[y*cellSizeX:(y+1)*cellSizeX])
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
