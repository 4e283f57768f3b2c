package layer

import (
	"math"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

// raytraceFreespace clears the cells between the observation origin and each of its points.
func (l *ObstacleLayer) raytraceFreespace(obs observation.Observation, bounds *costmap.Bounds) {
	ox, oy := obs.Origin.X, obs.Origin.Y
	x0, y0, ok := l.grid.WorldToMap(ox, oy)
	if !ok {
		l.logger.Warnf("sensor origin at (%.2f, %.2f) is out of map bounds, the costmap cannot raytrace for it", ox, oy)
		return
	}

	bounds.Touch(ox, oy)

	cellRaytraceRange := l.grid.CellDistance(obs.RaytraceRange)
	clearCell := l.grid.MarkCell(costmap.FreeSpace)
	var skipped int
	for _, p := range obs.Points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			skipped++
			continue
		}
		wx, wy := l.clipRay(ox, oy, p.X, p.Y)
		x1, y1, ok := l.grid.WorldToMap(wx, wy)
		if !ok {
			skipped++
			continue
		}
		l.grid.RaytraceLine(clearCell, x0, y0, x1, y1, cellRaytraceRange)
		touchRaytraceBounds(ox, oy, p.X, p.Y, obs.RaytraceRange, bounds)
	}
	if skipped > 0 {
		l.logger.Debugw("skipped clearing rays", "skipped", skipped, "total", len(obs.Points))
	}
}

// clipRay shortens the ray from (ox, oy) to (wx, wy) so it ends strictly inside the grid.
// The origin must be on the grid. An axis the ray does not move along is never clipped
// against, so axis aligned rays never divide by zero.
func (l *ObstacleLayer) clipRay(ox, oy, wx, wy float64) (float64, float64) {
	minX, minY := l.grid.OriginX(), l.grid.OriginY()
	maxX, maxY := minX+l.grid.SizeInMetersX(), minY+l.grid.SizeInMetersY()
	epsilon := l.grid.Resolution() / 1000

	a := wx - ox
	b := wy - oy

	if wx < minX && a != 0 {
		t := (minX - ox) / a
		wx = minX
		wy = oy + b*t
	}
	if wy < minY && b != 0 {
		t := (minY - oy) / b
		wx = ox + a*t
		wy = minY
	}
	if wx > maxX && a != 0 {
		t := (maxX - ox) / a
		wx = maxX - epsilon
		wy = oy + b*t
	}
	if wy > maxY && b != 0 {
		t := (maxY - oy) / b
		wx = ox + a*t
		wy = maxY - epsilon
	}

	// corrections along one axis can push the other slightly out again
	return clampFloat(wx, minX, maxX-epsilon), clampFloat(wy, minY, maxY-epsilon)
}

// touchRaytraceBounds touches the end of the unclipped ray, shortened to rangeLimit.
func touchRaytraceBounds(ox, oy, wx, wy, rangeLimit float64, bounds *costmap.Bounds) {
	dx, dy := wx-ox, wy-oy
	scale := 1.0
	if fullDistance := math.Hypot(dx, dy); fullDistance > rangeLimit {
		scale = rangeLimit / fullDistance
	}
	bounds.Touch(ox+dx*scale, oy+dy*scale)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
