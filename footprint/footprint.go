// Package footprint describes the polygon approximating the robot's extent on the ground.
package footprint

import (
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// circleVertices is the number of vertices used to approximate a circular footprint.
const circleVertices = 16

var (
	// ErrTooFewPoints denotes that a footprint has fewer than three vertices.
	ErrTooFewPoints = errors.New("footprint must have at least 3 points")

	// ErrPointNotAPair denotes that a footprint vertex is not an [x, y] pair.
	ErrPointNotAPair = errors.New("footprint points must be [x, y] pairs")

	// ErrNonPositiveRadius denotes that a circular footprint has no area.
	ErrNonPositiveRadius = errors.New("robot radius must be positive")
)

// Footprint is a closed polygon in the robot frame. The last vertex connects back to the first.
type Footprint []r2.Point

// FromString parses a footprint written as "[[x1, y1], [x2, y2], ...]".
func FromString(s string) (Footprint, error) {
	var pairs [][]float64
	if err := yaml.Unmarshal([]byte(strings.TrimSpace(s)), &pairs); err != nil {
		return nil, errors.Wrapf(err, "error parsing footprint %q", s)
	}
	if len(pairs) < 3 {
		return nil, ErrTooFewPoints
	}
	fp := make(Footprint, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, ErrPointNotAPair
		}
		fp = append(fp, r2.Point{X: pair[0], Y: pair[1]})
	}
	return fp, nil
}

// FromRadius returns a polygon approximating a circle of the given radius around the robot.
func FromRadius(radius float64) (Footprint, error) {
	if radius <= 0 {
		return nil, ErrNonPositiveRadius
	}
	fp := make(Footprint, 0, circleVertices)
	step := 2 * math.Pi / circleVertices
	for i := 0; i < circleVertices; i++ {
		angle := float64(i) * step
		fp = append(fp, r2.Point{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)})
	}
	return fp, nil
}

// Padded returns a copy of the footprint with every vertex pushed padding meters away from
// the robot along each axis.
func (fp Footprint) Padded(padding float64) Footprint {
	out := make(Footprint, len(fp))
	for i, p := range fp {
		out[i] = r2.Point{X: p.X + sign0(p.X)*padding, Y: p.Y + sign0(p.Y)*padding}
	}
	return out
}

// Transform places the footprint at world position (x, y) rotated by yaw radians.
func (fp Footprint) Transform(x, y, yaw float64) []r2.Point {
	cosTh, sinTh := math.Cos(yaw), math.Sin(yaw)
	out := make([]r2.Point, len(fp))
	for i, p := range fp {
		out[i] = r2.Point{
			X: x + (p.X*cosTh - p.Y*sinTh),
			Y: y + (p.X*sinTh + p.Y*cosTh),
		}
	}
	return out
}

// InscribedRadius returns the distance from the robot center to the nearest footprint edge.
func (fp Footprint) InscribedRadius() float64 {
	if len(fp) == 0 {
		return 0
	}
	minDist := math.Inf(1)
	for i := range fp {
		next := fp[(i+1)%len(fp)]
		minDist = math.Min(minDist, distanceToSegment(r2.Point{}, fp[i], next))
	}
	return minDist
}

// CircumscribedRadius returns the distance from the robot center to the farthest vertex.
func (fp Footprint) CircumscribedRadius() float64 {
	maxDist := 0.0
	for _, p := range fp {
		maxDist = math.Max(maxDist, p.Norm())
	}
	return maxDist
}

func distanceToSegment(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	lengthSq := ab.Dot(ab)
	if lengthSq == 0 {
		return p.Sub(a).Norm()
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/lengthSq))
	return p.Sub(a.Add(ab.Mul(t))).Norm()
}

func sign0(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
