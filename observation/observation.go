// Package observation holds sensor observations and the buffers sensor ingestion writes them into.
package observation

import (
	"time"

	"github.com/golang/geo/r3"
)

// Observation is a batch of world frame hit points captured by one sensor, together with
// the sensor origin and the ranges within which the points may mark or clear cells.
// An Observation is not modified after construction.
type Observation struct {
	Origin        r3.Vector
	Points        []r3.Vector
	ObstacleRange float64
	RaytraceRange float64
	Timestamp     time.Time
}

// New returns an Observation over a copy of points.
func New(origin r3.Vector, points []r3.Vector, obstacleRange, raytraceRange float64, timestamp time.Time) Observation {
	owned := make([]r3.Vector, len(points))
	copy(owned, points)
	return Observation{
		Origin:        origin,
		Points:        owned,
		ObstacleRange: obstacleRange,
		RaytraceRange: raytraceRange,
		Timestamp:     timestamp,
	}
}
