// Package postprocess parses DoCommand payloads that edit the obstacle layer's static observations.
package postprocess

import (
	"errors"
	"time"

	"github.com/golang/geo/r3"

	"github.com/viam-modules/viam-obstacle-layer/observation"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

// Instruction describes the action of the postprocess step.
type Instruction int

const (
	// Add is the instruction for adding a static observation.
	Add Instruction = iota
	// Clear is the instruction for dropping static observations.
	Clear
)

const (
	xKey             = "X"
	yKey             = "Y"
	zKey             = "Z"
	originKey        = "origin"
	pointsKey        = "points"
	markingKey       = "marking"
	clearingKey      = "clearing"
	obstacleRangeKey = "obstacle_range"
	raytraceRangeKey = "raytrace_range"

	// AddCommand can be used to add a static observation to the layer.
	AddCommand = "static_observation_add"
	// ClearCommand can be used to drop static observations from the layer.
	ClearCommand = "static_observation_clear"
	// ResetCommand can be used to reset the layer and the master grid.
	ResetCommand = "reset"
	// CurrentCommand can be used to ask whether every source is current.
	CurrentCommand = "current"
)

var (
	// ErrPayloadNotAMap denotes that the payload has not been properly formatted as a map.
	ErrPayloadNotAMap = errors.New("could not parse provided payload as a map")

	// ErrPointsNotASlice denotes that the points have not been properly formatted as a slice.
	ErrPointsNotASlice = errors.New("could not parse provided points as a slice")

	// ErrPointNotAMap denotes that a point has not been properly formatted as a map.
	ErrPointNotAMap = errors.New("could not parse provided point as a map")

	// ErrXNotProvided denotes that an X value was not provided.
	ErrXNotProvided = errors.New("X not provided")

	// ErrXNotFloat64 denotes that an X value is not a float64.
	ErrXNotFloat64 = errors.New("could not parse provided X as a float64")

	// ErrYNotProvided denotes that a Y value was not provided.
	ErrYNotProvided = errors.New("Y not provided")

	// ErrYNotFloat64 denotes that a Y value is not a float64.
	ErrYNotFloat64 = errors.New("could not parse provided Y as a float64")

	// ErrZNotFloat64 denotes that a Z value is not a float64.
	ErrZNotFloat64 = errors.New("could not parse provided Z as a float64")

	// ErrFlagNotBool denotes that a marking or clearing flag is not a bool.
	ErrFlagNotBool = errors.New("could not parse provided marking or clearing flag as a bool")

	// ErrRangeNotFloat64 denotes that a range is not a float64.
	ErrRangeNotFloat64 = errors.New("could not parse provided range as a float64")

	// ErrNoPoints denotes that an add payload carried no points.
	ErrNoPoints = errors.New("no points provided")
)

// Task can be used to construct a static observation edit. Origin and Points are in metres.
// Zero ranges mean the caller's defaults apply.
type Task struct {
	Instruction   Instruction
	Origin        r3.Vector
	Points        []r3.Vector
	Marking       bool
	Clearing      bool
	ObstacleRange float64
	RaytraceRange float64
}

/*
ParseDoCommand parses a static observation DoCommand payload into a Task. Points and the
origin are given in millimetres, the Viam convention, and converted to metres. A Z value is
optional and defaults to 0.

An Add payload looks like

	{"points": [{"X": 1000, "Y": 0, "Z": 100}], "origin": {"X": 0, "Y": 0}, "marking": true, "clearing": false}

where marking defaults to true and clearing to false. A Clear payload holds only the two
flags, both defaulting to true.
*/
func ParseDoCommand(
	unstructuredPayload interface{},
	instruction Instruction,
) (Task, error) {
	payload, ok := unstructuredPayload.(map[string]interface{})
	if !ok {
		return Task{}, ErrPayloadNotAMap
	}

	task := Task{Instruction: instruction}
	var err error
	if instruction == Clear {
		if task.Marking, err = parseBool(payload, markingKey, true); err != nil {
			return Task{}, err
		}
		if task.Clearing, err = parseBool(payload, clearingKey, true); err != nil {
			return Task{}, err
		}
		return task, nil
	}

	if task.Marking, err = parseBool(payload, markingKey, true); err != nil {
		return Task{}, err
	}
	if task.Clearing, err = parseBool(payload, clearingKey, false); err != nil {
		return Task{}, err
	}
	if task.ObstacleRange, err = parseRange(payload, obstacleRangeKey); err != nil {
		return Task{}, err
	}
	if task.RaytraceRange, err = parseRange(payload, raytraceRangeKey); err != nil {
		return Task{}, err
	}

	if origin, ok := payload[originKey]; ok {
		if task.Origin, err = parsePoint(origin); err != nil {
			return Task{}, err
		}
	}

	pointSlice, ok := payload[pointsKey].([]interface{})
	if !ok {
		return Task{}, ErrPointsNotASlice
	}
	if len(pointSlice) == 0 {
		return Task{}, ErrNoPoints
	}
	for _, point := range pointSlice {
		p, err := parsePoint(point)
		if err != nil {
			return Task{}, err
		}
		task.Points = append(task.Points, p)
	}
	return task, nil
}

// Observation builds the static observation described by an Add task, falling back to the
// given ranges when the task does not set its own.
func (task Task) Observation(defaultObstacleRange, defaultRaytraceRange float64, timestamp time.Time) observation.Observation {
	obstacleRange := task.ObstacleRange
	if obstacleRange == 0 {
		obstacleRange = defaultObstacleRange
	}
	raytraceRange := task.RaytraceRange
	if raytraceRange == 0 {
		raytraceRange = defaultRaytraceRange
	}
	return observation.New(task.Origin, task.Points, obstacleRange, raytraceRange, timestamp)
}

func parsePoint(point interface{}) (r3.Vector, error) {
	pointMap, ok := point.(map[string]interface{})
	if !ok {
		return r3.Vector{}, ErrPointNotAMap
	}

	x, ok := pointMap[xKey]
	if !ok {
		return r3.Vector{}, ErrXNotProvided
	}
	xFloat, ok := x.(float64)
	if !ok {
		return r3.Vector{}, ErrXNotFloat64
	}

	y, ok := pointMap[yKey]
	if !ok {
		return r3.Vector{}, ErrYNotProvided
	}
	yFloat, ok := y.(float64)
	if !ok {
		return r3.Vector{}, ErrYNotFloat64
	}

	var zFloat float64
	if z, ok := pointMap[zKey]; ok {
		if zFloat, ok = z.(float64); !ok {
			return r3.Vector{}, ErrZNotFloat64
		}
	}

	return r3.Vector{
		X: xFloat / s.MillimetersPerMeter,
		Y: yFloat / s.MillimetersPerMeter,
		Z: zFloat / s.MillimetersPerMeter,
	}, nil
}

func parseBool(payload map[string]interface{}, key string, defaultValue bool) (bool, error) {
	v, ok := payload[key]
	if !ok {
		return defaultValue, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrFlagNotBool
	}
	return b, nil
}

func parseRange(payload map[string]interface{}, key string) (float64, error) {
	v, ok := payload[key]
	if !ok {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, ErrRangeNotFloat64
	}
	return f, nil
}
