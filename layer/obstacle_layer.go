// Package layer implements the obstacle layer: it marks obstacles seen by ranging sensors,
// clears free space along sensor rays and folds the result into a master costmap.
package layer

import (
	"context"

	"github.com/golang/geo/r2"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/footprint"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

// Subscriber pauses and resumes the ingestion feeding one observation buffer.
type Subscriber interface {
	Pause()
	Resume()
}

// Config holds the layer level settings.
type Config struct {
	Enabled                  bool
	FootprintClearingEnabled bool
	MaxObstacleHeight        float64
	CombinationMethod        CombinationMethod
	RollingWindow            bool
	Footprint                footprint.Footprint
}

// Source is one sensor feeding the layer.
type Source struct {
	Buffer     *observation.Buffer
	Marking    bool
	Clearing   bool
	Subscriber Subscriber
}

// CycleResult describes one completed update cycle.
type CycleResult struct {
	Bounds  *costmap.Bounds
	Current bool
	// Combined is false when the touched bounds did not overlap the master grid.
	Combined               bool
	MinI, MinJ, MaxI, MaxJ int
}

// ObstacleLayer owns a local costmap and updates it from its sources. It is not safe for
// concurrent use; callers run cycles, resets and static observation edits sequentially.
type ObstacleLayer struct {
	cfg    Config
	grid   *costmap.Costmap2D
	logger logging.Logger

	sources         []Source
	markingBuffers  []*observation.Buffer
	clearingBuffers []*observation.Buffer

	staticMarking  []observation.Observation
	staticClearing []observation.Observation

	transformedFootprint []r2.Point
	extraBounds          *costmap.Bounds
	current              bool
}

// New returns a layer writing into grid.
func New(cfg Config, grid *costmap.Costmap2D, logger logging.Logger) *ObstacleLayer {
	return &ObstacleLayer{
		cfg:     cfg,
		grid:    grid,
		logger:  logger,
		current: true,
	}
}

// AddSource registers a sensor source. Its buffer is read for marking and/or clearing.
func (l *ObstacleLayer) AddSource(src Source) {
	l.sources = append(l.sources, src)
	if src.Marking {
		l.markingBuffers = append(l.markingBuffers, src.Buffer)
	}
	if src.Clearing {
		l.clearingBuffers = append(l.clearingBuffers, src.Buffer)
	}
}

// Grid returns the layer's local costmap.
func (l *ObstacleLayer) Grid() *costmap.Costmap2D {
	return l.grid
}

// Config returns the layer settings.
func (l *ObstacleLayer) Config() Config {
	return l.cfg
}

// IsCurrent reports whether every source was current during the last cycle.
func (l *ObstacleLayer) IsCurrent() bool {
	return l.current
}

// AddExtraBounds registers a world rectangle that the next cycle must include in its bounds.
func (l *ObstacleLayer) AddExtraBounds(minX, minY, maxX, maxY float64) {
	if l.extraBounds == nil {
		l.extraBounds = costmap.NewBounds()
	}
	l.extraBounds.Touch(minX, minY)
	l.extraBounds.Touch(maxX, maxY)
}

// AddStaticObservation adds an observation that is used every cycle alongside the buffered ones.
func (l *ObstacleLayer) AddStaticObservation(obs observation.Observation, marking, clearing bool) {
	if marking {
		l.staticMarking = append(l.staticMarking, obs)
	}
	if clearing {
		l.staticClearing = append(l.staticClearing, obs)
	}
}

// ClearStaticObservations removes the static marking and/or clearing observations.
func (l *ObstacleLayer) ClearStaticObservations(marking, clearing bool) {
	if marking {
		l.staticMarking = nil
	}
	if clearing {
		l.staticClearing = nil
	}
}

// StaticObservationCount returns the number of static marking and clearing observations.
func (l *ObstacleLayer) StaticObservationCount() (int, int) {
	return len(l.staticMarking), len(l.staticClearing)
}

// Activate resumes ingestion for every source and restarts the buffers' staleness timers.
func (l *ObstacleLayer) Activate() {
	for _, src := range l.sources {
		if src.Subscriber != nil {
			src.Subscriber.Resume()
		}
	}
	for _, src := range l.sources {
		src.Buffer.ResetLastUpdated()
	}
}

// Deactivate pauses ingestion for every source.
func (l *ObstacleLayer) Deactivate() {
	for _, src := range l.sources {
		if src.Subscriber != nil {
			src.Subscriber.Pause()
		}
	}
}

// Reset clears the local grid back to its default value and restarts ingestion.
func (l *ObstacleLayer) Reset() {
	l.Deactivate()
	l.grid.ResetMaps()
	l.current = true
	l.Activate()
}

// Update runs a full cycle for a robot at (robotX, robotY) facing robotYaw: it computes the
// touched bounds, updates the local grid and folds it into master.
func (l *ObstacleLayer) Update(ctx context.Context, master *costmap.Costmap2D, robotX, robotY, robotYaw float64) CycleResult {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::layer::Update")
	defer span.End()

	bounds := costmap.NewBounds()
	l.UpdateBounds(ctx, robotX, robotY, robotYaw, bounds)

	result := CycleResult{Bounds: bounds, Current: l.current}
	minI, minJ, maxI, maxJ, ok := master.CellWindow(bounds)
	if !ok {
		return result
	}
	l.UpdateCosts(ctx, master, minI, minJ, maxI, maxJ)
	result.Combined = true
	result.MinI, result.MinJ, result.MaxI, result.MaxJ = minI, minJ, maxI, maxJ
	return result
}

// UpdateBounds updates the local grid from the current observations and expands bounds
// to cover every cell it changed. Clearing is applied before marking.
func (l *ObstacleLayer) UpdateBounds(ctx context.Context, robotX, robotY, robotYaw float64, bounds *costmap.Bounds) {
	_, span := trace.StartSpan(ctx, "obstaclelayer::layer::UpdateBounds")
	defer span.End()

	if l.cfg.RollingWindow {
		l.grid.UpdateOrigin(robotX-l.grid.SizeInMetersX()/2, robotY-l.grid.SizeInMetersY()/2)
	}
	if !l.cfg.Enabled {
		return
	}
	l.useExtraBounds(bounds)

	marking, markingCurrent := l.markingObservations()
	clearing, clearingCurrent := l.clearingObservations()
	l.current = markingCurrent && clearingCurrent

	for _, obs := range clearing {
		l.raytraceFreespace(obs, bounds)
	}
	for _, obs := range marking {
		l.markObstacles(obs, bounds)
	}

	l.updateFootprint(robotX, robotY, robotYaw, bounds)
}

// UpdateCosts clears the robot footprint and folds the local grid into master over the
// master cell window [minI, maxI) x [minJ, maxJ).
func (l *ObstacleLayer) UpdateCosts(ctx context.Context, master *costmap.Costmap2D, minI, minJ, maxI, maxJ int) {
	_, span := trace.StartSpan(ctx, "obstaclelayer::layer::UpdateCosts")
	defer span.End()

	if !l.cfg.Enabled {
		return
	}
	if l.cfg.FootprintClearingEnabled && len(l.transformedFootprint) > 0 {
		if !l.grid.SetConvexPolygonCost(l.transformedFootprint, costmap.FreeSpace) {
			l.logger.Debug("footprint is not fully on the grid, skipping footprint clearing")
		}
	}
	combine(l.cfg.CombinationMethod, master, l.grid, minI, minJ, maxI, maxJ)
}

func (l *ObstacleLayer) useExtraBounds(bounds *costmap.Bounds) {
	if l.extraBounds == nil {
		return
	}
	minX, minY := l.extraBounds.Min()
	maxX, maxY := l.extraBounds.Max()
	bounds.Touch(minX, minY)
	bounds.Touch(maxX, maxY)
	l.extraBounds = nil
}

func (l *ObstacleLayer) markingObservations() ([]observation.Observation, bool) {
	return gatherObservations(l.markingBuffers, l.staticMarking)
}

func (l *ObstacleLayer) clearingObservations() ([]observation.Observation, bool) {
	return gatherObservations(l.clearingBuffers, l.staticClearing)
}

// gatherObservations snapshots every buffer in turn and appends the static observations,
// which are always current.
func gatherObservations(buffers []*observation.Buffer, static []observation.Observation) ([]observation.Observation, bool) {
	current := true
	var out []observation.Observation
	for _, b := range buffers {
		observations, bufferCurrent := b.Snapshot()
		out = append(out, observations...)
		current = bufferCurrent && current
	}
	out = append(out, static...)
	return out, current
}

// markObstacles sets the cells of accepted hit points to lethal.
func (l *ObstacleLayer) markObstacles(obs observation.Observation, bounds *costmap.Bounds) {
	sqObstacleRange := obs.ObstacleRange * obs.ObstacleRange
	var tooHigh, tooFar, offGrid int
	for _, p := range obs.Points {
		if p.Z > l.cfg.MaxObstacleHeight {
			tooHigh++
			continue
		}
		if p.Sub(obs.Origin).Norm2() >= sqObstacleRange {
			tooFar++
			continue
		}
		mx, my, ok := l.grid.WorldToMap(p.X, p.Y)
		if !ok {
			offGrid++
			continue
		}
		l.grid.SetCost(mx, my, costmap.LethalObstacle)
		bounds.Touch(p.X, p.Y)
	}
	if tooHigh+tooFar+offGrid > 0 {
		l.logger.Debugw("skipped marking points",
			"too_high", tooHigh, "too_far", tooFar, "off_grid", offGrid, "total", len(obs.Points))
	}
}

// updateFootprint places the footprint at the robot pose and touches its vertices.
func (l *ObstacleLayer) updateFootprint(robotX, robotY, robotYaw float64, bounds *costmap.Bounds) {
	if !l.cfg.FootprintClearingEnabled {
		return
	}
	l.transformedFootprint = l.cfg.Footprint.Transform(robotX, robotY, robotYaw)
	for _, p := range l.transformedFootprint {
		bounds.Touch(p.X, p.Y)
	}
}
