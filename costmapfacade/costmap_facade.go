// Package costmapfacade serialises every operation on the obstacle layer and its master grid
// through one goroutine.
package costmapfacade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/dataprocess"
	"github.com/viam-modules/viam-obstacle-layer/layer"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

var emptyRequestParams = map[RequestParamType]interface{}{}

// Start launches the goroutine that owns the layer and the master grid.
func (cf *CostmapFacade) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	cf.startGoroutine(ctx, activeBackgroundWorkers)
}

// Update runs one update cycle for a robot at (x, y) in metres facing yaw radians.
func (cf *CostmapFacade) Update(ctx context.Context, timeout time.Duration, x, y, yaw float64) (layer.CycleResult, error) {
	requestParams := map[RequestParamType]interface{}{
		robotPose: pose{x: x, y: y, yaw: yaw},
	}
	untyped, err := cf.request(ctx, update, requestParams, timeout)
	if err != nil {
		return layer.CycleResult{}, err
	}

	result, ok := untyped.(layer.CycleResult)
	if !ok {
		return layer.CycleResult{}, errors.New("unable to cast response from costmapfacade to a cycle result")
	}
	return result, nil
}

// Reset resets the layer and clears the master grid to its default value.
func (cf *CostmapFacade) Reset(ctx context.Context, timeout time.Duration) error {
	_, err := cf.request(ctx, reset, emptyRequestParams, timeout)
	return err
}

// Activate resumes ingestion and resets the staleness timers.
func (cf *CostmapFacade) Activate(ctx context.Context, timeout time.Duration) error {
	_, err := cf.request(ctx, activate, emptyRequestParams, timeout)
	return err
}

// Deactivate pauses ingestion.
func (cf *CostmapFacade) Deactivate(ctx context.Context, timeout time.Duration) error {
	_, err := cf.request(ctx, deactivate, emptyRequestParams, timeout)
	return err
}

// AddStaticObservation adds an observation that is used on every cycle until cleared.
func (cf *CostmapFacade) AddStaticObservation(
	ctx context.Context,
	timeout time.Duration,
	obs observation.Observation,
	marking, clearing bool,
) error {
	requestParams := map[RequestParamType]interface{}{
		staticObservation: obs,
		markingFlag:       marking,
		clearingFlag:      clearing,
	}
	_, err := cf.request(ctx, addStaticObservation, requestParams, timeout)
	return err
}

// ClearStaticObservations drops the static marking and/or clearing observations.
func (cf *CostmapFacade) ClearStaticObservations(ctx context.Context, timeout time.Duration, marking, clearing bool) error {
	requestParams := map[RequestParamType]interface{}{
		markingFlag:  marking,
		clearingFlag: clearing,
	}
	_, err := cf.request(ctx, clearStaticObservations, requestParams, timeout)
	return err
}

// AddExtraBounds expands the bounds of the next cycle by the given world rectangle.
func (cf *CostmapFacade) AddExtraBounds(ctx context.Context, timeout time.Duration, minX, minY, maxX, maxY float64) error {
	requestParams := map[RequestParamType]interface{}{
		extraBounds: [4]float64{minX, minY, maxX, maxY},
	}
	_, err := cf.request(ctx, addExtraBounds, requestParams, timeout)
	return err
}

// IsCurrent reports whether every source was current on the last cycle.
func (cf *CostmapFacade) IsCurrent(ctx context.Context, timeout time.Duration) (bool, error) {
	untyped, err := cf.request(ctx, isCurrent, emptyRequestParams, timeout)
	if err != nil {
		return false, err
	}

	current, ok := untyped.(bool)
	if !ok {
		return false, errors.New("unable to cast response from costmapfacade to a bool")
	}
	return current, nil
}

// Costmap returns a copy of the master grid.
func (cf *CostmapFacade) Costmap(ctx context.Context, timeout time.Duration) (*costmap.Costmap2D, error) {
	untyped, err := cf.request(ctx, masterCopy, emptyRequestParams, timeout)
	if err != nil {
		return nil, err
	}

	grid, ok := untyped.(*costmap.Costmap2D)
	if !ok {
		return nil, errors.New("unable to cast response from costmapfacade to a costmap")
	}
	return grid, nil
}

// PointCloudMap returns the obstacle cells of the master grid as a binary PCD.
func (cf *CostmapFacade) PointCloudMap(ctx context.Context, timeout time.Duration) ([]byte, error) {
	untyped, err := cf.request(ctx, pointCloudMap, emptyRequestParams, timeout)
	if err != nil {
		return nil, err
	}

	pc, ok := untyped.([]byte)
	if !ok {
		return nil, errors.New("unable to cast response from costmapfacade to a byte slice")
	}
	return pc, nil
}

// RequestType is the type of work a request asks the goroutine to do.
type RequestType int64

const (
	update RequestType = iota
	reset
	activate
	deactivate
	addStaticObservation
	clearStaticObservations
	addExtraBounds
	isCurrent
	masterCopy
	pointCloudMap
)

// RequestParamType names a request input.
type RequestParamType int64

const (
	robotPose RequestParamType = iota
	staticObservation
	markingFlag
	clearingFlag
	extraBounds
)

type pose struct {
	x, y, yaw float64
}

// Response is the result of one request.
type Response struct {
	result interface{}
	err    error
}

// Layer is the part of the obstacle layer the facade drives.
type Layer interface {
	UpdateBounds(ctx context.Context, robotX, robotY, robotYaw float64, bounds *costmap.Bounds)
	UpdateCosts(ctx context.Context, master *costmap.Costmap2D, minI, minJ, maxI, maxJ int)
	Reset()
	Activate()
	Deactivate()
	IsCurrent() bool
	AddStaticObservation(obs observation.Observation, marking, clearing bool)
	ClearStaticObservations(marking, clearing bool)
	AddExtraBounds(minX, minY, maxX, maxY float64)
}

/*
CostmapFacade exists to ensure that only one goroutine touches the layer and the master grid,
so update cycles, resets and static observation edits never interleave.
*/
type CostmapFacade struct {
	layer         Layer
	master        *costmap.Costmap2D
	rollingWindow bool
	mapMinCost    uint8
	requestChan   chan Request
}

// RequestInterface does the work of one request.
type RequestInterface interface {
	doWork(cf *CostmapFacade) (interface{}, error)
}

// Interface defines the functionality of a CostmapFacade.
type Interface interface {
	request(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{}, timeout time.Duration,
	) (interface{}, error)
	startGoroutine(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	Start(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	Update(
		ctx context.Context,
		timeout time.Duration,
		x, y, yaw float64,
	) (layer.CycleResult, error)
	Reset(
		ctx context.Context,
		timeout time.Duration,
	) error
	Activate(
		ctx context.Context,
		timeout time.Duration,
	) error
	Deactivate(
		ctx context.Context,
		timeout time.Duration,
	) error
	AddStaticObservation(
		ctx context.Context,
		timeout time.Duration,
		obs observation.Observation,
		marking, clearing bool,
	) error
	ClearStaticObservations(
		ctx context.Context,
		timeout time.Duration,
		marking, clearing bool,
	) error
	AddExtraBounds(
		ctx context.Context,
		timeout time.Duration,
		minX, minY, maxX, maxY float64,
	) error
	IsCurrent(
		ctx context.Context,
		timeout time.Duration,
	) (bool, error)
	Costmap(
		ctx context.Context,
		timeout time.Duration,
	) (*costmap.Costmap2D, error)
	PointCloudMap(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
}

// Request is one unit of work for the facade goroutine.
type Request struct {
	ctx           context.Context
	responseChan  chan Response
	requestType   RequestType
	requestParams map[RequestParamType]interface{}
}

// Config configures a CostmapFacade.
type Config struct {
	// RollingWindow moves the master grid with the robot together with the layer's grid.
	RollingWindow bool
	// MapMinCost is the lowest cost exported by PointCloudMap.
	MapMinCost uint8
}

// New returns a facade over l and master. Start must be called before any request.
func New(l Layer, master *costmap.Costmap2D, cfg Config) CostmapFacade {
	return CostmapFacade{
		layer:         l,
		master:        master,
		rollingWindow: cfg.RollingWindow,
		mapMinCost:    cfg.MapMinCost,
		requestChan:   make(chan Request),
	}
}

func (r *Request) doWork(
	cf *CostmapFacade,
) (interface{}, error) {
	switch r.requestType {
	case update:
		p, ok := r.requestParams[robotPose].(pose)
		if !ok {
			return nil, errors.New("could not cast inputted pose to a robot pose")
		}
		if cf.rollingWindow {
			cf.master.UpdateOrigin(p.x-cf.master.SizeInMetersX()/2, p.y-cf.master.SizeInMetersY()/2)
		}
		return cf.updateCycle(r.ctx, p), nil
	case reset:
		cf.layer.Reset()
		cf.master.ResetMaps()
		return nil, nil
	case activate:
		cf.layer.Activate()
		return nil, nil
	case deactivate:
		cf.layer.Deactivate()
		return nil, nil
	case addStaticObservation:
		obs, ok := r.requestParams[staticObservation].(observation.Observation)
		if !ok {
			return nil, errors.New("could not cast inputted observation to type observation.Observation")
		}
		marking, clearing, err := r.flags()
		if err != nil {
			return nil, err
		}
		cf.layer.AddStaticObservation(obs, marking, clearing)
		return nil, nil
	case clearStaticObservations:
		marking, clearing, err := r.flags()
		if err != nil {
			return nil, err
		}
		cf.layer.ClearStaticObservations(marking, clearing)
		return nil, nil
	case addExtraBounds:
		b, ok := r.requestParams[extraBounds].([4]float64)
		if !ok {
			return nil, errors.New("could not cast inputted bounds to a rectangle")
		}
		cf.layer.AddExtraBounds(b[0], b[1], b[2], b[3])
		return nil, nil
	case isCurrent:
		return cf.layer.IsCurrent(), nil
	case masterCopy:
		return cf.master.Clone(), nil
	case pointCloudMap:
		return dataprocess.GridToPCD(cf.master, cf.mapMinCost)
	}
	return nil, fmt.Errorf("no worktype found for: %v", r.requestType)
}

func (r *Request) flags() (bool, bool, error) {
	marking, ok := r.requestParams[markingFlag].(bool)
	if !ok {
		return false, false, errors.New("could not cast inputted marking flag to bool")
	}
	clearing, ok := r.requestParams[clearingFlag].(bool)
	if !ok {
		return false, false, errors.New("could not cast inputted clearing flag to bool")
	}
	return marking, clearing, nil
}

func (cf *CostmapFacade) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := Request{
		ctx:           ctx,
		responseChan:  make(chan Response, 1),
		requestType:   requestType,
		requestParams: inputs,
	}

	// wait until the goroutine is free (and timeout if needed)
	select {
	case cf.requestChan <- req:
		select {
		case response := <-req.responseChan:
			return response.result, response.err
		case <-ctx.Done():
			msg := "timeout reading from costmap"
			return nil, multierr.Combine(errors.New(msg), ctx.Err())
		}
	case <-ctx.Done():
		msg := "timeout writing to costmap"
		return nil, multierr.Combine(errors.New(msg), ctx.Err())
	}
}

func (cf *CostmapFacade) startGoroutine(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case workToDo := <-cf.requestChan:
				result, err := workToDo.doWork(cf)
				workToDo.responseChan <- Response{result: result, err: err}
			}
		}
	}()
}

// updateCycle resets the master cells the layer touched this cycle before the layer writes
// its costs into them, so cleared cells do not linger in the master grid.
func (cf *CostmapFacade) updateCycle(ctx context.Context, p pose) layer.CycleResult {
	bounds := costmap.NewBounds()
	cf.layer.UpdateBounds(ctx, p.x, p.y, p.yaw, bounds)

	result := layer.CycleResult{Bounds: bounds, Current: cf.layer.IsCurrent()}
	minI, minJ, maxI, maxJ, ok := cf.master.CellWindow(bounds)
	if !ok {
		return result
	}
	cf.master.ResetMap(minI, minJ, maxI, maxJ)
	cf.layer.UpdateCosts(ctx, cf.master, minI, minJ, maxI, maxJ)

	result.Combined = true
	result.MinI, result.MinJ, result.MaxI, result.MaxJ = minI, minJ, maxI, maxJ
	return result
}
