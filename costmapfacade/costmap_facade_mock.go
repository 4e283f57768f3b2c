package costmapfacade

import (
	"context"
	"sync"
	"time"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/layer"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

// Mock represents a fake instance of costmapfacade.
type Mock struct {
	CostmapFacade
	requestFunc func(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{},
		timeout time.Duration,
	) (interface{}, error)
	startGoroutineFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	StartFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	UpdateFunc func(
		ctx context.Context,
		timeout time.Duration,
		x, y, yaw float64,
	) (layer.CycleResult, error)
	ResetFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	ActivateFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	DeactivateFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	AddStaticObservationFunc func(
		ctx context.Context,
		timeout time.Duration,
		obs observation.Observation,
		marking, clearing bool,
	) error
	ClearStaticObservationsFunc func(
		ctx context.Context,
		timeout time.Duration,
		marking, clearing bool,
	) error
	AddExtraBoundsFunc func(
		ctx context.Context,
		timeout time.Duration,
		minX, minY, maxX, maxY float64,
	) error
	IsCurrentFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (bool, error)
	CostmapFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (*costmap.Costmap2D, error)
	PointCloudMapFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
}

// request calls the injected requestFunc or the real version.
func (cf *Mock) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	if cf.requestFunc == nil {
		return cf.CostmapFacade.request(ctxParent, requestType, inputs, timeout)
	}
	return cf.requestFunc(ctxParent, requestType, inputs, timeout)
}

// startGoroutine calls the injected startGoroutineFunc or the real version.
func (cf *Mock) startGoroutine(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	if cf.startGoroutineFunc == nil {
		cf.CostmapFacade.startGoroutine(ctx, activeBackgroundWorkers)
		return
	}
	cf.startGoroutineFunc(ctx, activeBackgroundWorkers)
}

// Start calls the injected StartFunc or the real version.
func (cf *Mock) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	if cf.StartFunc == nil {
		cf.CostmapFacade.Start(ctx, activeBackgroundWorkers)
		return
	}
	cf.StartFunc(ctx, activeBackgroundWorkers)
}

// Update calls the injected UpdateFunc or the real version.
func (cf *Mock) Update(ctx context.Context, timeout time.Duration, x, y, yaw float64) (layer.CycleResult, error) {
	if cf.UpdateFunc == nil {
		return cf.CostmapFacade.Update(ctx, timeout, x, y, yaw)
	}
	return cf.UpdateFunc(ctx, timeout, x, y, yaw)
}

// Reset calls the injected ResetFunc or the real version.
func (cf *Mock) Reset(ctx context.Context, timeout time.Duration) error {
	if cf.ResetFunc == nil {
		return cf.CostmapFacade.Reset(ctx, timeout)
	}
	return cf.ResetFunc(ctx, timeout)
}

// Activate calls the injected ActivateFunc or the real version.
func (cf *Mock) Activate(ctx context.Context, timeout time.Duration) error {
	if cf.ActivateFunc == nil {
		return cf.CostmapFacade.Activate(ctx, timeout)
	}
	return cf.ActivateFunc(ctx, timeout)
}

// Deactivate calls the injected DeactivateFunc or the real version.
func (cf *Mock) Deactivate(ctx context.Context, timeout time.Duration) error {
	if cf.DeactivateFunc == nil {
		return cf.CostmapFacade.Deactivate(ctx, timeout)
	}
	return cf.DeactivateFunc(ctx, timeout)
}

// AddStaticObservation calls the injected AddStaticObservationFunc or the real version.
func (cf *Mock) AddStaticObservation(
	ctx context.Context,
	timeout time.Duration,
	obs observation.Observation,
	marking, clearing bool,
) error {
	if cf.AddStaticObservationFunc == nil {
		return cf.CostmapFacade.AddStaticObservation(ctx, timeout, obs, marking, clearing)
	}
	return cf.AddStaticObservationFunc(ctx, timeout, obs, marking, clearing)
}

// ClearStaticObservations calls the injected ClearStaticObservationsFunc or the real version.
func (cf *Mock) ClearStaticObservations(ctx context.Context, timeout time.Duration, marking, clearing bool) error {
	if cf.ClearStaticObservationsFunc == nil {
		return cf.CostmapFacade.ClearStaticObservations(ctx, timeout, marking, clearing)
	}
	return cf.ClearStaticObservationsFunc(ctx, timeout, marking, clearing)
}

// AddExtraBounds calls the injected AddExtraBoundsFunc or the real version.
func (cf *Mock) AddExtraBounds(ctx context.Context, timeout time.Duration, minX, minY, maxX, maxY float64) error {
	if cf.AddExtraBoundsFunc == nil {
		return cf.CostmapFacade.AddExtraBounds(ctx, timeout, minX, minY, maxX, maxY)
	}
	return cf.AddExtraBoundsFunc(ctx, timeout, minX, minY, maxX, maxY)
}

// IsCurrent calls the injected IsCurrentFunc or the real version.
func (cf *Mock) IsCurrent(ctx context.Context, timeout time.Duration) (bool, error) {
	if cf.IsCurrentFunc == nil {
		return cf.CostmapFacade.IsCurrent(ctx, timeout)
	}
	return cf.IsCurrentFunc(ctx, timeout)
}

// Costmap calls the injected CostmapFunc or the real version.
func (cf *Mock) Costmap(ctx context.Context, timeout time.Duration) (*costmap.Costmap2D, error) {
	if cf.CostmapFunc == nil {
		return cf.CostmapFacade.Costmap(ctx, timeout)
	}
	return cf.CostmapFunc(ctx, timeout)
}

// PointCloudMap calls the injected PointCloudMapFunc or the real version.
func (cf *Mock) PointCloudMap(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if cf.PointCloudMapFunc == nil {
		return cf.CostmapFacade.PointCloudMap(ctx, timeout)
	}
	return cf.PointCloudMapFunc(ctx, timeout)
}

// LayerMock represents a fake instance of the obstacle layer.
type LayerMock struct {
	UpdateBoundsFunc            func(ctx context.Context, robotX, robotY, robotYaw float64, bounds *costmap.Bounds)
	UpdateCostsFunc             func(ctx context.Context, master *costmap.Costmap2D, minI, minJ, maxI, maxJ int)
	ResetFunc                   func()
	ActivateFunc                func()
	DeactivateFunc              func()
	IsCurrentFunc               func() bool
	AddStaticObservationFunc    func(obs observation.Observation, marking, clearing bool)
	ClearStaticObservationsFunc func(marking, clearing bool)
	AddExtraBoundsFunc          func(minX, minY, maxX, maxY float64)
}

// UpdateBounds calls the injected UpdateBoundsFunc.
func (l *LayerMock) UpdateBounds(ctx context.Context, robotX, robotY, robotYaw float64, bounds *costmap.Bounds) {
	if l.UpdateBoundsFunc != nil {
		l.UpdateBoundsFunc(ctx, robotX, robotY, robotYaw, bounds)
	}
}

// UpdateCosts calls the injected UpdateCostsFunc.
func (l *LayerMock) UpdateCosts(ctx context.Context, master *costmap.Costmap2D, minI, minJ, maxI, maxJ int) {
	if l.UpdateCostsFunc != nil {
		l.UpdateCostsFunc(ctx, master, minI, minJ, maxI, maxJ)
	}
}

// Reset calls the injected ResetFunc.
func (l *LayerMock) Reset() {
	if l.ResetFunc != nil {
		l.ResetFunc()
	}
}

// Activate calls the injected ActivateFunc.
func (l *LayerMock) Activate() {
	if l.ActivateFunc != nil {
		l.ActivateFunc()
	}
}

// Deactivate calls the injected DeactivateFunc.
func (l *LayerMock) Deactivate() {
	if l.DeactivateFunc != nil {
		l.DeactivateFunc()
	}
}

// IsCurrent calls the injected IsCurrentFunc or returns true.
func (l *LayerMock) IsCurrent() bool {
	if l.IsCurrentFunc == nil {
		return true
	}
	return l.IsCurrentFunc()
}

// AddStaticObservation calls the injected AddStaticObservationFunc.
func (l *LayerMock) AddStaticObservation(obs observation.Observation, marking, clearing bool) {
	if l.AddStaticObservationFunc != nil {
		l.AddStaticObservationFunc(obs, marking, clearing)
	}
}

// ClearStaticObservations calls the injected ClearStaticObservationsFunc.
func (l *LayerMock) ClearStaticObservations(marking, clearing bool) {
	if l.ClearStaticObservationsFunc != nil {
		l.ClearStaticObservationsFunc(marking, clearing)
	}
}

// AddExtraBounds calls the injected AddExtraBoundsFunc.
func (l *LayerMock) AddExtraBounds(minX, minY, maxX, maxY float64) {
	if l.AddExtraBoundsFunc != nil {
		l.AddExtraBoundsFunc(minX, minY, maxX, maxY)
	}
}
