// Package obstaclelayer keeps a 2D obstacle costmap around a mobile robot up to date from
// its ranging sensors.
package obstaclelayer

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	viamgrpc "go.viam.com/rdk/grpc"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"github.com/viam-modules/viam-obstacle-layer/config"
	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/costmapfacade"
	"github.com/viam-modules/viam-obstacle-layer/layer"
	"github.com/viam-modules/viam-obstacle-layer/observation"
	"github.com/viam-modules/viam-obstacle-layer/postprocess"
	"github.com/viam-modules/viam-obstacle-layer/sensorprocess"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

// ErrClosed denotes that a service method was called on a closed obstacle layer.
var ErrClosed = errors.New("obstacle layer is closed")

const (
	// DefaultFacadeTimeout bounds every request to the costmap goroutine.
	DefaultFacadeTimeout = 5 * time.Second
	// DefaultSensorValidationMaxTimeout bounds the wait for the first reading of each source.
	DefaultSensorValidationMaxTimeout = 30 * time.Second
	sensorValidationInterval          = 500 * time.Millisecond
	chunkSizeBytes                    = 1 * 1024 * 1024
)

// Service wires the configured sources, their ingestion workers, the obstacle layer and the
// master grid together. The robot pose given to Update is also used to place incoming
// sensor readings in the world.
type Service struct {
	mu     sync.Mutex
	closed bool

	ingestors   []*sensorprocess.Ingestor
	layerParams config.LayerParameters

	costmapfacade costmapfacade.Interface
	facadeTimeout time.Duration

	poseMu    sync.Mutex
	robotPose spatialmath.Pose

	cancelSensorProcessFunc func()
	cancelFacadeFunc        func()
	logger                  logging.Logger
	sensorProcessWorkers    sync.WaitGroup
	facadeWorkers           sync.WaitGroup

	mapTimestamp time.Time
}

// New builds the obstacle layer described by cfg. deps holds the point cloud source of every
// configured source by name. Each source must return a reading within
// sensorValidationMaxTimeout before ingestion starts.
func New(
	ctx context.Context,
	cfg *config.Config,
	deps map[string]s.PointCloudSource,
	logger logging.Logger,
	facadeTimeout time.Duration,
	sensorValidationMaxTimeout time.Duration,
) (*Service, error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::Service::New")
	defer span.End()

	layerParams, sourceParams, err := config.GetOptionalParameters(cfg, logger)
	if err != nil {
		return nil, err
	}

	grid := cfg.Costmap(layerParams.TrackUnknownSpace)
	master := cfg.Costmap(layerParams.TrackUnknownSpace)
	obstacleLayer := layer.New(layerParams.Layer, grid, logger.Sublogger("layer"))

	cancelSensorProcessCtx, cancelSensorProcessFunc := context.WithCancel(context.Background())
	cancelFacadeCtx, cancelFacadeFunc := context.WithCancel(context.Background())

	svc := &Service{
		layerParams:             layerParams,
		facadeTimeout:           facadeTimeout,
		robotPose:               spatialmath.NewZeroPose(),
		cancelSensorProcessFunc: cancelSensorProcessFunc,
		cancelFacadeFunc:        cancelFacadeFunc,
		logger:                  logger,
		mapTimestamp:            time.Now().UTC(),
	}

	defer func() {
		if err != nil {
			logger.Errorw("New() hit error, closing...", "error", err)
			if err := svc.Close(ctx); err != nil {
				logger.Errorw("error closing out after error", "error", err)
			}
		}
	}()

	for _, sp := range sourceParams {
		var source s.TimedPointCloudSource
		source, err = s.NewLidar(ctx, sp.Buffer.Name, deps[sp.Buffer.Name],
			mountedTransformer{svc: svc, mount: sp.MountPose}, sp.DataFrequencyHz, logger)
		if err != nil {
			return nil, err
		}

		if err = s.ValidateGetData(ctx, source, sensorValidationMaxTimeout, sensorValidationInterval, logger); err != nil {
			err = errors.Wrapf(err, "failed to get data from %v", sp.Buffer.Name)
			return nil, err
		}

		buffer := observation.NewBuffer(sp.Buffer, nil, logger)
		ingestor := sensorprocess.New(sensorprocess.Config{
			Source: source,
			Buffer: buffer,
			Logger: logger,
		})
		obstacleLayer.AddSource(layer.Source{
			Buffer:     buffer,
			Marking:    sp.Marking,
			Clearing:   sp.Clearing,
			Subscriber: ingestor,
		})
		svc.ingestors = append(svc.ingestors, ingestor)
	}

	cf := costmapfacade.New(obstacleLayer, master, costmapfacade.Config{
		RollingWindow: layerParams.Layer.RollingWindow,
		MapMinCost:    costmap.LethalObstacle,
	})
	svc.costmapfacade = &cf
	svc.costmapfacade.Start(cancelFacadeCtx, &svc.facadeWorkers)

	svc.initSensorProcesses(cancelSensorProcessCtx)

	return svc, nil
}

func (svc *Service) initSensorProcesses(cancelCtx context.Context) {
	for _, ingestor := range svc.ingestors {
		svc.sensorProcessWorkers.Add(1)
		go func(ingestor *sensorprocess.Ingestor) {
			defer svc.sensorProcessWorkers.Done()
			ingestor.Start(cancelCtx)
		}(ingestor)
	}
}

// UpdateFrequencyHz returns the configured rate of update cycles.
func (svc *Service) UpdateFrequencyHz() float64 {
	return svc.layerParams.UpdateFrequencyHz
}

// Update records the robot pose, in millimetres, and runs one update cycle for it.
func (svc *Service) Update(ctx context.Context, pose spatialmath.Pose) (layer.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::Service::Update")
	defer span.End()
	if svc.isClosed() {
		svc.logger.Warn("Update called after closed")
		return layer.CycleResult{}, ErrClosed
	}

	svc.setRobotPose(pose)
	point := pose.Point().Mul(1 / s.MillimetersPerMeter)
	yaw := pose.Orientation().EulerAngles().Yaw

	result, err := svc.costmapfacade.Update(ctx, svc.facadeTimeout, point.X, point.Y, yaw)
	if err != nil {
		return layer.CycleResult{}, err
	}
	if !result.Current {
		svc.logger.Debug("obstacle layer is not current, at least one source is stale")
	}
	if result.Combined {
		svc.mu.Lock()
		svc.mapTimestamp = time.Now().UTC()
		svc.mu.Unlock()
	}
	return result, nil
}

// PointCloudMap returns a callback which will return the next chunk of the obstacle cells of
// the master grid, encoded as a binary PCD in millimetres.
func (svc *Service) PointCloudMap(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::Service::PointCloudMap")
	defer span.End()
	if svc.isClosed() {
		svc.logger.Warn("PointCloudMap called after closed")
		return nil, ErrClosed
	}

	pc, err := svc.costmapfacade.PointCloudMap(ctx, svc.facadeTimeout)
	if err != nil {
		return nil, err
	}
	return toChunkedFunc(pc), nil
}

func toChunkedFunc(b []byte) func() ([]byte, error) {
	chunk := make([]byte, chunkSizeBytes)

	reader := bytes.NewReader(b)

	f := func() ([]byte, error) {
		bytesRead, err := reader.Read(chunk)
		if err != nil {
			return nil, err
		}
		return chunk[:bytesRead], err
	}
	return f
}

// Costmap returns a copy of the master grid.
func (svc *Service) Costmap(ctx context.Context) (*costmap.Costmap2D, error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::Service::Costmap")
	defer span.End()
	if svc.isClosed() {
		svc.logger.Warn("Costmap called after closed")
		return nil, ErrClosed
	}
	return svc.costmapfacade.Costmap(ctx, svc.facadeTimeout)
}

// LatestMapInfo returns the time the master grid last received this layer's costs.
func (svc *Service) LatestMapInfo(ctx context.Context) (time.Time, error) {
	_, span := trace.StartSpan(ctx, "obstaclelayer::Service::LatestMapInfo")
	defer span.End()
	if svc.isClosed() {
		svc.logger.Warn("LatestMapInfo called after closed")
		return time.Time{}, ErrClosed
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.mapTimestamp, nil
}

// Activate resumes ingestion and resets the staleness timers of every source.
func (svc *Service) Activate(ctx context.Context) error {
	if svc.isClosed() {
		return ErrClosed
	}
	return svc.costmapfacade.Activate(ctx, svc.facadeTimeout)
}

// Deactivate pauses ingestion. Buffered readings are kept.
func (svc *Service) Deactivate(ctx context.Context) error {
	if svc.isClosed() {
		return ErrClosed
	}
	return svc.costmapfacade.Deactivate(ctx, svc.facadeTimeout)
}

// Reset clears the layer and the master grid and restarts ingestion.
func (svc *Service) Reset(ctx context.Context) error {
	if svc.isClosed() {
		return ErrClosed
	}
	return svc.costmapfacade.Reset(ctx, svc.facadeTimeout)
}

// DoCommand receives arbitrary commands.
func (svc *Service) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::Service::DoCommand")
	defer span.End()
	if svc.isClosed() {
		svc.logger.Warn("DoCommand called after closed")
		return nil, ErrClosed
	}

	if payload, ok := req[postprocess.AddCommand]; ok {
		task, err := postprocess.ParseDoCommand(payload, postprocess.Add)
		if err != nil {
			return nil, err
		}
		obs := task.Observation(config.DefaultObstacleRange, config.DefaultRaytraceRange, time.Now().UTC())
		if err := svc.costmapfacade.AddStaticObservation(ctx, svc.facadeTimeout, obs, task.Marking, task.Clearing); err != nil {
			return nil, err
		}
		return map[string]interface{}{postprocess.AddCommand: len(task.Points)}, nil
	}

	if payload, ok := req[postprocess.ClearCommand]; ok {
		task, err := postprocess.ParseDoCommand(payload, postprocess.Clear)
		if err != nil {
			return nil, err
		}
		if err := svc.costmapfacade.ClearStaticObservations(ctx, svc.facadeTimeout, task.Marking, task.Clearing); err != nil {
			return nil, err
		}
		return map[string]interface{}{postprocess.ClearCommand: true}, nil
	}

	if _, ok := req[postprocess.ResetCommand]; ok {
		if err := svc.costmapfacade.Reset(ctx, svc.facadeTimeout); err != nil {
			return nil, err
		}
		return map[string]interface{}{postprocess.ResetCommand: true}, nil
	}

	if _, ok := req[postprocess.CurrentCommand]; ok {
		current, err := svc.costmapfacade.IsCurrent(ctx, svc.facadeTimeout)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{postprocess.CurrentCommand: current}, nil
	}

	return nil, viamgrpc.UnimplementedError
}

// Close stops ingestion and the costmap goroutine.
func (svc *Service) Close(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.logger.Info("Closing obstacle layer")
	if svc.closed {
		svc.logger.Warn("Close() called multiple times")
		return nil
	}

	// stop sensor process workers
	svc.cancelSensorProcessFunc()
	svc.sensorProcessWorkers.Wait()

	// stop costmap facade workers
	svc.cancelFacadeFunc()
	svc.facadeWorkers.Wait()
	svc.closed = true

	svc.logger.Info("Closing complete")
	return nil
}

func (svc *Service) isClosed() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.closed
}

// RobotPose returns the latest robot pose given to Update, in millimetres.
func (svc *Service) RobotPose() spatialmath.Pose {
	svc.poseMu.Lock()
	defer svc.poseMu.Unlock()
	return svc.robotPose
}

func (svc *Service) setRobotPose(pose spatialmath.Pose) {
	svc.poseMu.Lock()
	defer svc.poseMu.Unlock()
	svc.robotPose = pose
}

// mountedTransformer places a sensor mounted at mount on the robot at the latest robot pose.
type mountedTransformer struct {
	svc   *Service
	mount spatialmath.Pose
}

// SensorPose composes the latest robot pose with the sensor mount.
func (mt mountedTransformer) SensorPose(ctx context.Context, sensorName string, captureTime time.Time) (spatialmath.Pose, error) {
	return spatialmath.Compose(mt.svc.RobotPose(), mt.mount), nil
}
