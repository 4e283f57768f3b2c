package sensors

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils/contextutils"
)

// MillimetersPerMeter converts between the millimeters sensors and poses report and the
// meters the costmap is kept in.
const MillimetersPerMeter = 1000.0

// PointCloudSource produces point clouds in the sensor frame, in millimeters.
type PointCloudSource interface {
	NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error)
}

// Transformer looks up the world pose of a sensor, in millimeters, at the time it captured a reading.
type Transformer interface {
	SensorPose(ctx context.Context, sensorName string, captureTime time.Time) (spatialmath.Pose, error)
}

// TimedPointCloudSource describes a sensor that reports world frame point clouds together
// with the sensor origin, the time the reading is from and whether it is from a replay sensor.
type TimedPointCloudSource interface {
	Name() string
	DataFrequencyHz() int
	TimedPointCloudReading(ctx context.Context) (TimedPointCloudReadingResponse, error)
}

// TimedPointCloudReadingResponse is a world frame point cloud with the position of the
// sensor that captured it, both in meters.
type TimedPointCloudReadingResponse struct {
	Cloud          pointcloud.PointCloud
	Origin         r3.Vector
	ReadingTime    time.Time
	IsReplaySensor bool
}

// Lidar is a ranging sensor whose clouds are moved into the world frame by a Transformer.
type Lidar struct {
	name            string
	dataFrequencyHz int
	Source          PointCloudSource
	Transformer     Transformer
}

// Name returns the name of the lidar.
func (lidar Lidar) Name() string {
	return lidar.name
}

// DataFrequencyHz returns the rate at which the lidar is polled.
func (lidar Lidar) DataFrequencyHz() int {
	return lidar.dataFrequencyHz
}

// TimedPointCloudReading returns a world frame cloud from the lidar, the sensor origin,
// the time the reading is from and whether it was a replay sensor or not.
func (lidar Lidar) TimedPointCloudReading(ctx context.Context) (TimedPointCloudReadingResponse, error) {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::sensors::TimedPointCloudReading")
	defer span.End()

	replay := false

	ctxWithMetadata, md := contextutils.ContextWithMetadata(ctx)
	readingPc, err := lidar.Source.NextPointCloud(ctxWithMetadata)
	if err != nil {
		return TimedPointCloudReadingResponse{}, errors.Wrap(err, "NextPointCloud error")
	}
	readingTime := time.Now().UTC()

	if timeRequestedMetadata, ok := md[contextutils.TimeRequestedMetadataKey]; ok {
		replay = true
		if readingTime, err = time.Parse(time.RFC3339Nano, timeRequestedMetadata[0]); err != nil {
			return TimedPointCloudReadingResponse{}, errors.Wrap(err, replayTimestampErrorMessage)
		}
	}

	pose, err := lidar.Transformer.SensorPose(ctx, lidar.name, readingTime)
	if err != nil {
		return TimedPointCloudReadingResponse{}, errors.Wrapf(err, "error looking up the pose of %v", lidar.name)
	}
	worldPc, err := TransformPointCloud(readingPc, pose)
	if err != nil {
		return TimedPointCloudReadingResponse{}, err
	}

	return TimedPointCloudReadingResponse{
		Cloud:          worldPc,
		Origin:         pose.Point().Mul(1 / MillimetersPerMeter),
		ReadingTime:    readingTime,
		IsReplaySensor: replay,
	}, nil
}

// NewLidar returns a new Lidar.
func NewLidar(
	ctx context.Context,
	name string,
	source PointCloudSource,
	transformer Transformer,
	dataFrequencyHz int,
	logger logging.Logger,
) (Lidar, error) {
	_, span := trace.StartSpan(ctx, "obstaclelayer::sensors::NewLidar")
	defer span.End()

	if name == "" {
		return Lidar{}, errors.New("configuring lidar error: sensor name must not be empty")
	}
	if source == nil {
		return Lidar{}, errors.Errorf("configuring lidar error: no point cloud source for %v", name)
	}
	if transformer == nil {
		return Lidar{}, errors.Errorf("configuring lidar error: no transformer for %v", name)
	}
	if dataFrequencyHz <= 0 {
		return Lidar{}, errors.Errorf("configuring lidar error: data frequency of %v must be positive, got %d", name, dataFrequencyHz)
	}
	logger.Debugw("created lidar", "name", name, "data_frequency_hz", dataFrequencyHz)

	return Lidar{
		name:            name,
		dataFrequencyHz: dataFrequencyHz,
		Source:          source,
		Transformer:     transformer,
	}, nil
}

// TransformPointCloud returns a copy of pc with every point moved by pose. Both pc and pose
// are in millimeters; the returned cloud is in meters.
func TransformPointCloud(pc pointcloud.PointCloud, pose spatialmath.Pose) (pointcloud.PointCloud, error) {
	out := pointcloud.NewWithPrealloc(pc.Size())
	var setErr error
	pc.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		world := spatialmath.Compose(pose, spatialmath.NewPoseFromPoint(p)).Point().Mul(1 / MillimetersPerMeter)
		if err := out.Set(world, d); err != nil {
			setErr = errors.Wrap(err, "error transforming point cloud")
			return false
		}
		return true
	})
	if setErr != nil {
		return nil, setErr
	}
	return out, nil
}

// FixedTransformer reports the same pose for every sensor at all times. It suits sensors
// mounted on a stationary base.
type FixedTransformer struct {
	Pose spatialmath.Pose
}

// SensorPose returns the fixed pose.
func (ft FixedTransformer) SensorPose(ctx context.Context, sensorName string, captureTime time.Time) (spatialmath.Pose, error) {
	if ft.Pose == nil {
		return spatialmath.NewZeroPose(), nil
	}
	return ft.Pose, nil
}
