package sensors

import (
	"context"
	"image/color"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/utils/contextutils"
)

// BadTime can be used to represent something that should cause an error while parsing it as a time.
const BadTime = "NOT A TIME"

// TestTimestamp can be used to test specific timestamps provided by a replay sensor.
var TestTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05.999999Z")

// TestSensor represents sensors used for testing.
type TestSensor string

const (
	// InvalidSensorTestErrMsg represents an error message that indicates that the sensor is invalid.
	InvalidSensorTestErrMsg = "invalid test sensor"

	// GoodLidar is a lidar that works as expected and returns a pointcloud.
	GoodLidar TestSensor = "good_lidar"
	// WarmingUpLidar is a lidar whose NextPointCloud function returns a "warming up" error once.
	WarmingUpLidar TestSensor = "warming_up_lidar"
	// LidarWithErroringFunctions is a lidar whose functions return errors.
	LidarWithErroringFunctions TestSensor = "lidar_with_erroring_functions"
	// ReplayLidar is a lidar that works as expected and returns a pointcloud with a replay timestamp.
	ReplayLidar TestSensor = "replay_lidar"
	// InvalidReplayLidar is a lidar whose meta timestamp is invalid.
	InvalidReplayLidar TestSensor = "invalid_replay_lidar"
	// FinishedReplayLidar is a lidar whose NextPointCloud function returns an end of dataset error.
	FinishedReplayLidar TestSensor = "finished_replay_lidar"
)

// TestPoints are the sensor frame points every working test lidar returns.
var TestPoints = []r3.Vector{{X: 1000, Y: 0, Z: 100}, {X: 0, Y: 2000, Z: 100}}

var testLidars = map[TestSensor]func() PointCloudSource{
	GoodLidar:                  getGoodLidar,
	WarmingUpLidar:             getWarmingUpLidar,
	LidarWithErroringFunctions: getLidarWithErroringFunctions,
	ReplayLidar:                func() PointCloudSource { return getReplayLidar(TestTimestamp) },
	InvalidReplayLidar:         func() PointCloudSource { return getReplayLidar(BadTime) },
	FinishedReplayLidar:        getFinishedReplayLidar,
}

// PointCloudSourceFunc adapts a function to a PointCloudSource.
type PointCloudSourceFunc func(ctx context.Context) (pointcloud.PointCloud, error)

// NextPointCloud calls f.
func (f PointCloudSourceFunc) NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error) {
	return f(ctx)
}

// SetupSource returns the point cloud source for a test sensor, or nil for unknown names.
func SetupSource(lidarName TestSensor) PointCloudSource {
	if getLidarFunc, ok := testLidars[lidarName]; ok {
		return getLidarFunc()
	}
	return nil
}

func testCloud() pointcloud.PointCloud {
	pc := pointcloud.NewWithPrealloc(len(TestPoints))
	for _, p := range TestPoints {
		//nolint:errcheck
		pc.Set(p, pointcloud.NewColoredData(color.NRGBA{G: 255, A: 255}))
	}
	return pc
}

func getGoodLidar() PointCloudSource {
	return PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		return testCloud(), nil
	})
}

func getWarmingUpLidar() PointCloudSource {
	counter := 0
	return PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		counter++
		if counter == 1 {
			return nil, errors.Errorf("warming up %d", counter)
		}
		return testCloud(), nil
	})
}

func getLidarWithErroringFunctions() PointCloudSource {
	return PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		return nil, errors.New(InvalidSensorTestErrMsg)
	})
}

func getReplayLidar(testTime string) PointCloudSource {
	return PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		md := ctx.Value(contextutils.MetadataContextKey)
		if mdMap, ok := md.(map[string][]string); ok {
			mdMap[contextutils.TimeRequestedMetadataKey] = []string{testTime}
		}
		return testCloud(), nil
	})
}

func getFinishedReplayLidar() PointCloudSource {
	return PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		return nil, ErrEndOfDataset
	})
}
