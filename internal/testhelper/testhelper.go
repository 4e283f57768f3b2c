// Package testhelper builds obstacle layer services and configs for tests. It contains helper
// variables and functions that are used across the tests in the viam-obstacle-layer repo.
package testhelper

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"
	"go.viam.com/utils"

	obstaclelayer "github.com/viam-modules/viam-obstacle-layer"
	"github.com/viam-modules/viam-obstacle-layer/config"
	"github.com/viam-modules/viam-obstacle-layer/costmap"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

const (
	// SensorValidationMaxTimeoutForTest is used in ValidateGetData to ensure that every test
	// source returns data within an acceptable time.
	SensorValidationMaxTimeoutForTest = 1 * time.Second
	// FacadeTimeoutForTest bounds every costmap request made by a test service.
	FacadeTimeoutForTest = 5 * time.Second
	// ResolutionForTest keeps the test points of the test lidars on exact cell boundaries.
	ResolutionForTest = 0.5
)

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// NewConfig returns a 6m by 6m layer centred on the world origin that reads from the named
// test sensors. Every source marks and clears and keeps only its latest reading.
func NewConfig(dataDirectory string, sensors ...s.TestSensor) *config.Config {
	cfg := &config.Config{
		WidthMeters:       6,
		HeightMeters:      6,
		ResolutionMeters:  ResolutionForTest,
		OriginX:           -3,
		OriginY:           -3,
		UpdateFrequencyHz: Float64Ptr(20),
		DataDirectory:     dataDirectory,
	}
	for _, sensor := range sensors {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Name:              string(sensor),
			DataType:          config.PointCloud2,
			MaxObstacleHeight: Float64Ptr(2),
			Clearing:          BoolPtr(true),
			DataFrequencyHz:   IntPtr(20),
		})
	}
	return cfg
}

// SetupDeps returns the test point cloud sources for the given names. Unknown names are left
// out so that services built from them fail to configure.
func SetupDeps(names []string) map[string]s.PointCloudSource {
	deps := make(map[string]s.PointCloudSource, len(names))
	for _, name := range names {
		if source := s.SetupSource(s.TestSensor(name)); source != nil {
			deps[name] = source
		}
	}
	return deps
}

// CreateService validates cfg and creates an obstacle layer service from the test sources it names.
func CreateService(
	t *testing.T,
	cfg *config.Config,
	logger logging.Logger,
) (*obstaclelayer.Service, error) {
	t.Helper()

	ctx := context.Background()

	sourceDeps, err := cfg.Validate("path")
	if err != nil {
		return nil, err
	}

	svc, err := obstaclelayer.New(
		ctx,
		cfg,
		SetupDeps(sourceDeps),
		logger,
		FacadeTimeoutForTest,
		SensorValidationMaxTimeoutForTest,
	)
	if err != nil {
		test.That(t, svc, test.ShouldBeNil)
		return nil, err
	}

	test.That(t, svc, test.ShouldNotBeNil)

	return svc, nil
}

// WaitForCost runs update cycles at the zero pose until the master grid holds cost at the
// world point (wx, wy), or fails the test once timeout has elapsed.
func WaitForCost(
	ctx context.Context,
	t *testing.T,
	svc *obstaclelayer.Service,
	wx, wy float64,
	cost uint8,
	timeout time.Duration,
) *costmap.Costmap2D {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		_, err := svc.Update(ctx, spatialmath.NewZeroPose())
		test.That(t, err, test.ShouldBeNil)

		grid, err := svc.Costmap(ctx)
		test.That(t, err, test.ShouldBeNil)
		mx, my, ok := grid.WorldToMap(wx, wy)
		test.That(t, ok, test.ShouldBeTrue)
		if grid.Cost(mx, my) == cost {
			return grid
		}

		if time.Now().After(deadline) {
			t.Fatalf("cell at (%v, %v) never reached cost %d, last cost %d", wx, wy, cost, grid.Cost(mx, my))
		}
		if !utils.SelectContextOrWait(ctx, 20*time.Millisecond) {
			t.Fatal(ctx.Err())
		}
	}
}
