package costmapfacade

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/test"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/layer"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

const timeoutErrMessage = "timeout reading from costmap"

func newTestMaster() *costmap.Costmap2D {
	return costmap.New(10, 10, 1, 0, 0, costmap.NoInformation)
}

func TestRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		l := LayerMock{}
		l.IsCurrentFunc = func() bool {
			return false
		}

		cf := New(&l, newTestMaster(), Config{})
		cf.startGoroutine(cancelCtx, &activeBackgroundWorkers)

		res, err := cf.request(cancelCtx, isCurrent, map[RequestParamType]interface{}{}, 5*time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldEqual, false)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("failed request", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		cf := New(&LayerMock{}, newTestMaster(), Config{})
		cf.startGoroutine(cancelCtx, &activeBackgroundWorkers)

		_, err := cf.request(cancelCtx, addStaticObservation, map[RequestParamType]interface{}{}, 5*time.Second)
		test.That(t, err, test.ShouldBeError,
			errors.New("could not cast inputted observation to type observation.Observation"))

		_, err = cf.request(cancelCtx, RequestType(99), map[RequestParamType]interface{}{}, 5*time.Second)
		test.That(t, err, test.ShouldBeError)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("request with a cancelled context", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		cf := New(&LayerMock{}, newTestMaster(), Config{})
		cf.startGoroutine(cancelCtx, &activeBackgroundWorkers)
		cancelFunc()
		activeBackgroundWorkers.Wait()

		_, err := cf.request(cancelCtx, reset, map[RequestParamType]interface{}{}, 5*time.Second)
		test.That(t, err, test.ShouldBeError)
		errMsg := "timeout writing to costmap"
		expectedErr := multierr.Combine(errors.New(errMsg), context.Canceled)
		test.That(t, err, test.ShouldResemble, expectedErr)
	})

	t.Run("request with a work function that takes longer than the timeout", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		l := LayerMock{}
		l.ResetFunc = func() {
			time.Sleep(50 * time.Millisecond)
		}

		cf := New(&l, newTestMaster(), Config{})
		cf.startGoroutine(cancelCtx, &activeBackgroundWorkers)

		_, err := cf.request(cancelCtx, reset, map[RequestParamType]interface{}{}, 10*time.Millisecond)
		test.That(t, err, test.ShouldBeError)
		expectedErr := multierr.Combine(errors.New(timeoutErrMessage), context.DeadlineExceeded)
		test.That(t, err, test.ShouldResemble, expectedErr)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})
}

func TestUpdate(t *testing.T) {
	t.Run("passes the pose and master grid to the layer", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		master := newTestMaster()
		var gotMaster *costmap.Costmap2D
		var gotX, gotY, gotYaw float64
		var gotWindow [4]int
		l := LayerMock{}
		l.UpdateBoundsFunc = func(ctx context.Context, x, y, yaw float64, bounds *costmap.Bounds) {
			gotX, gotY, gotYaw = x, y, yaw
			bounds.Touch(0.5, 0.5)
			bounds.Touch(2.5, 3.5)
		}
		l.UpdateCostsFunc = func(ctx context.Context, m *costmap.Costmap2D, minI, minJ, maxI, maxJ int) {
			gotMaster = m
			gotWindow = [4]int{minI, minJ, maxI, maxJ}
		}

		cf := New(&l, master, Config{})
		cf.Start(cancelCtx, &activeBackgroundWorkers)

		result, err := cf.Update(cancelCtx, time.Second, 1.5, 2.5, 0.3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Combined, test.ShouldBeTrue)
		test.That(t, result.Current, test.ShouldBeTrue)
		test.That(t, result.MaxI, test.ShouldEqual, 3)
		test.That(t, result.MaxJ, test.ShouldEqual, 4)
		test.That(t, gotWindow, test.ShouldResemble, [4]int{0, 0, 3, 4})
		test.That(t, gotMaster, test.ShouldEqual, master)
		test.That(t, gotX, test.ShouldEqual, 1.5)
		test.That(t, gotY, test.ShouldEqual, 2.5)
		test.That(t, gotYaw, test.ShouldEqual, 0.3)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("resets only the touched window of the master grid", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		master := costmap.New(10, 10, 1, 0, 0, costmap.FreeSpace)
		master.SetCost(1, 1, costmap.LethalObstacle)
		master.SetCost(8, 8, costmap.LethalObstacle)
		l := LayerMock{}
		l.UpdateBoundsFunc = func(ctx context.Context, x, y, yaw float64, bounds *costmap.Bounds) {
			bounds.Touch(0.5, 0.5)
			bounds.Touch(2.5, 2.5)
		}

		cf := New(&l, master, Config{})
		cf.Start(cancelCtx, &activeBackgroundWorkers)

		_, err := cf.Update(cancelCtx, time.Second, 0, 0, 0)
		test.That(t, err, test.ShouldBeNil)

		grid, err := cf.Costmap(cancelCtx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, grid.Cost(1, 1), test.ShouldEqual, costmap.FreeSpace)
		test.That(t, grid.Cost(8, 8), test.ShouldEqual, costmap.LethalObstacle)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("does not combine when nothing was touched", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		updateCostsCalled := false
		l := LayerMock{}
		l.IsCurrentFunc = func() bool { return false }
		l.UpdateCostsFunc = func(ctx context.Context, m *costmap.Costmap2D, minI, minJ, maxI, maxJ int) {
			updateCostsCalled = true
		}

		cf := New(&l, newTestMaster(), Config{})
		cf.Start(cancelCtx, &activeBackgroundWorkers)

		result, err := cf.Update(cancelCtx, time.Second, 0, 0, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Combined, test.ShouldBeFalse)
		test.That(t, result.Current, test.ShouldBeFalse)
		test.That(t, updateCostsCalled, test.ShouldBeFalse)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("moves the master grid with the robot in a rolling window", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		master := newTestMaster()
		cf := New(&LayerMock{}, master, Config{RollingWindow: true})
		cf.Start(cancelCtx, &activeBackgroundWorkers)

		_, err := cf.Update(cancelCtx, time.Second, 20, 30, 0)
		test.That(t, err, test.ShouldBeNil)

		grid, err := cf.Costmap(cancelCtx, time.Second)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, grid.OriginX(), test.ShouldEqual, 15)
		test.That(t, grid.OriginY(), test.ShouldEqual, 25)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})
}

func TestLayerRequests(t *testing.T) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	activeBackgroundWorkers := sync.WaitGroup{}

	var calls []string
	var gotObs observation.Observation
	var gotBounds [4]float64
	l := LayerMock{}
	l.ResetFunc = func() { calls = append(calls, "reset") }
	l.ActivateFunc = func() { calls = append(calls, "activate") }
	l.DeactivateFunc = func() { calls = append(calls, "deactivate") }
	l.AddStaticObservationFunc = func(obs observation.Observation, marking, clearing bool) {
		gotObs = obs
		test.That(t, marking, test.ShouldBeTrue)
		test.That(t, clearing, test.ShouldBeFalse)
		calls = append(calls, "add")
	}
	l.ClearStaticObservationsFunc = func(marking, clearing bool) {
		test.That(t, marking, test.ShouldBeFalse)
		test.That(t, clearing, test.ShouldBeTrue)
		calls = append(calls, "clear")
	}
	l.AddExtraBoundsFunc = func(minX, minY, maxX, maxY float64) {
		gotBounds = [4]float64{minX, minY, maxX, maxY}
	}

	master := newTestMaster()
	master.SetCost(1, 1, costmap.LethalObstacle)
	cf := New(&l, master, Config{})
	cf.Start(cancelCtx, &activeBackgroundWorkers)

	obs := observation.New(r3.Vector{}, []r3.Vector{{X: 1, Y: 1}}, 2.5, 3, time.Time{})
	test.That(t, cf.Deactivate(cancelCtx, time.Second), test.ShouldBeNil)
	test.That(t, cf.Activate(cancelCtx, time.Second), test.ShouldBeNil)
	test.That(t, cf.AddStaticObservation(cancelCtx, time.Second, obs, true, false), test.ShouldBeNil)
	test.That(t, cf.ClearStaticObservations(cancelCtx, time.Second, false, true), test.ShouldBeNil)
	test.That(t, cf.AddExtraBounds(cancelCtx, time.Second, -1, -2, 3, 4), test.ShouldBeNil)
	test.That(t, cf.Reset(cancelCtx, time.Second), test.ShouldBeNil)

	test.That(t, calls, test.ShouldResemble, []string{"deactivate", "activate", "add", "clear", "reset"})
	test.That(t, gotObs, test.ShouldResemble, obs)
	test.That(t, gotBounds, test.ShouldResemble, [4]float64{-1, -2, 3, 4})

	grid, err := cf.Costmap(cancelCtx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grid.Cost(1, 1), test.ShouldEqual, costmap.NoInformation)

	cancelFunc()
	activeBackgroundWorkers.Wait()
}

func TestObstacleLayerThroughFacade(t *testing.T) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	activeBackgroundWorkers := sync.WaitGroup{}

	grid := costmap.New(10, 10, 1, 0, 0, costmap.FreeSpace)
	l := layer.New(layer.Config{
		Enabled:           true,
		MaxObstacleHeight: 2,
		CombinationMethod: layer.Maximum,
	}, grid, logging.NewTestLogger(t))
	master := costmap.NewMatching(grid, costmap.NoInformation)

	cf := New(l, master, Config{MapMinCost: costmap.LethalObstacle})
	cf.Start(cancelCtx, &activeBackgroundWorkers)

	obs := observation.New(r3.Vector{X: 0.5, Y: 0.5}, []r3.Vector{{X: 3.5, Y: 0.5, Z: 0.5}}, 5, 5, time.Time{})
	test.That(t, cf.AddStaticObservation(cancelCtx, time.Second, obs, true, true), test.ShouldBeNil)

	result, err := cf.Update(cancelCtx, time.Second, 0.5, 0.5, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Combined, test.ShouldBeTrue)
	test.That(t, result.Current, test.ShouldBeTrue)

	current, err := cf.IsCurrent(cancelCtx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, current, test.ShouldBeTrue)

	copied, err := cf.Costmap(cancelCtx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, copied.Cost(3, 0), test.ShouldEqual, costmap.LethalObstacle)
	test.That(t, copied.Cost(1, 0), test.ShouldEqual, costmap.FreeSpace)

	// the copy is detached from the master grid
	copied.SetCost(3, 0, costmap.FreeSpace)
	again, err := cf.Costmap(cancelCtx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Cost(3, 0), test.ShouldEqual, costmap.LethalObstacle)

	pcd, err := cf.PointCloudMap(cancelCtx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	cloud, err := pointcloud.ReadPCD(bytes.NewReader(pcd))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)

	cancelFunc()
	activeBackgroundWorkers.Wait()
}

func TestMock(t *testing.T) {
	cf := Mock{}
	cf.UpdateFunc = func(ctx context.Context, timeout time.Duration, x, y, yaw float64) (layer.CycleResult, error) {
		return layer.CycleResult{}, errors.New("update failed")
	}
	cf.PointCloudMapFunc = func(ctx context.Context, timeout time.Duration) ([]byte, error) {
		return []byte("pcd"), nil
	}

	var iface Interface = &cf
	_, err := iface.Update(context.Background(), time.Second, 0, 0, 0)
	test.That(t, err, test.ShouldBeError, errors.New("update failed"))

	pcd, err := iface.PointCloudMap(context.Background(), time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pcd, test.ShouldResemble, []byte("pcd"))
}
