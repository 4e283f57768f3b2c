package obstaclelayer

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"
)

func TestMountedTransformer(t *testing.T) {
	svc := &Service{robotPose: spatialmath.NewZeroPose()}
	mt := mountedTransformer{
		svc:   svc,
		mount: spatialmath.NewPoseFromPoint(r3.Vector{X: 500, Z: 200}),
	}

	t.Run("places the sensor at its mount on a robot at the origin", func(t *testing.T) {
		pose, err := mt.SensorPose(context.Background(), "lidar", time.Now())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), r3.Vector{X: 500, Z: 200}, 1e-9), test.ShouldBeTrue)
	})

	t.Run("follows the latest robot pose", func(t *testing.T) {
		svc.setRobotPose(spatialmath.NewPose(r3.Vector{X: 1000}, &spatialmath.OrientationVectorDegrees{OZ: 1, Theta: 90}))

		pose, err := mt.SensorPose(context.Background(), "lidar", time.Now())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.Point().X, test.ShouldAlmostEqual, 1000)
		test.That(t, pose.Point().Y, test.ShouldAlmostEqual, 500)
		test.That(t, pose.Point().Z, test.ShouldAlmostEqual, 200)
		test.That(t, pose.Orientation().EulerAngles().Yaw, test.ShouldAlmostEqual, math.Pi/2)
	})
}

func TestToChunkedFunc(t *testing.T) {
	b := make([]byte, chunkSizeBytes+10)
	b[chunkSizeBytes] = 7
	f := toChunkedFunc(b)

	chunk, err := f()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(chunk), test.ShouldEqual, chunkSizeBytes)

	chunk, err = f()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(chunk), test.ShouldEqual, 10)
	test.That(t, chunk[0], test.ShouldEqual, 7)

	_, err = f()
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)
}
