// Package inject provides dependency injected structures for mocking interfaces.
package inject

import (
	"context"

	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

// TimedPointCloudSource is an injected TimedPointCloudSource.
type TimedPointCloudSource struct {
	s.Lidar
	NameFunc                   func() string
	DataFrequencyHzFunc        func() int
	TimedPointCloudReadingFunc func(ctx context.Context) (s.TimedPointCloudReadingResponse, error)
}

// Name calls the injected Name or the real version.
func (tpcs *TimedPointCloudSource) Name() string {
	if tpcs.NameFunc == nil {
		return tpcs.Lidar.Name()
	}
	return tpcs.NameFunc()
}

// DataFrequencyHz calls the injected DataFrequencyHz or the real version.
func (tpcs *TimedPointCloudSource) DataFrequencyHz() int {
	if tpcs.DataFrequencyHzFunc == nil {
		return tpcs.Lidar.DataFrequencyHz()
	}
	return tpcs.DataFrequencyHzFunc()
}

// TimedPointCloudReading calls the injected TimedPointCloudReading or the real version.
func (tpcs *TimedPointCloudSource) TimedPointCloudReading(ctx context.Context) (s.TimedPointCloudReadingResponse, error) {
	if tpcs.TimedPointCloudReadingFunc == nil {
		return tpcs.Lidar.TimedPointCloudReading(ctx)
	}
	return tpcs.TimedPointCloudReadingFunc(ctx)
}
