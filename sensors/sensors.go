// Package sensors defines the ranging sensors that feed the obstacle layer.
package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

const replayTimestampErrorMessage = "replay sensor timestamp parse RFC3339Nano error"

// ErrEndOfDataset is returned by replay sources that have no more readings.
var ErrEndOfDataset = errors.New("reached end of dataset")

// ValidateGetData checks every sensorValidationInterval if the provided source
// returned a valid timed reading until either success or sensorValidationMaxTimeout
// has elapsed. Returns an error if no valid reading was returned.
func ValidateGetData(
	ctx context.Context,
	source TimedPointCloudSource,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	ctx, span := trace.StartSpan(ctx, "obstaclelayer::sensors::ValidateGetData")
	defer span.End()

	startTime := time.Now().UTC()

	for {
		_, err := source.TimedPointCloudReading(ctx)
		if err == nil {
			break
		}

		logger.Debugw("ValidateGetData hit error: ", "sensor", source.Name(), "error", err)
		if time.Since(startTime) >= sensorValidationMaxTimeout {
			return errors.Wrap(err, "ValidateGetData timeout")
		}
		if !goutils.SelectContextOrWait(ctx, sensorValidationInterval) {
			return ctx.Err()
		}
	}

	return nil
}
