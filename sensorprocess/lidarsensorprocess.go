package sensorprocess

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

// Start polls the source to get the next sensor reading and adds it to the buffer.
// Stops when the context is Done or a replay source runs out of data.
func (ing *Ingestor) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if resumeCh := ing.pausedChan(); resumeCh != nil {
			select {
			case <-ctx.Done():
				return
			case <-resumeCh:
			}
			continue
		}

		timeToSleep, err := ing.addReading(ctx)
		if err != nil {
			if errors.Is(err, s.ErrEndOfDataset) {
				ing.Logger.Infow("reached the end of the replay dataset, stopping ingestion", "sensor", ing.Source.Name())
				return
			}
			ing.Logger.Warn(err)
		}
		ing.Logger.Debugf("%v sleep for %vms", ing.Source.Name(), timeToSleep)
		if !goutils.SelectContextOrWait(ctx, time.Duration(timeToSleep)*time.Millisecond) {
			return
		}
	}
}

// addReading gets the next reading, adds it to the buffer and returns the remainder of
// the source's time interval in milliseconds.
func (ing *Ingestor) addReading(ctx context.Context) (int, error) {
	startTime := ing.Clock.Now()

	reading, err := ing.Source.TimedPointCloudReading(ctx)
	if err != nil {
		return ing.timeToSleep(startTime), err
	}

	ing.Buffer.Insert(reading.Cloud, reading.Origin, reading.ReadingTime)
	ing.Logger.Debugf("%v \t | %v | Inserted %d points \t | %v \n",
		reading.ReadingTime, ing.Source.Name(), reading.Cloud.Size(), reading.ReadingTime.Unix())

	return ing.timeToSleep(startTime), nil
}

// timeToSleep returns the remainder of the source's time interval that started at startTime.
func (ing *Ingestor) timeToSleep(startTime time.Time) int {
	timeElapsedMs := int(ing.Clock.Since(startTime).Milliseconds())
	return int(math.Max(0, float64(1000/ing.Source.DataFrequencyHz()-timeElapsedMs)))
}
