// Package sensorprocess contains the logic to add ranging sensor readings to the obstacle layer's observation buffers
package sensorprocess

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-obstacle-layer/observation"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

// Config holds config needed throughout the process of adding a sensor reading to an observation buffer.
type Config struct {
	Source s.TimedPointCloudSource
	Buffer *observation.Buffer
	Clock  clock.Clock
	Logger logging.Logger
}

// Ingestor polls one sensor source and inserts its readings into the source's buffer.
// Ingestion can be paused and resumed from other goroutines.
type Ingestor struct {
	Config

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

// New returns an Ingestor that starts out running.
func New(config Config) *Ingestor {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Ingestor{Config: config}
}

// Pause stops ingestion until Resume is called. Readings already in the buffer are kept.
func (ing *Ingestor) Pause() {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.paused {
		return
	}
	ing.paused = true
	ing.resumeCh = make(chan struct{})
	ing.Logger.Debugw("paused ingestion", "sensor", ing.Source.Name())
}

// Resume restarts a paused ingestion.
func (ing *Ingestor) Resume() {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if !ing.paused {
		return
	}
	ing.paused = false
	close(ing.resumeCh)
	ing.Logger.Debugw("resumed ingestion", "sensor", ing.Source.Name())
}

// Paused reports whether ingestion is paused.
func (ing *Ingestor) Paused() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.paused
}

// pausedChan returns a channel that is closed on resume, or nil when not paused.
func (ing *Ingestor) pausedChan() chan struct{} {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if !ing.paused {
		return nil
	}
	return ing.resumeCh
}
